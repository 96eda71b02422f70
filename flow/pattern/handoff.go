package pattern

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/dshills/agentflow/flow"
	"github.com/dshills/agentflow/flow/model"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// maxHandoffTurns bounds how many times an agent is re-run, with each
// round's text reply appended to its messages, while waiting for it to
// invoke a handoff or end
// function (spec §4.8: "the agent is re-run... until one of the terminal
// tool calls appears"). The spec does not bound this itself; a wedged
// agent that never calls a terminal tool would otherwise loop forever.
const maxHandoffTurns = 25

// ErrNoTerminalToolCall is the handler error raised when an agent exhausts
// maxHandoffTurns without invoking a handoff or end function.
var ErrNoTerminalToolCall = errors.New("pattern: agent exhausted retries without invoking a handoff or end function")

// HandoffEdge declares that an agent may transfer control to Target, with
// Reason describing to the LLM when it should choose to do so (spec §4.8).
type HandoffEdge struct {
	Target string
	Reason string
}

// HandoffMessage is one transcript entry in a handoff run. Exactly one of
// Text, ToolCall or ToolResult is meaningful: a plain chat turn, an agent's
// tool invocation (with any handoff/end call already stripped of its
// original free-form content by the host executor), or the synthesized
// "Transferred." tool result spec §4.8 inserts in its place.
type HandoffMessage struct {
	Role       string
	Text       string
	ToolCall   *model.FunctionCall
	ToolResult *model.FunctionResult
}

// HandoffState is the payload that flows along every edge of a handoff
// workflow (spec §4.8: "(turnToken, invokedHandoff?, accumulatedMessages)" —
// the turn-token/invoked-handoff bookkeeping is implicit here in which edge
// a message is routed down, not carried as separate fields).
type HandoffState struct {
	Messages []HandoffMessage
}

// NewHandoff builds the handoff orchestration pattern (spec §4.8). agents is
// keyed by stable agent id; edges[sourceID] lists the agents that source may
// transfer control to. The builder synthesizes one randomly-named handoff
// function per edge plus one randomly-named "end" function per agent
// (spec §9 Open Question 3: a random stable id embedded in both the tool
// schema and the routing predicate, not a deterministic name-derived one),
// registers them as tools the agent is called with, and wires a terminal
// executor that emits the final transcript once any agent invokes its end
// function.
//
// Scenario (spec §8 S5): agents Triage and Billing, with a handoff edge
// Triage -> Billing. A user message that makes Triage call its handoff
// function routes to Billing; Billing's subsequent call to its end function
// terminates the run with the full transcript.
func NewHandoff(initial string, agents map[string]model.Agent, edges map[string][]HandoffEdge) (*flow.Workflow, error) {
	if _, ok := agents[initial]; !ok {
		return nil, fmt.Errorf("pattern: initial agent %q not registered", initial)
	}

	const terminalID = "handoff_terminal"

	// handoffNames[source][target] and endNames[source] are the
	// build-time-random, stable tool names embedded in both the tool
	// schema registered on source and the routing predicate on the edge
	// source -> target (or source -> terminalID for end).
	handoffNames := make(map[string]map[string]string, len(agents))
	endNames := make(map[string]string, len(agents))
	for src := range agents {
		handoffNames[src] = make(map[string]string, len(edges[src]))
		for _, e := range edges[src] {
			handoffNames[src][e.Target] = "handoff_to_" + shortID()
		}
		endNames[src] = "end_" + shortID()
	}

	b := flow.NewBuilder()
	b.AddUnbound(terminalID, func() *flow.Executor { return newHandoffTerminalExecutor(terminalID) })

	for id, ag := range agents {
		id, ag := id, ag
		tools, err := buildToolSpecs(edges[id], handoffNames[id], endNames[id])
		if err != nil {
			return nil, fmt.Errorf("pattern: agent %q: %w", id, err)
		}
		b.AddUnbound(id, func() *flow.Executor {
			return newHandoffHostExecutor(id, ag, tools, handoffNames[id], endNames[id])
		})
	}

	for src, targets := range handoffNames {
		for target, toolName := range targets {
			b.AddEdge(src, target, handoffPredicate(toolName))
		}
		b.AddEdge(src, terminalID, handoffPredicate(endNames[src]))
	}

	b.WithStart(initial, reflect.TypeOf(HandoffState{}))
	b.WithOutputSink(terminalID)

	return b.Build()
}

func shortID() string {
	return uuid.NewString()[:8]
}

// buildToolSpecs synthesizes the handoff and end tool specs offered to one
// agent, validating each tool's schema at build time via jsonschema/v6 so a
// malformed schema is caught here rather than surfacing later as a rejected
// tool definition at the model provider.
func buildToolSpecs(outs []HandoffEdge, names map[string]string, endName string) ([]model.ToolSpec, error) {
	tools := make([]model.ToolSpec, 0, len(outs)+1)
	for _, e := range outs {
		schema := map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"reason": map[string]interface{}{"type": "string"},
			},
		}
		if err := validateToolSchema(names[e.Target], schema); err != nil {
			return nil, err
		}
		tools = append(tools, model.ToolSpec{
			Name:        names[e.Target],
			Description: fmt.Sprintf("Transfer the conversation to %s. %s", e.Target, e.Reason),
			Schema:      schema,
		})
	}
	endSchema := map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	if err := validateToolSchema(endName, endSchema); err != nil {
		return nil, err
	}
	tools = append(tools, model.ToolSpec{
		Name:        endName,
		Description: "End the conversation and return the final result to the caller.",
		Schema:      endSchema,
	})
	return tools, nil
}

// validateToolSchema compiles schema as a standalone JSON Schema document,
// failing if it is malformed.
func validateToolSchema(toolName string, schema map[string]interface{}) error {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(toolName, schema); err != nil {
		return fmt.Errorf("tool %q: add schema resource: %w", toolName, err)
	}
	if _, err := c.Compile(toolName); err != nil {
		return fmt.Errorf("tool %q: compile schema: %w", toolName, err)
	}
	return nil
}

// handoffPredicate gates an edge so a HandoffState only flows down it when
// the agent's most recent turn invoked the tool named toolName (spec §4.3:
// predicates see the message only, not context).
func handoffPredicate(toolName string) flow.Predicate {
	return func(msg any) bool {
		st, ok := msg.(HandoffState)
		if !ok || len(st.Messages) < 2 {
			return false
		}
		call := st.Messages[len(st.Messages)-2].ToolCall
		return call != nil && call.Name == toolName
	}
}

// newHandoffHostExecutor wraps an Agent as a handoff participant: it calls
// the agent with the accumulated transcript, inspects the streamed update
// for a tool call matching one of handoffNames or endName, and on finding
// one appends the call to the transcript as its own entry, followed by a
// synthesized "Transferred." tool result, before sending the updated
// HandoffState onward. If neither appears, the update's text (if any) is
// appended and the agent is re-run with that transcript (spec §4.8).
func newHandoffHostExecutor(id string, ag model.Agent, tools []model.ToolSpec, handoffNames map[string]string, endName string) *flow.Executor {
	e := flow.NewExecutor(id)
	flow.AddHandler(e, func(ctx context.Context, st HandoffState, wc *flow.WorkflowContext) error {
		messages := append([]HandoffMessage(nil), st.Messages...)

		for attempt := 0; attempt < maxHandoffTurns; attempt++ {
			updates, err := ag.RunStreaming(ctx, toChatMessages(messages), model.AgentRunOptions{Tools: tools})
			if err != nil {
				return err
			}

			var update model.AgentRunResponseUpdate
			for u := range updates {
				update = u
				wc.AddEvent(flow.AgentRunUpdate{Base: flow.NewBase(wc.RunID()), ExecutorID: id, Update: u})
			}
			wc.AddEvent(flow.AgentRunResponse{Base: flow.NewBase(wc.RunID()), ExecutorID: id, Response: update})

			text, call := extractToolCall(update, handoffNames, endName)
			if text != "" {
				messages = append(messages, HandoffMessage{Role: model.RoleAssistant, Text: text})
			}
			if call == nil {
				continue
			}

			messages = append(messages, HandoffMessage{Role: model.RoleAssistant, ToolCall: call})
			messages = append(messages, HandoffMessage{
				Role:       model.RoleTool,
				ToolResult: &model.FunctionResult{CallID: call.CallID, Result: "Transferred."},
			})
			wc.SendMessage(HandoffState{Messages: messages})
			return nil
		}
		return fmt.Errorf("%w: executor %q", ErrNoTerminalToolCall, id)
	})
	return e
}

// extractToolCall scans one agent update for a handoff or end function
// call, returning any free-form text alongside it. Only the first matching
// call in the update's contents is honored.
func extractToolCall(u model.AgentRunResponseUpdate, handoffNames map[string]string, endName string) (text string, call *model.FunctionCall) {
	for _, c := range u.Contents {
		switch c.Kind {
		case model.ContentText:
			text = c.Text
		case model.ContentFunctionCall:
			if c.FunctionCall == nil || call != nil {
				continue
			}
			if c.FunctionCall.Name == endName {
				call = c.FunctionCall
				continue
			}
			for _, name := range handoffNames {
				if name == c.FunctionCall.Name {
					call = c.FunctionCall
					break
				}
			}
		}
	}
	return text, call
}

func toChatMessages(msgs []HandoffMessage) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.ToolCall != nil:
			out = append(out, model.Message{Role: m.Role, Content: fmt.Sprintf("[tool_call:%s]", m.ToolCall.Name)})
		case m.ToolResult != nil:
			out = append(out, model.Message{Role: m.Role, Content: fmt.Sprintf("%v", m.ToolResult.Result)})
		default:
			out = append(out, model.Message{Role: m.Role, Content: m.Text})
		}
	}
	return out
}

func newHandoffTerminalExecutor(id string) *flow.Executor {
	e := flow.NewExecutor(id)
	flow.AddHandlerWithOutput[HandoffState, []HandoffMessage](e, func(_ context.Context, st HandoffState, wc *flow.WorkflowContext) ([]HandoffMessage, error) {
		return st.Messages, nil
	})
	return e
}
