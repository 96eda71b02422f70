package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/agentflow/flow/tool"
)

// ContentKind tags the shape of one AgentRunResponseUpdate content item
// (spec §6: "content items (text, function call, function result, user-input
// request/response)").
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentFunctionCall
	ContentFunctionResult
	ContentUserInputRequest
	ContentUserInputResponse
)

// Content is one tagged-union content item carried on a Message or an
// AgentRunResponseUpdate. Only the field matching Kind is meaningful.
type Content struct {
	Kind ContentKind

	Text string

	FunctionCall *FunctionCall

	FunctionResult *FunctionResult

	UserInputRequest *UserInputRequest

	UserInputResponse *UserInputResponse
}

// FunctionCall is a tool/function invocation an agent requested.
type FunctionCall struct {
	CallID    string
	Name      string
	Arguments map[string]interface{}
}

// FunctionResult answers a FunctionCall by CallID.
type FunctionResult struct {
	CallID string
	Result any
	Error  string
}

// UserInputRequest asks the human-in-the-loop caller a question mid-turn.
type UserInputRequest struct {
	Prompt string
}

// UserInputResponse answers a UserInputRequest.
type UserInputResponse struct {
	Text string
}

// AgentRunResponseUpdate is one streamed update from Agent.RunStreaming
// (spec §6). A full agent turn is the concatenation of every update's
// Contents until ContinuationToken is empty.
type AgentRunResponseUpdate struct {
	Role      string
	Contents  []Content
	MessageID string

	// ResponseID groups every update belonging to the same agent turn,
	// distinct from MessageID which identifies one update.
	ResponseID string

	AuthorName string
	Timestamp  time.Time

	// Raw is an escape hatch to the underlying provider SDK's native
	// response type, for callers that need provider-specific fields this
	// abstraction does not expose.
	Raw any

	// ContinuationToken is non-empty when the agent's turn is not yet
	// finished — e.g. a background/resumable response the caller must poll
	// or stream further to observe the rest of.
	ContinuationToken string
}

// AgentRunOptions configures one RunStreaming call.
type AgentRunOptions struct {
	Tools []ToolSpec
}

// Agent is the external collaborator interface an agent-backed executor
// drives (spec §1, §6: "agent model... external collaborator"). The runtime
// only needs this narrow surface; how an Agent actually streams updates
// (which provider, which prompt template) is out of scope for the core.
type Agent interface {
	Name() string
	RunStreaming(ctx context.Context, messages []Message, opts AgentRunOptions) (<-chan AgentRunResponseUpdate, error)
}

// maxToolLoopRounds bounds how many times chatAgent re-invokes its
// ChatModel while resolving tool calls it can answer itself, so a tool
// that keeps asking the model to call it again can't spin the run forever.
const maxToolLoopRounds = 10

// chatAgent adapts a ChatModel into an Agent, driving a tool-calling loop
// against any tools it was given before republishing the model's final
// turn as a single-update stream. This is the default bridge for callers
// whose ChatModel implementation (the provider adapters in model/
// anthropic, model/openai, model/google) has no native streaming surface
// wired up yet.
type chatAgent struct {
	name  string
	model ChatModel
	tools map[string]tool.Tool
}

// AgentFromChatModel wraps a ChatModel as an Agent, so a handoff or
// sequential/concurrent pattern can drive any of the provider adapters
// through the same Agent interface. Any tools passed in are executed
// automatically: when the model requests one of them, chatAgent calls it,
// appends the result to the conversation, and re-invokes the model,
// repeating until a turn requests no registered tool. A tool call the
// model makes that doesn't match a registered tool (for instance a
// pattern's own control-flow tools) is left alone and surfaced on the
// returned update for the caller to act on.
func AgentFromChatModel(name string, cm ChatModel, tools ...tool.Tool) Agent {
	m := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return &chatAgent{name: name, model: cm, tools: m}
}

func (a *chatAgent) Name() string { return a.name }

func (a *chatAgent) RunStreaming(ctx context.Context, messages []Message, opts AgentRunOptions) (<-chan AgentRunResponseUpdate, error) {
	convo := append([]Message(nil), messages...)

	var out ChatOut
	for round := 0; ; round++ {
		if round >= maxToolLoopRounds {
			return nil, fmt.Errorf("model: %s exceeded %d tool-call rounds without a final answer", a.name, maxToolLoopRounds)
		}

		var err error
		out, err = a.model.Chat(ctx, convo, opts.Tools)
		if err != nil {
			return nil, err
		}

		resolvedAny := false
		for _, tc := range out.ToolCalls {
			t, ok := a.tools[tc.Name]
			if !ok {
				continue
			}
			resolvedAny = true
			result, callErr := t.Call(ctx, tc.Input)
			convo = append(convo, toolCallTurn(tc, result, callErr)...)
		}
		if !resolvedAny {
			break
		}
	}

	ch := make(chan AgentRunResponseUpdate, 1)
	update := AgentRunResponseUpdate{
		Role:       RoleAssistant,
		AuthorName: a.name,
		Timestamp:  time.Now(),
		Raw:        out,
	}
	if out.Text != "" {
		update.Contents = append(update.Contents, Content{Kind: ContentText, Text: out.Text})
	}
	for _, tc := range out.ToolCalls {
		if _, ok := a.tools[tc.Name]; ok {
			continue
		}
		update.Contents = append(update.Contents, Content{
			Kind: ContentFunctionCall,
			FunctionCall: &FunctionCall{
				CallID:    tc.Name,
				Name:      tc.Name,
				Arguments: tc.Input,
			},
		})
	}
	ch <- update
	close(ch)
	return ch, nil
}

// toolCallTurn renders a resolved tool call and its outcome as the two
// conversation turns the next Chat call needs to see: the call itself and
// the tool's answer (or its error, so the model can decide how to proceed).
func toolCallTurn(tc ToolCall, result map[string]interface{}, callErr error) []Message {
	call := Message{Role: RoleAssistant, Content: fmt.Sprintf("[tool_call:%s]", tc.Name)}
	if callErr != nil {
		return []Message{call, {Role: RoleTool, Content: fmt.Sprintf("error: %v", callErr)}}
	}
	body, err := json.Marshal(result)
	if err != nil {
		body = []byte(fmt.Sprintf("%v", result))
	}
	return []Message{call, {Role: RoleTool, Content: string(body)}}
}
