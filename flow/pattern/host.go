package pattern

import (
	"context"
	"fmt"

	"github.com/dshills/agentflow/flow"
	"github.com/dshills/agentflow/flow/model"
)

// newForwardExecutor relays any message unchanged to every outgoing edge.
// Used as the start executor for patterns that need to seed more than one
// destination from a single input: the concurrent pattern's broadcast to
// every agent, and the sequential pattern's seeding of both the first agent
// and the trailing batch executor with the original input (spec §4.8).
func newForwardExecutor(id string) *flow.Executor {
	e := flow.NewExecutor(id)
	flow.AddHandler(e, func(_ context.Context, msg any, wc *flow.WorkflowContext) error {
		wc.SendMessage(msg)
		return nil
	})
	return e
}

// newTerminatorExecutor relays a value onward and marks the end of a phase
// with a flow.TurnToken immediately after, so a downstream batching
// executor flushes on this value and nothing further (spec §4.4).
func newTerminatorExecutor(id string) *flow.Executor {
	e := flow.NewExecutor(id)
	flow.AddHandler(e, func(_ context.Context, msg any, wc *flow.WorkflowContext) error {
		wc.SendMessage(msg)
		wc.SendMessage(flow.TurnToken{})
		return nil
	})
	return e
}

// newAgentHostExecutor wraps an Agent as an executor: it drives one
// streaming turn against a message built from the incoming payload and
// forwards the agent's final text content downstream, emitting
// AgentRunUpdate/AgentRunResponse events as it goes (spec §6 Agent
// collaborator interface).
func newAgentHostExecutor(id string, ag model.Agent) *flow.Executor {
	e := flow.NewExecutor(id)
	flow.AddHandler(e, func(ctx context.Context, msg any, wc *flow.WorkflowContext) error {
		text := asText(msg)
		updates, err := ag.RunStreaming(ctx, []model.Message{{Role: model.RoleUser, Content: text}}, model.AgentRunOptions{})
		if err != nil {
			return err
		}

		var out string
		var last model.AgentRunResponseUpdate
		for u := range updates {
			last = u
			wc.AddEvent(flow.AgentRunUpdate{Base: flow.NewBase(wc.RunID()), ExecutorID: id, Update: u})
			for _, c := range u.Contents {
				if c.Kind == model.ContentText {
					out = c.Text
				}
			}
		}
		wc.AddEvent(flow.AgentRunResponse{Base: flow.NewBase(wc.RunID()), ExecutorID: id, Response: last})
		wc.SendMessage(out)
		return nil
	})
	return e
}

func asText(msg any) string {
	switch v := msg.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
