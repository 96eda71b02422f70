package pattern_test

import (
	"context"
	"strings"
	"testing"

	"github.com/dshills/agentflow/flow"
	"github.com/dshills/agentflow/flow/model"
	"github.com/dshills/agentflow/flow/pattern"
)

func chatAgent(name string, responses ...model.ChatOut) model.Agent {
	return model.AgentFromChatModel(name, &model.MockChatModel{Responses: responses})
}

// TestSequentialPipelineScenario matches scenario S1: two agents chained in
// sequence over the seed input "hello" produce the full transcript
// ["hello", "HELLO", "HELLO!"].
func TestSequentialPipelineScenario(t *testing.T) {
	upper := chatAgent("UpperCaser", model.ChatOut{Text: "HELLO"})
	exclaim := chatAgent("Exclaimer", model.ChatOut{Text: "HELLO!"})

	wf, err := pattern.NewSequential([]model.Agent{upper, exclaim})
	if err != nil {
		t.Fatalf("NewSequential: %v", err)
	}

	run, err := flow.RunSync(context.Background(), wf, "hello")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res, ok := run.Result()
	if !ok {
		t.Fatalf("expected a result")
	}
	items := res.([]any)
	want := []any{"hello", "HELLO", "HELLO!"}
	if len(items) != len(want) {
		t.Fatalf("unexpected transcript: %v", items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("transcript[%d] = %v, want %v (full: %v)", i, items[i], want[i], items)
		}
	}
}

func TestSequentialRejectsEmptyAgentList(t *testing.T) {
	if _, err := pattern.NewSequential(nil); err != pattern.ErrEmptyAgentList {
		t.Fatalf("expected ErrEmptyAgentList, got %v", err)
	}
}

// TestConcurrentDefaultAggregatorScenario matches scenario S2: three agents
// respond "a", "" and "c"; the default aggregator drops the empty reply and
// keeps declared order, yielding ["a", "c"].
func TestConcurrentDefaultAggregatorScenario(t *testing.T) {
	agents := []model.Agent{
		chatAgent("alpha", model.ChatOut{Text: "a"}),
		chatAgent("beta", model.ChatOut{Text: ""}),
		chatAgent("gamma", model.ChatOut{Text: "c"}),
	}

	wf, err := pattern.NewConcurrent(agents, nil)
	if err != nil {
		t.Fatalf("NewConcurrent: %v", err)
	}

	run, err := flow.RunSync(context.Background(), wf, "go")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res, ok := run.Result()
	if !ok {
		t.Fatalf("expected a result")
	}
	got := res.([]any)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("unexpected aggregate: %v", got)
	}
}

func TestConcurrentCustomAggregator(t *testing.T) {
	agents := []model.Agent{
		chatAgent("alpha", model.ChatOut{Text: "a"}),
		chatAgent("beta", model.ChatOut{Text: "b"}),
	}
	var sawLens []int
	aggregator := func(perAgent [][]any) []any {
		for _, msgs := range perAgent {
			sawLens = append(sawLens, len(msgs))
		}
		return []any{"custom"}
	}

	wf, err := pattern.NewConcurrent(agents, aggregator)
	if err != nil {
		t.Fatalf("NewConcurrent: %v", err)
	}
	run, err := flow.RunSync(context.Background(), wf, "go")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res, _ := run.Result()
	got := res.([]any)
	if len(got) != 1 || got[0] != "custom" {
		t.Fatalf("expected custom aggregator output, got %v", got)
	}
	if len(sawLens) != 2 {
		t.Fatalf("expected the custom aggregator to see one list per agent, got %v", sawLens)
	}
}

func TestConcurrentRejectsEmptyAgentList(t *testing.T) {
	if _, err := pattern.NewConcurrent(nil, nil); err != pattern.ErrEmptyAgentList {
		t.Fatalf("expected ErrEmptyAgentList, got %v", err)
	}
}

// handoffStub is a model.Agent test double that picks which tool to call (if
// any) by matching against the live tool list RunStreaming is called with,
// the way a real LLM would choose among the tools it's offered — rather than
// needing to know the handoff pattern's randomly-synthesized tool names in
// advance.
type handoffStub struct {
	name    string
	actions []string // "text:<reply>", "handoff:<target substring>", or "end"
	calls   int
}

func (h *handoffStub) Name() string { return h.name }

func (h *handoffStub) RunStreaming(ctx context.Context, messages []model.Message, opts model.AgentRunOptions) (<-chan model.AgentRunResponseUpdate, error) {
	action := "text:ok"
	if h.calls < len(h.actions) {
		action = h.actions[h.calls]
	}
	h.calls++

	update := model.AgentRunResponseUpdate{Role: model.RoleAssistant, AuthorName: h.name}
	switch {
	case action == "end":
		for _, ts := range opts.Tools {
			if strings.HasPrefix(ts.Name, "end_") {
				update.Contents = append(update.Contents, model.Content{
					Kind:         model.ContentFunctionCall,
					FunctionCall: &model.FunctionCall{CallID: ts.Name, Name: ts.Name},
				})
			}
		}
	case strings.HasPrefix(action, "handoff:"):
		target := strings.TrimPrefix(action, "handoff:")
		for _, ts := range opts.Tools {
			if strings.HasPrefix(ts.Name, "handoff_to_") && strings.Contains(ts.Description, target) {
				update.Contents = append(update.Contents, model.Content{
					Kind:         model.ContentFunctionCall,
					FunctionCall: &model.FunctionCall{CallID: ts.Name, Name: ts.Name},
				})
			}
		}
	default:
		update.Contents = append(update.Contents, model.Content{Kind: model.ContentText, Text: strings.TrimPrefix(action, "text:")})
	}

	ch := make(chan model.AgentRunResponseUpdate, 1)
	ch <- update
	close(ch)
	return ch, nil
}

// TestHandoffScenario matches scenario S5: Triage hands off to Billing via a
// synthesized handoff tool call; Billing then calls its end function and the
// run terminates with the full transcript.
func TestHandoffScenario(t *testing.T) {
	triage := &handoffStub{name: "Triage", actions: []string{"handoff:Billing"}}
	billing := &handoffStub{name: "Billing", actions: []string{"end"}}

	agents := map[string]model.Agent{"Triage": triage, "Billing": billing}
	edges := map[string][]pattern.HandoffEdge{
		"Triage": {{Target: "Billing", Reason: "billing questions"}},
	}

	wf, err := pattern.NewHandoff("Triage", agents, edges)
	if err != nil {
		t.Fatalf("NewHandoff: %v", err)
	}

	run, err := flow.RunSync(context.Background(), wf, pattern.HandoffState{
		Messages: []pattern.HandoffMessage{{Role: model.RoleUser, Text: "I have a billing question"}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res, ok := run.Result()
	if !ok {
		t.Fatalf("expected a final transcript")
	}
	transcript := res.([]pattern.HandoffMessage)

	var sawHandoffCall, sawEndCall bool
	for _, m := range transcript {
		if m.ToolCall == nil {
			continue
		}
		switch {
		case strings.HasPrefix(m.ToolCall.Name, "handoff_to_"):
			sawHandoffCall = true
		case strings.HasPrefix(m.ToolCall.Name, "end_"):
			sawEndCall = true
		}
	}
	if !sawHandoffCall || !sawEndCall {
		t.Fatalf("expected the transcript to record both the handoff and the end call, got %+v", transcript)
	}
	if triage.calls != 1 || billing.calls != 1 {
		t.Fatalf("expected exactly one turn per agent, got triage=%d billing=%d", triage.calls, billing.calls)
	}
}

// TestHandoffExhaustsRetriesWithoutTerminalCall confirms an agent that never
// invokes a handoff or end function fails the run rather than looping
// forever.
func TestHandoffExhaustsRetriesWithoutTerminalCall(t *testing.T) {
	billing := &handoffStub{name: "Billing"} // every turn replies with plain text
	agents := map[string]model.Agent{"Billing": billing}

	wf, err := pattern.NewHandoff("Billing", agents, map[string][]pattern.HandoffEdge{})
	if err != nil {
		t.Fatalf("NewHandoff: %v", err)
	}

	_, err = flow.RunSync(context.Background(), wf, pattern.HandoffState{
		Messages: []pattern.HandoffMessage{{Role: model.RoleUser, Text: "hello"}},
	})
	if err == nil {
		t.Fatalf("expected the run to fail once retries are exhausted")
	}
}
