package model_test

import (
	"context"
	"testing"

	"github.com/dshills/agentflow/flow/model"
	"github.com/dshills/agentflow/flow/tool"
)

// TestAgentFromChatModelResolvesRegisteredToolCalls confirms the
// tool-calling loop executes a registered tool, feeds its result back to
// the model, and keeps calling the model until it answers without
// requesting that tool again.
func TestAgentFromChatModelResolvesRegisteredToolCalls(t *testing.T) {
	search := &tool.MockTool{
		ToolName:  "search",
		Responses: []map[string]interface{}{{"hits": 3}},
	}
	cm := &model.MockChatModel{
		Responses: []model.ChatOut{
			{ToolCalls: []model.ToolCall{{Name: "search", Input: map[string]interface{}{"q": "agents"}}}},
			{Text: "found 3 results"},
		},
	}

	agent := model.AgentFromChatModel("researcher", cm, search)
	updates, err := agent.RunStreaming(context.Background(), []model.Message{{Role: model.RoleUser, Content: "go"}}, model.AgentRunOptions{})
	if err != nil {
		t.Fatalf("RunStreaming: %v", err)
	}

	var final model.AgentRunResponseUpdate
	for u := range updates {
		final = u
	}

	if search.CallCount() != 1 {
		t.Fatalf("expected the tool to be called exactly once, got %d", search.CallCount())
	}
	if cm.CallCount() != 2 {
		t.Fatalf("expected two model calls (one per tool round), got %d", cm.CallCount())
	}
	if len(final.Contents) != 1 || final.Contents[0].Kind != model.ContentText || final.Contents[0].Text != "found 3 results" {
		t.Fatalf("expected the final update to carry only the resolved text answer, got %+v", final.Contents)
	}
}

// TestAgentFromChatModelSurfacesUnregisteredToolCalls confirms a tool call
// the agent has no registered tool.Tool for is left untouched on the
// returned update instead of being silently dropped or looped on forever.
func TestAgentFromChatModelSurfacesUnregisteredToolCalls(t *testing.T) {
	cm := &model.MockChatModel{
		Responses: []model.ChatOut{
			{ToolCalls: []model.ToolCall{{Name: "handoff_to_billing"}}},
		},
	}
	agent := model.AgentFromChatModel("triage", cm)
	updates, err := agent.RunStreaming(context.Background(), nil, model.AgentRunOptions{})
	if err != nil {
		t.Fatalf("RunStreaming: %v", err)
	}
	update := <-updates
	if len(update.Contents) != 1 || update.Contents[0].Kind != model.ContentFunctionCall {
		t.Fatalf("expected the unresolved tool call to be surfaced, got %+v", update.Contents)
	}
	if cm.CallCount() != 1 {
		t.Fatalf("expected exactly one model call, got %d", cm.CallCount())
	}
}
