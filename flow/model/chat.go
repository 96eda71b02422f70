// Package model provides the LLM chat abstraction agent-backed executors
// build on, plus adapters for concrete provider SDKs. Grounded on
// graph/model/chat.go — same ChatModel/Message/ToolSpec/ChatOut shape,
// carried over near-unchanged since spec §1 treats "the agent model" and
// "concrete chat client backends" as external collaborators the runtime
// only needs a narrow interface to.
package model

import "context"

// ChatModel abstracts one request/response turn against an LLM chat
// endpoint, independent of provider.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn in a conversation.
type Message struct {
	Role    string
	Content string
}

// Standard role constants, shared across providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolSpec describes a tool an LLM may call, in JSON Schema terms.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ChatOut is one LLM turn's output: generated text, requested tool calls, or
// both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall

	// InputTokens/OutputTokens, when a provider reports them, feed
	// CostTracker.RecordLLMCall so agent-backed executors can account for
	// spend without parsing provider-specific response shapes themselves.
	InputTokens  int
	OutputTokens int
}

// ToolCall is one LLM-requested tool invocation.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}
