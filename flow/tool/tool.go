// Package tool defines the interface agent-backed executors use to execute
// LLM-requested tool calls. Grounded on graph/tool/tool.go.
package tool

import "context"

// Tool is a named, callable capability an LLM can request via
// model.ToolCall.
type Tool interface {
	Name() string
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}
