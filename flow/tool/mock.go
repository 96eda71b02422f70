package tool

import (
	"context"
	"sync"
)

// MockTool is a test double for Tool, grounded on graph/tool/mock.go and
// mirroring model.MockChatModel's call-recording/error-injection/
// response-cycling shape.
type MockTool struct {
	ToolName  string
	Responses []map[string]interface{}
	Err       error

	mu        sync.Mutex
	Calls     []MockToolCall
	callIndex int
}

// MockToolCall captures one recorded invocation.
type MockToolCall struct {
	Input map[string]interface{}
}

func (t *MockTool) Name() string { return t.ToolName }

func (t *MockTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.Calls = append(t.Calls, MockToolCall{Input: input})

	if t.Err != nil {
		return nil, t.Err
	}
	if len(t.Responses) == 0 {
		return nil, nil
	}

	idx := t.callIndex
	if idx >= len(t.Responses) {
		idx = len(t.Responses) - 1
	}
	t.callIndex++
	return t.Responses[idx], nil
}

// Reset clears recorded calls and rewinds response cycling.
func (t *MockTool) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
	t.callIndex = 0
}

// CallCount returns the number of recorded calls.
func (t *MockTool) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}
