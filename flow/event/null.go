package event

import "context"

// NullEmitter discards every event. Useful as the default when a caller
// does not care about observability, and in tests that assert on return
// values rather than event history. Grounded on graph/emit/null.go.
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that does nothing.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(Event) {}

func (n *NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

func (n *NullEmitter) Flush(context.Context) error { return nil }
