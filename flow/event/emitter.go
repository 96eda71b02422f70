package event

import "context"

// Emitter receives lifecycle events from a run. Grounded on
// graph/emit/emitter.go — same three-method shape, now carrying the richer
// Event marker interface instead of one flat struct.
//
// Implementations should be non-blocking and thread-safe; the dispatcher
// calls Emit synchronously on its single logical thread, but a run's
// Emitter may be shared across concurrently-executing runs.
type Emitter interface {
	// Emit sends a single event to the configured backend. Must not panic.
	Emit(ev Event)

	// EmitBatch sends multiple events in one operation. Implementations
	// must preserve order. Returns an error only on catastrophic failures;
	// individual event failures should be logged, not returned.
	EmitBatch(ctx context.Context, evs []Event) error

	// Flush blocks until all buffered events have been sent or ctx expires.
	Flush(ctx context.Context) error
}
