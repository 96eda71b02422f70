// Package event defines the observable lifecycle events emitted during
// workflow execution and the pluggable sinks ("emitters") that receive
// them. Grounded on graph/emit, generalized from one flat Event struct per
// node-step to ten concrete event kinds (spec §6).
package event

import "time"

// Event is the marker interface implemented by every concrete event kind.
// Callers type-switch on the concrete type to inspect payload fields, the
// idiomatic Go stand-in for the source's discriminated event union.
type Event interface {
	isEvent()
	RunID() string
}

// Base carries the fields common to every event kind. Embed it in new event
// kinds defined outside this package (there are none today, but the
// dispatcher constructs every kind below directly).
type Base struct {
	Run string
	At  time.Time
}

func (b Base) isEvent()        {}
func (b Base) RunID() string   { return b.Run }
func (b Base) When() time.Time { return b.At }

// NewBase stamps a Base with the current time for the given run.
func NewBase(runID string) Base { return Base{Run: runID, At: time.Now()} }

// WorkflowStarted fires once, right after a run is seeded with its input.
type WorkflowStarted struct {
	Base
	Data any
}

// ExecutorInvoked fires immediately before a handler runs.
type ExecutorInvoked struct {
	Base
	ExecutorID string
	Data       any
}

// ExecutorCompleted fires after a handler returns without error and its
// effects (writes, sends, events) have been applied.
type ExecutorCompleted struct {
	Base
	ExecutorID string
}

// ExecutorFailed fires when a handler panics, returns an error, times out,
// or no handler could be matched to the message (a routing error). The run
// halts immediately after this event (spec §7).
type ExecutorFailed struct {
	Base
	ExecutorID string
	Err        error
}

// AgentRunResponse fires when an agent-backed executor completes one full
// agent turn (as opposed to a partial streamed update).
type AgentRunResponse struct {
	Base
	ExecutorID string
	Response   any
}

// AgentRunUpdate fires for each partial streamed update an agent-backed
// executor observes from its underlying Agent.
type AgentRunUpdate struct {
	Base
	ExecutorID string
	Update     any
}

// WorkflowCompleted fires once, when the run's queue drains with no
// external request outstanding. Result is nil if the designated output sink
// produced no result.
type WorkflowCompleted struct {
	Base
	Result any
}

// WorkflowError fires when the run halts due to an unrecoverable error that
// is not scoped to a single executor (e.g. a checkpoint integrity error
// encountered during resume).
type WorkflowError struct {
	Base
	Err error
}

// CheckpointCreated fires after a checkpoint has been committed.
type CheckpointCreated struct {
	Base
	Info any
}

// RunEnded fires as the last event each time a run stops being driven,
// carrying its status (spec §4.5 cancel()/run-ended status). A run that
// pauses on an external request emits it with Status "Paused", and again
// when a later resume stops.
type RunEnded struct {
	Base
	Status string // "Completed", "Paused", "Cancelled", "Faulted"
}
