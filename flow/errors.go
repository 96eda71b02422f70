package flow

import "errors"

// Error taxonomy (spec §7). Build errors and checkpoint integrity errors
// are returned directly from the call that detected them; routing errors
// and handler exceptions surface as an ExecutorFailed event and halt the
// run; cancellation surfaces as a RunEnded{Status:"Cancelled"} event.

// Build errors — returned from Builder.Build(), never from a running
// workflow.
// Build never returns ErrUnboundExecutor: an edge naming an id that was
// never added is reported as ErrUnknownEndpoint.
var (
	ErrUnboundExecutor  = errors.New("flow: build: unbound executor reference")
	ErrUnknownEndpoint  = errors.New("flow: build: edge endpoint references an unregistered executor")
	ErrDuplicateEdge    = errors.New("flow: build: duplicate unconditional direct edge")
	ErrDuplicateRoute   = errors.New("flow: build: duplicate handler registration for input type")
	ErrNoStartExecutor  = errors.New("flow: build: no start executor declared")
	ErrStartTypeMismatch = errors.New("flow: build: start executor does not accept the workflow's input type")
	ErrEmptyExecutorID  = errors.New("flow: build: executor id must not be empty")
	ErrDuplicateExecutor = errors.New("flow: build: duplicate executor id")
)

// Checkpoint integrity errors — returned from CheckpointManager.Lookup or
// Resume.
var (
	ErrCheckpointNotFound     = errors.New("flow: checkpoint not found")
	ErrCheckpointDeserialize  = errors.New("flow: checkpoint deserialization failed")
)

// ErrRoutingFailure is wrapped into an *ExecutorError (Code
// "ROUTING_ERROR") and carried on an ExecutorFailed event when no
// registered handler's input type matches an incoming message.
var ErrRoutingFailure = errors.New("flow: no handler matches message type")

// ErrCancelled is the well-known cancellation error (spec §5). The
// dispatcher returns it when the run's context is cancelled before or
// during a handler call, and a handler may return it itself; either way the
// run ends with status Cancelled rather than Faulted. The dispatcher
// compares a handler's error against ErrCancelled itself, not against
// context.Canceled.
var ErrCancelled = errors.New("flow: run cancelled")
