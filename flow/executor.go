// Package flow implements the execution core of the workflow runtime: the
// directed graph of executors and edges, the type-routed message dispatcher,
// scoped state, checkpoint/resume, and the Run/StreamingRun controllers.
package flow

import (
	"context"
	"fmt"
	"reflect"
)

// Executor is a named node in the workflow graph. It holds an ordered table
// of handler registrations keyed by the message type each handler accepts.
//
// Executors are instantiated lazily: the Builder stores a factory function
// per id, and the Dispatcher calls it the first time a message is routed to
// that id for a given run. An Executor value itself is not safe for
// concurrent use across runs unless Shareable is set — see Shareable.
type Executor struct {
	id        string
	routes    []route
	shareable bool

	onCheckpointing func(ctx *WorkflowContext) error
	onRestored      func(ctx *WorkflowContext) error
}

type handlerFunc func(ctx context.Context, payload any, wc *WorkflowContext) (any, error)

type route struct {
	inputType  reflect.Type
	outputType reflect.Type
	handler    handlerFunc
}

// NewExecutor creates an empty executor with the given stable id. The id
// must be non-empty and unique within the workflow it is registered into;
// uniqueness is enforced by the Builder, not here.
func NewExecutor(id string) *Executor {
	if id == "" {
		panic("flow: executor id must not be empty")
	}
	return &Executor{id: id}
}

// ID returns the executor's stable identifier.
func (e *Executor) ID() string { return e.id }

// Shareable marks the executor as safe for concurrent runs to share a
// single instance. Shareable executors must not cache state across
// invocations in the Go struct itself; use scoped state instead.
func (e *Executor) Shareable(v bool) *Executor {
	e.shareable = v
	return e
}

// IsShareable reports whether the executor is cross-run-shareable.
func (e *Executor) IsShareable() bool { return e.shareable }

// OnCheckpointing registers a hook invoked while a checkpoint is being
// assembled, allowing the executor to write additional private state.
func (e *Executor) OnCheckpointing(fn func(ctx *WorkflowContext) error) *Executor {
	e.onCheckpointing = fn
	return e
}

// OnCheckpointRestored registers a hook invoked after a checkpoint has
// populated this executor's private state, allowing it to read it back.
func (e *Executor) OnCheckpointRestored(fn func(ctx *WorkflowContext) error) *Executor {
	e.onRestored = fn
	return e
}

// InputTypes returns the set of message types this executor accepts, in
// registration order. Used by the Builder to validate the start executor
// and by documentation/introspection tooling.
func (e *Executor) InputTypes() []reflect.Type {
	out := make([]reflect.Type, 0, len(e.routes))
	for _, r := range e.routes {
		out = append(out, r.inputType)
	}
	return out
}

// AddHandler registers a handler for messages of type In. The handler may
// send zero or more messages and emit zero or more events via wc, but
// returns no output value of its own (besides routing).
//
// Duplicate registrations for the same input type are invalid; Build()
// rejects a workflow containing one (spec: "Duplicate registrations for
// the same inputType are invalid").
func AddHandler[In any](e *Executor, fn func(ctx context.Context, msg In, wc *WorkflowContext) error) *Executor {
	inType := reflect.TypeOf((*In)(nil)).Elem()
	e.routes = append(e.routes, route{
		inputType: inType,
		handler: func(ctx context.Context, payload any, wc *WorkflowContext) (any, error) {
			typed, ok := coerce[In](payload, inType)
			if !ok {
				return nil, fmt.Errorf("flow: handler for %s received incompatible payload %T", inType, payload)
			}
			return nil, fn(ctx, typed, wc)
		},
	})
	return e
}

// AddHandlerWithOutput registers a handler that, in addition to sending
// messages and events, returns one value of type Out. The returned value is
// only meaningful when this executor is the workflow's designated output
// sink (see Builder.WithOutputSink); otherwise it is ignored by the
// dispatcher.
func AddHandlerWithOutput[In, Out any](e *Executor, fn func(ctx context.Context, msg In, wc *WorkflowContext) (Out, error)) *Executor {
	inType := reflect.TypeOf((*In)(nil)).Elem()
	outType := reflect.TypeOf((*Out)(nil)).Elem()
	e.routes = append(e.routes, route{
		inputType:  inType,
		outputType: outType,
		handler: func(ctx context.Context, payload any, wc *WorkflowContext) (any, error) {
			typed, ok := coerce[In](payload, inType)
			if !ok {
				return nil, fmt.Errorf("flow: handler for %s received incompatible payload %T", inType, payload)
			}
			return fn(ctx, typed, wc)
		},
	})
	return e
}

func coerce[In any](payload any, inType reflect.Type) (In, bool) {
	var zero In
	if inType.Kind() == reflect.Interface {
		v := reflect.ValueOf(payload)
		if !v.IsValid() || !v.Type().Implements(inType) {
			return zero, false
		}
		typed, ok := payload.(In)
		return typed, ok
	}
	typed, ok := payload.(In)
	return typed, ok
}

// ExecutorError is raised when a handler panics, returns an error, or the
// dispatcher cannot resolve a handler for a message (a routing error).
// It mirrors the executor-failed/routing-error kinds in spec §7.
type ExecutorError struct {
	ExecutorID string
	Code       string
	Message    string
	Cause      error
}

func (e *ExecutorError) Error() string {
	if e.ExecutorID != "" {
		return fmt.Sprintf("executor %s: %s", e.ExecutorID, e.Message)
	}
	return e.Message
}

func (e *ExecutorError) Unwrap() error { return e.Cause }
