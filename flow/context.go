package flow

import "context"

// WorkflowContext is the capability set passed to every handler invocation
// (spec §4.2, IWorkflowContext). A handler must not retain it beyond the
// call that received it.
type WorkflowContext struct {
	ctx        context.Context
	runID      string
	executorID string
	d          *Dispatcher

	concurrentRunsEnabled bool

	pendingWrites   []pendingWrite
	pendingSends    []pendingSend
	pendingEvents   []Event
	pendingExternal []pendingExternal
}

type pendingSend struct {
	payload any
}

type pendingExternal struct {
	portID    string
	requestID string
	payload   any
}

func newWorkflowContext(ctx context.Context, d *Dispatcher, executorID string) *WorkflowContext {
	return &WorkflowContext{
		ctx:                   ctx,
		runID:                 d.runID,
		executorID:            executorID,
		d:                     d,
		concurrentRunsEnabled: d.concurrentRunsEnabled,
	}
}

// Context returns the underlying context.Context, carrying the run's
// cancellation token. Handlers should observe it for cooperative
// cancellation (spec §5).
func (wc *WorkflowContext) Context() context.Context { return wc.ctx }

// RunID returns the identifier of the run this handler is executing within.
func (wc *WorkflowContext) RunID() string { return wc.runID }

// ExecutorID returns the id of the executor currently handling a message.
func (wc *WorkflowContext) ExecutorID() string { return wc.executorID }

// ConcurrentRunsEnabled reports whether this executor instance may be
// invoked concurrently by other runs, a hint that the handler must not
// cache state across calls (spec §4.2).
func (wc *WorkflowContext) ConcurrentRunsEnabled() bool { return wc.concurrentRunsEnabled }

// SendMessage enqueues payload to every outgoing edge of the current
// executor, filtered by each edge's predicate/partitioner. The send is
// buffered and only takes effect if the handler returns without error,
// preserving call order relative to other SendMessage calls made in the
// same invocation (spec §5 ordering guarantee): a
// handler's effects are all-or-nothing, so a partial failure never lets
// some sends through while discarding others.
func (wc *WorkflowContext) SendMessage(payload any) {
	wc.pendingSends = append(wc.pendingSends, pendingSend{payload: payload})
}

// AddEvent appends an observability event to the run's event stream. Like
// sends and writes, events are only published if the handler succeeds.
func (wc *WorkflowContext) AddEvent(ev Event) {
	wc.pendingEvents = append(wc.pendingEvents, ev)
}

// ReadState reads the current value of key in the given scope. scopeName is
// variadic purely so callers can omit it for the private scope; passing
// more than one name is a programming error and only the first is used.
func (wc *WorkflowContext) ReadState(key string, scopeName ...string) (any, bool) {
	scope := wc.scopeFor(scopeName...)
	if v, ok := wc.pendingOverride(scope, key); ok {
		return v, true
	}
	return wc.d.state.read(scope, key)
}

// ReadOrInitState reads key, writing init as its value (queued, same as
// QueueStateUpdate) only if the key is currently absent.
func (wc *WorkflowContext) ReadOrInitState(key string, init any, scopeName ...string) any {
	scope := wc.scopeFor(scopeName...)
	if v, ok := wc.pendingOverride(scope, key); ok {
		return v
	}
	if v, ok := wc.d.state.read(scope, key); ok {
		return v
	}
	wc.QueueStateUpdate(key, init, scopeName...)
	return init
}

// QueueStateUpdate buffers a write to key in the given scope. The write is
// applied when the handler returns successfully; it is visible to this
// handler's own subsequent ReadState calls immediately (spec invariant 4).
func (wc *WorkflowContext) QueueStateUpdate(key string, value any, scopeName ...string) {
	scope := wc.scopeFor(scopeName...)
	wc.pendingWrites = append(wc.pendingWrites, pendingWrite{scope: scope, key: key, value: value})
}

func (wc *WorkflowContext) scopeFor(scopeName ...string) ScopeID {
	if len(scopeName) > 0 && scopeName[0] != "" {
		return ScopeID{Name: scopeName[0]}
	}
	return ScopeID{ExecutorID: wc.executorID}
}

// pendingOverride returns the most recent buffered write to (scope, key)
// made by this handler invocation, if any — last-write-wins within a call.
func (wc *WorkflowContext) pendingOverride(scope ScopeID, key string) (any, bool) {
	norm := scope.normalize()
	for i := len(wc.pendingWrites) - 1; i >= 0; i-- {
		w := wc.pendingWrites[i]
		if w.scope.normalize() == norm && w.key == key {
			return w.value, true
		}
	}
	return nil, false
}

// RequestExternal validates payload against portID's declared request type
// and, once the handler returns successfully, emits an ExternalRequest for
// it — pausing the run until a matching ExternalResponse is supplied via
// Run.Resume / StreamingRun.Resume (spec §3, §6). The type check happens
// synchronously, here, per spec §7 ("External interface mismatch (port
// type) | Thrown at enqueue"); the actual request is only raised if the
// handler does not subsequently error, consistent with every other
// WorkflowContext effect.
func (wc *WorkflowContext) RequestExternal(portID string, payload any) (string, error) {
	spec, ok := wc.d.wf.ports[portID]
	if !ok {
		return "", &ErrUnknownPort{PortID: portID}
	}
	if !assignable(payload, spec.RequestType) {
		return "", &ErrPortTypeMismatch{PortID: portID, Want: spec.RequestType, Got: payload}
	}
	if err := validatePortSchema(spec.RequestSchema, payload); err != nil {
		return "", &ErrPortTypeMismatch{PortID: portID, Want: spec.RequestType, Got: payload, Cause: err}
	}
	requestID := newID()
	wc.pendingExternal = append(wc.pendingExternal, pendingExternal{
		portID: portID, requestID: requestID, payload: payload,
	})
	return requestID, nil
}

// RecordIO stores a value an external call produced, keyed by this
// executor's id and the given attempt label, so that a later resume from a
// checkpoint can retrieve it via ReplayedIO instead of calling out again.
func (wc *WorkflowContext) RecordIO(label string, value any) {
	wc.d.recordIO(wc.executorID, label, value)
}

// ReplayedIO returns a previously recorded value for this executor and
// label, if the current run was resumed from a checkpoint that captured
// one.
func (wc *WorkflowContext) ReplayedIO(label string) (any, bool) {
	return wc.d.replayedIO(wc.executorID, label)
}
