package flow

import (
	"context"

	"github.com/dshills/agentflow/flow/metrics"
)

// RunOption configures a Run or StreamingRun at construction time.
type RunOption func(*dispatcherConfig)

// WithEmitter sets the event sink for a run. Defaults to a no-op emitter.
func WithEmitter(e Emitter) RunOption {
	return func(c *dispatcherConfig) { c.emitter = e }
}

// WithCheckpoints sets the checkpoint manager for a run. Defaults to an
// in-memory manager, meaning checkpoints do not outlive the process.
func WithCheckpoints(m CheckpointManager) RunOption {
	return func(c *dispatcherConfig) { c.checkpoints = m }
}

// WithExecutorPolicy sets the timeout/retry-classification policy for one
// executor id.
func WithExecutorPolicy(executorID string, p ExecutorPolicy) RunOption {
	return func(c *dispatcherConfig) {
		if c.policies == nil {
			c.policies = map[string]ExecutorPolicy{}
		}
		c.policies[executorID] = p
	}
}

// WithDefaultPolicy sets the fallback timeout applied to executors with no
// policy of their own.
func WithDefaultPolicy(p ExecutorPolicy) RunOption {
	return func(c *dispatcherConfig) { c.defaultPolicy = p }
}

// WithCheckpointEvery enables automatic checkpointing every n supersteps (n
// > 0). Checkpoints can always be taken on demand via CheckpointNow
// regardless of this setting.
func WithCheckpointEvery(n int) RunOption {
	return func(c *dispatcherConfig) { c.checkpointEverySupersteps = n }
}

// WithMetrics attaches a Prometheus recorder to the run's dispatcher.
// Defaults to nil, meaning no metrics are recorded.
func WithMetrics(r *metrics.Recorder) RunOption {
	return func(c *dispatcherConfig) { c.metrics = r }
}

func buildConfig(opts []RunOption) dispatcherConfig {
	var cfg dispatcherConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Run is the buffered run controller (spec §4.6): it drives the dispatcher
// to completion (or to a pause on an external request) and exposes the
// final result and any outstanding ExternalRequests, without requiring the
// caller to consume a live event stream.
type Run struct {
	d      *Dispatcher
	cancel context.CancelFunc
}

// RunSync starts wf with input and drives it to completion, pausing early if
// a handler calls RequestExternal. Use Resume to supply responses and
// continue a paused run.
func RunSync(ctx context.Context, wf *Workflow, input any, opts ...RunOption) (*Run, error) {
	runID := newID()
	d := newDispatcher(wf, runID, buildConfig(opts))
	d.seed(input)

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{d: d, cancel: cancel}
	if err := r.drive(runCtx); err != nil {
		return r, err
	}
	return r, nil
}

// RunCheckpointed behaves like RunSync but resumes from a prior checkpoint
// instead of seeding fresh input.
func RunCheckpointed(ctx context.Context, wf *Workflow, checkpointID string, opts ...RunOption) (*Run, error) {
	runID := newID()
	d := newDispatcher(wf, runID, buildConfig(opts))
	cp, err := d.checkpts.Lookup(ctx, checkpointID)
	if err != nil {
		d.emitter.Emit(WorkflowError{Base: NewBase(runID), Err: err})
		return nil, err
	}
	d.runID = cp.RunID
	d.restore(cp)
	for id := range wf.factories {
		inst, ierr := d.instanceFor(id)
		if ierr != nil || inst.onRestored == nil {
			continue
		}
		wc := newWorkflowContext(ctx, d, id)
		if herr := inst.onRestored(wc); herr != nil {
			return nil, herr
		}
		d.state.apply(wc.pendingWrites)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{d: d, cancel: cancel}
	if err := r.drive(runCtx); err != nil {
		return r, err
	}
	return r, nil
}

// drive steps the dispatcher until it drains, pauses, or fails.
func (r *Run) drive(ctx context.Context) error {
	for {
		if r.d.paused {
			r.d.emitter.Emit(RunEnded{Base: NewBase(r.d.runID), Status: "Paused"})
			return nil
		}
		drained, err := r.d.step(ctx)
		if err != nil {
			re := err.(*runErr)
			r.d.emitter.Emit(RunEnded{Base: NewBase(r.d.runID), Status: re.status})
			return re.err
		}
		if r.d.shouldCheckpoint() {
			if _, cerr := r.d.checkpoint(ctx); cerr != nil {
				r.d.emitter.Emit(WorkflowError{Base: NewBase(r.d.runID), Err: cerr})
				return cerr
			}
		}
		if r.d.paused {
			continue
		}
		if drained {
			status := "Completed"
			r.d.emitter.Emit(WorkflowCompleted{Base: NewBase(r.d.runID), Result: r.d.result})
			r.d.emitter.Emit(RunEnded{Base: NewBase(r.d.runID), Status: status})
			return nil
		}
	}
}

// Result returns the workflow's output, if its designated output sink has
// produced one.
func (r *Run) Result() (any, bool) { return r.d.result, r.d.hasResult }

// PendingExternalRequests returns the external requests raised since the run
// last paused or resumed, in the order they were raised.
func (r *Run) PendingExternalRequests() []ExternalRequest {
	out := make([]ExternalRequest, len(r.d.externalRequests))
	copy(out, r.d.externalRequests)
	return out
}

// Resume supplies responses to some or all outstanding external requests and
// continues driving the run. A response whose payload does not match its
// port's declared type or schema is rejected synchronously (spec §7).
func (r *Run) Resume(ctx context.Context, responses []ExternalResponse) error {
	if err := r.enqueueResponses(responses); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	return r.drive(runCtx)
}

// enqueueResponses validates responses against their ports' declared
// type/schema and, if every one passes, clears the pending-external
// bookkeeping and enqueues each response to the executor that requested it.
func (r *Run) enqueueResponses(responses []ExternalResponse) error {
	for _, resp := range responses {
		spec, ok := r.d.wf.ports[resp.PortID]
		if !ok {
			return &ErrUnknownPort{PortID: resp.PortID}
		}
		if !assignable(resp.Payload, spec.ResponseType) {
			return &ErrPortTypeMismatch{PortID: resp.PortID, Want: spec.ResponseType, Got: resp.Payload}
		}
		if err := validatePortSchema(spec.ResponseSchema, resp.Payload); err != nil {
			return &ErrPortTypeMismatch{PortID: resp.PortID, Want: spec.ResponseType, Got: resp.Payload, Cause: err}
		}
	}

	r.d.externalRequests = nil
	r.d.paused = false
	for _, resp := range responses {
		target := r.resolveExternalTarget(resp.PortID)
		r.d.enqueue(queuedMessage{Target: target, Payload: resp, Source: resp.PortID})
	}
	return nil
}

// resolveExternalTarget finds the executor that should receive a response
// for portID: by convention, the executor that most recently called
// RequestExternal for that port. The builder records no explicit
// port-to-executor binding, so the dispatcher tracks it at request time.
func (r *Run) resolveExternalTarget(portID string) string {
	return r.d.portOwners[portID]
}

// CheckpointNow forces an immediate checkpoint regardless of the configured
// cadence.
func (r *Run) CheckpointNow(ctx context.Context) (CheckpointInfo, error) {
	return r.d.checkpoint(ctx)
}

// Cancel requests cooperative cancellation of the run's context.
func (r *Run) Cancel() { r.cancel() }

// StreamingRun is the pull-based run controller (spec §4.6): callers read
// events from Events() as they are produced instead of waiting for
// completion.
type StreamingRun struct {
	*Run
	events chan Event
}

// Stream starts wf with input and returns a StreamingRun whose Events
// channel is closed once the run halts (completes, pauses, or fails).
func Stream(ctx context.Context, wf *Workflow, input any, opts ...RunOption) *StreamingRun {
	events := make(chan Event, 64)
	runCtx, cancel := context.WithCancel(ctx)

	cfg := buildConfig(opts)
	cfg.emitter = &fanoutEmitter{primary: cfg.emitter, ch: events, done: runCtx.Done()}

	runID := newID()
	d := newDispatcher(wf, runID, cfg)
	d.seed(input)

	sr := &StreamingRun{Run: &Run{d: d, cancel: cancel}, events: events}
	go func() {
		defer close(events)
		_ = sr.drive(runCtx)
	}()
	return sr
}

// Events returns the channel of lifecycle events produced by this run.
func (sr *StreamingRun) Events() <-chan Event { return sr.events }

// ResumeStream behaves like StreamingRun.Resume but returns a fresh event
// channel for the resumed portion of the run.
func (sr *StreamingRun) ResumeStream(ctx context.Context, responses []ExternalResponse) <-chan Event {
	events := make(chan Event, 64)
	runCtx, cancel := context.WithCancel(ctx)
	sr.cancel = cancel
	if fe, ok := sr.d.emitter.(*fanoutEmitter); ok {
		fe.ch = events
		fe.done = runCtx.Done()
	}
	sr.events = events
	go func() {
		defer close(events)
		if err := sr.enqueueResponses(responses); err != nil {
			return
		}
		_ = sr.drive(runCtx)
	}()
	return events
}

// fanoutEmitter relays every event to an optional primary sink and onto a
// channel for StreamingRun consumers. The send to ch blocks until either
// the consumer drains it or the run's context is done, so a slow or
// abandoned consumer never silently loses a lifecycle event — it instead
// backpressures the run, same as any other blocked channel send would.
type fanoutEmitter struct {
	primary Emitter
	ch      chan Event
	done    <-chan struct{}
}

func (f *fanoutEmitter) Emit(ev Event) {
	if f.primary != nil {
		f.primary.Emit(ev)
	}
	select {
	case f.ch <- ev:
	case <-f.done:
	}
}

func (f *fanoutEmitter) EmitBatch(ctx context.Context, evs []Event) error {
	for _, ev := range evs {
		f.Emit(ev)
	}
	return nil
}

func (f *fanoutEmitter) Flush(ctx context.Context) error {
	if f.primary != nil {
		return f.primary.Flush(ctx)
	}
	return nil
}
