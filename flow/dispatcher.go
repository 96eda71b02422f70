package flow

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/dshills/agentflow/flow/event"
	"github.com/dshills/agentflow/flow/metrics"
)

func typeOf(v any) reflect.Type {
	return reflect.TypeOf(v)
}

// Dispatcher runs one workflow run's superstep loop: pop the next queued
// message, route it to a handler, apply the handler's buffered effects on
// success, and repeat until the queue drains or the run halts. Grounded on
// graph/engine.go's Engine[S].Run loop and graph/scheduler.go's
// Frontier/WorkItem FIFO queue, simplified to a plain FIFO per spec §5's
// "a run never invokes two handlers concurrently" and strict send-order
// delivery invariant.
type Dispatcher struct {
	wf    *Workflow
	runID string

	queue []queuedMessage

	state *stateStore
	fanin *faninBuffers
	io    *ioRecords

	instances map[string]*Executor

	emitter  Emitter
	checkpts CheckpointManager
	policies map[string]ExecutorPolicy
	defaultPolicy ExecutorPolicy
	metrics  *metrics.Recorder

	concurrentRunsEnabled bool

	externalRequests []ExternalRequest
	paused           bool
	// portOwners maps a port id to the executor id that last requested it,
	// so Run.Resume can route an ExternalResponse back to that executor.
	portOwners map[string]string

	result    any
	hasResult bool

	superstepsSinceCheckpoint int
	checkpointEverySupersteps int
}

// dispatcherConfig collects Run/StreamingRun construction options so both
// controllers share one setup path.
type dispatcherConfig struct {
	emitter                   Emitter
	checkpoints               CheckpointManager
	policies                  map[string]ExecutorPolicy
	defaultPolicy             ExecutorPolicy
	checkpointEverySupersteps int
	metrics                   *metrics.Recorder
}

func newDispatcher(wf *Workflow, runID string, cfg dispatcherConfig) *Dispatcher {
	if cfg.emitter == nil {
		cfg.emitter = event.NewNullEmitter()
	}
	if cfg.checkpoints == nil {
		cfg.checkpoints = NewMemoryCheckpointManager()
	}
	if cfg.policies == nil {
		cfg.policies = map[string]ExecutorPolicy{}
	}
	return &Dispatcher{
		wf:                        wf,
		runID:                     runID,
		state:                     newStateStore(),
		fanin:                     newFaninBuffers(),
		io:                        newIORecords(),
		instances:                 make(map[string]*Executor),
		portOwners:                make(map[string]string),
		emitter:                   cfg.emitter,
		checkpts:                  cfg.checkpoints,
		policies:                  cfg.policies,
		defaultPolicy:             cfg.defaultPolicy,
		checkpointEverySupersteps: cfg.checkpointEverySupersteps,
		metrics:                   cfg.metrics,
	}
}

// seed enqueues the workflow's initial message to its start executor.
func (d *Dispatcher) seed(input any) {
	d.enqueue(queuedMessage{Target: d.wf.startID, Payload: input, Source: ""})
	d.emitter.Emit(WorkflowStarted{Base: NewBase(d.runID), Data: input})
}

func (d *Dispatcher) enqueue(m queuedMessage) {
	d.queue = append(d.queue, m)
}

func (d *Dispatcher) recordIO(executorID, label string, value any) {
	d.io.record(executorID, label, value)
}

func (d *Dispatcher) replayedIO(executorID, label string) (any, bool) {
	return d.io.lookup(executorID, label)
}

// instanceFor returns the executor instance to invoke for id, instantiating
// it from the Workflow's factory on first use. Non-shareable instances are
// kept in d.instances for the lifetime of this run only (spec §4.2).
func (d *Dispatcher) instanceFor(id string) (*Executor, error) {
	if inst, ok := d.instances[id]; ok {
		return inst, nil
	}
	factory, ok := d.wf.factories[id]
	if !ok {
		return nil, fmt.Errorf("flow: no executor registered for id %q", id)
	}
	inst := factory()
	d.instances[id] = inst
	return inst, nil
}

// runErr is the internal signal that the run must halt, carrying the
// terminal status to report via RunEnded.
type runErr struct {
	status string
	err    error
}

func (e *runErr) Error() string { return e.err.Error() }
func (e *runErr) Unwrap() error { return e.err }

// step executes one superstep: dequeue one message, invoke its handler, and
// apply effects. Returns (drained, err): drained is true once the queue is
// empty and the run should stop cleanly; err is non-nil if the run must halt
// due to a handler failure or cancellation.
func (d *Dispatcher) step(ctx context.Context) (drained bool, err error) {
	if len(d.queue) == 0 {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, &runErr{status: "Cancelled", err: ErrCancelled}
	}

	msg := d.queue[0]
	d.queue = d.queue[1:]

	inst, ierr := d.instanceFor(msg.Target)
	if ierr != nil {
		return false, &runErr{status: "Faulted", err: ierr}
	}

	payloadType := typeOf(msg.Payload)
	r, ok := selectRoute(inst, payloadType)
	if !ok {
		execErr := &ExecutorError{
			ExecutorID: msg.Target,
			Code:       "ROUTING_ERROR",
			Message:    fmt.Sprintf("no handler on %q accepts %s", msg.Target, payloadType),
			Cause:      ErrRoutingFailure,
		}
		d.emitter.Emit(ExecutorFailed{Base: NewBase(d.runID), ExecutorID: msg.Target, Err: execErr})
		if d.metrics != nil {
			d.metrics.RecordFailure(d.runID, msg.Target, execErr.Code)
		}
		return false, &runErr{status: "Faulted", err: execErr}
	}

	d.emitter.Emit(ExecutorInvoked{Base: NewBase(d.runID), ExecutorID: msg.Target, Data: msg.Payload})

	wc := newWorkflowContext(ctx, d, msg.Target)
	policy := d.policies[msg.Target]
	timeout := effectiveTimeout(policy, d.defaultPolicy)

	started := time.Now()
	out, herr := d.invoke(ctx, r, msg.Payload, wc, timeout)
	if d.metrics != nil {
		d.metrics.RecordInvocation(d.runID, msg.Target, time.Since(started))
	}
	if herr != nil {
		execErr := asExecutorError(msg.Target, herr)
		d.emitter.Emit(ExecutorFailed{Base: NewBase(d.runID), ExecutorID: msg.Target, Err: execErr})
		if d.metrics != nil {
			d.metrics.RecordFailure(d.runID, msg.Target, execErr.Code)
		}
		status := "Faulted"
		if herr == ErrCancelled {
			status = "Cancelled"
		}
		return false, &runErr{status: status, err: execErr}
	}

	d.applyEffects(wc, msg.Target, out)
	d.emitter.Emit(ExecutorCompleted{Base: NewBase(d.runID), ExecutorID: msg.Target})

	d.superstepsSinceCheckpoint++
	if d.metrics != nil {
		d.metrics.RecordSuperstep(d.runID)
		d.metrics.SetQueueDepth(len(d.queue))
	}
	return len(d.queue) == 0, nil
}

// invoke calls the handler, enforcing timeout precedence (spec §7) and
// converting a panic into an error so the dispatcher can still halt cleanly
// and report an ExecutorFailed event rather than crashing the process.
func (d *Dispatcher) invoke(ctx context.Context, r route, payload any, wc *WorkflowContext, timeout time.Duration) (out any, err error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	wc.ctx = callCtx

	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("flow: handler panicked: %v", p)}
			}
		}()
		o, e := r.handler(callCtx, payload, wc)
		done <- result{out: o, err: e}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-callCtx.Done():
		if ctx.Err() == nil {
			return nil, fmt.Errorf("flow: handler exceeded its %s timeout: %w", timeout, callCtx.Err())
		}
		return nil, ErrCancelled
	}
}

// applyEffects commits everything a successful handler buffered on wc,
// grouped by kind: all state writes, then all sends (fanning out across
// edges and into fan-in gating), then all events, then all external
// requests. Within each kind the handler's call order is kept
// (spec §5 effect-ordering / atomicity).
func (d *Dispatcher) applyEffects(wc *WorkflowContext, source string, out any) {
	d.state.apply(wc.pendingWrites)

	for _, send := range wc.pendingSends {
		d.route(source, send.payload)
	}

	for _, ev := range wc.pendingEvents {
		d.emitter.Emit(ev)
	}

	for _, ext := range wc.pendingExternal {
		d.externalRequests = append(d.externalRequests, ExternalRequest{
			PortID: ext.portID, RequestID: ext.requestID, Payload: ext.payload,
		})
		d.portOwners[ext.portID] = source
		d.paused = true
	}

	if source == d.wf.outputSinkID && out != nil {
		d.result = out
		d.hasResult = true
	}
}

// route fans a message sent from source out across every outgoing edge
// registered for it, queuing one queuedMessage per resolved target.
func (d *Dispatcher) route(source string, payload any) {
	for _, e := range d.wf.edgesBySource[source] {
		switch e.Kind {
		case DirectEdge:
			if e.Predicate != nil && !e.Predicate(payload) {
				continue
			}
			d.enqueue(queuedMessage{Target: e.Target, Payload: payload, Source: source})

		case FanOutEdge:
			idxs := allIndices(len(e.Targets))
			if e.Partitioner != nil {
				idxs = e.Partitioner(payload, len(e.Targets))
			}
			for _, i := range idxs {
				d.enqueue(queuedMessage{Target: e.Targets[i], Payload: payload, Source: source})
			}

		case FanInEdge:
			bundle, fired := d.fanin.contribute(e, source, payload)
			if fired {
				d.enqueue(queuedMessage{Target: e.Target, Payload: bundle, Source: source})
			}
		}
	}
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// checkpoint assembles and commits a Checkpoint capturing the dispatcher's
// full state, suitable for an exact resume (spec §6).
func (d *Dispatcher) checkpoint(ctx context.Context) (CheckpointInfo, error) {
	for id, inst := range d.instances {
		if inst.onCheckpointing == nil {
			continue
		}
		wc := newWorkflowContext(ctx, d, id)
		if err := inst.onCheckpointing(wc); err != nil {
			return CheckpointInfo{}, err
		}
		d.state.apply(wc.pendingWrites)
	}
	cp := Checkpoint{
		RunID:     d.runID,
		CreatedAt: time.Now(),
		Queue:     append([]queuedMessage(nil), d.queue...),
		State:     d.state.snapshot(),
		FanIn:     d.fanin.snapshot(),
		IO:        d.io.snapshot(),

		Paused:           d.paused,
		ExternalRequests: append([]ExternalRequest(nil), d.externalRequests...),
		PortOwners:       copyStringMap(d.portOwners),

		Result:    d.result,
		HasResult: d.hasResult,
	}
	info, err := d.checkpts.Commit(ctx, cp)
	if err != nil {
		return CheckpointInfo{}, err
	}
	d.superstepsSinceCheckpoint = 0
	d.emitter.Emit(CheckpointCreated{Base: NewBase(d.runID), Info: info})
	if d.metrics != nil {
		d.metrics.RecordCheckpoint(d.runID)
	}
	return info, nil
}

// restore replaces the dispatcher's live state with a previously committed
// Checkpoint's contents.
func (d *Dispatcher) restore(cp Checkpoint) {
	d.queue = append([]queuedMessage(nil), cp.Queue...)
	d.state.restore(cp.State)
	d.fanin.restore(cp.FanIn)
	d.io.seedReplay(cp.IO)
	d.paused = cp.Paused
	d.externalRequests = append([]ExternalRequest(nil), cp.ExternalRequests...)
	d.portOwners = copyStringMap(cp.PortOwners)
	d.result = cp.Result
	d.hasResult = cp.HasResult
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// shouldCheckpoint reports whether enough supersteps have elapsed to take an
// automatic checkpoint, per the dispatcher's configured cadence. A cadence
// of zero disables automatic checkpointing (callers may still call
// CheckpointNow explicitly).
func (d *Dispatcher) shouldCheckpoint() bool {
	return d.checkpointEverySupersteps > 0 && d.superstepsSinceCheckpoint >= d.checkpointEverySupersteps
}

func asExecutorError(executorID string, err error) *ExecutorError {
	if ee, ok := err.(*ExecutorError); ok {
		return ee
	}
	code := "HANDLER_ERROR"
	if err == ErrCancelled {
		code = "CANCELLED"
	}
	return &ExecutorError{ExecutorID: executorID, Code: code, Message: err.Error(), Cause: err}
}
