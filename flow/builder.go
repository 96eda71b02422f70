package flow

import (
	"fmt"
	"reflect"
)

// Workflow is the immutable, validated graph produced by Builder.Build. It
// holds executor factories (not instances — see Dispatcher.instanceFor) and
// the edge/port topology every run replays identically.
type Workflow struct {
	factories     map[string]func() *Executor
	edgesBySource map[string][]*Edge
	startID       string
	inputType     reflect.Type
	ports         map[string]PortSpec
	outputSinkID  string
}

// nodeSpec is one Builder-registered executor: either bound (a concrete
// *Executor value, wrapped in a factory that always returns it) or declared
// by factory (a fresh instance per run, the common case for non-shareable
// executors holding per-run resources).
type nodeSpec struct {
	id      string
	factory func() *Executor
}

// Builder assembles a Workflow from executors, edges, and ports, performing
// the build-time validity checks spec §3 requires before a run can start.
// Grounded on graph/options.go's functional-options builder, generalized
// from one generic-state graph constructor to the spec's heterogeneous
// executor/edge/port registration.
type Builder struct {
	nodes   map[string]nodeSpec
	edges   []*Edge
	ports   map[string]PortSpec
	startID string

	inputType    reflect.Type
	outputSinkID string

	nextEdgeID int
	errs       []error
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]nodeSpec),
		ports: make(map[string]PortSpec),
	}
}

// AddExecutor registers a concrete, already-constructed executor. The same
// *Executor instance is reused across every run whether or not
// e.IsShareable() reports true; for a non-shareable executor, callers are
// responsible for not sharing stateful fields — prefer AddUnbound for
// executors that need fresh per-run instances.
func (b *Builder) AddExecutor(e *Executor) *Builder {
	if e.ID() == "" {
		b.errs = append(b.errs, ErrEmptyExecutorID)
		return b
	}
	if _, dup := b.nodes[e.ID()]; dup {
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrDuplicateExecutor, e.ID()))
		return b
	}
	b.nodes[e.ID()] = nodeSpec{id: e.ID(), factory: func() *Executor { return e }}
	return b
}

// AddUnbound registers an executor id whose instance is produced fresh by
// factory on first use in each run (spec §4.2: "executors are instantiated
// lazily... an instance may be shared across concurrent runs only if marked
// Shareable"). factory must return an *Executor with id ID.
func (b *Builder) AddUnbound(id string, factory func() *Executor) *Builder {
	if id == "" {
		b.errs = append(b.errs, ErrEmptyExecutorID)
		return b
	}
	if _, dup := b.nodes[id]; dup {
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrDuplicateExecutor, id))
		return b
	}
	b.nodes[id] = nodeSpec{id: id, factory: factory}
	return b
}

// AddEdge adds a direct edge, optionally predicated.
func (b *Builder) AddEdge(source, target string, when Predicate) *Builder {
	e := NewDirectEdge(source, target, when)
	e.id = b.nextEdgeID
	b.nextEdgeID++
	b.edges = append(b.edges, &e)
	return b
}

// AddFanOutEdge adds a fan-out edge, optionally partitioned.
func (b *Builder) AddFanOutEdge(source string, targets []string, partitioner Partitioner) *Builder {
	e := NewFanOutEdge(source, targets, partitioner)
	e.id = b.nextEdgeID
	b.nextEdgeID++
	b.edges = append(b.edges, &e)
	return b
}

// AddFanInEdge adds a fan-in edge gating on every listed source.
func (b *Builder) AddFanInEdge(sources []string, target string) *Builder {
	e := NewFanInEdge(sources, target)
	e.id = b.nextEdgeID
	b.nextEdgeID++
	b.edges = append(b.edges, &e)
	return b
}

// WithStart designates the executor that receives the workflow's input
// message and declares the type that input must be assignable to.
func (b *Builder) WithStart(id string, inputType reflect.Type) *Builder {
	b.startID = id
	b.inputType = inputType
	return b
}

// AddPort declares an external request/response port.
func (b *Builder) AddPort(spec PortSpec) *Builder {
	b.ports[spec.ID] = spec
	return b
}

// WithOutputSink designates the executor whose AddHandlerWithOutput return
// value becomes the workflow's overall result (spec §4.6: RunSync resolves
// with this executor's output).
func (b *Builder) WithOutputSink(id string) *Builder {
	b.outputSinkID = id
	return b
}

// Build validates the graph and produces an immutable Workflow, or an error
// describing the first class of problem found (spec §3's build-time
// validity checks: unresolved endpoints, missing start, duplicate edges,
// duplicate routes, start-type mismatch).
func (b *Builder) Build() (*Workflow, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if b.startID == "" {
		return nil, ErrNoStartExecutor
	}
	if _, ok := b.nodes[b.startID]; !ok {
		return nil, fmt.Errorf("%w: start executor %q", ErrUnknownEndpoint, b.startID)
	}

	for _, e := range b.edges {
		for _, id := range e.endpointIDs() {
			if _, ok := b.nodes[id]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, id)
			}
		}
	}

	seenDirect := make(map[[2]string]bool)
	for _, e := range b.edges {
		if e.Kind != DirectEdge || e.Predicate != nil {
			continue
		}
		key := [2]string{e.Source, e.Target}
		if seenDirect[key] {
			return nil, fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, e.Source, e.Target)
		}
		seenDirect[key] = true
	}

	if b.inputType != nil {
		startExec := b.nodes[b.startID].factory()
		matched := false
		for _, in := range startExec.InputTypes() {
			if in == b.inputType || (in.Kind() == reflect.Interface && b.inputType.Implements(in)) {
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: start executor %q has no handler for %s", ErrStartTypeMismatch, b.startID, b.inputType)
		}
	}

	for id, spec := range b.nodes {
		seenInputs := make(map[reflect.Type]bool)
		for _, in := range spec.factory().InputTypes() {
			if seenInputs[in] {
				return nil, fmt.Errorf("%w: executor %q, type %s", ErrDuplicateRoute, id, in)
			}
			seenInputs[in] = true
		}
	}

	factories := make(map[string]func() *Executor, len(b.nodes))
	for id, spec := range b.nodes {
		factories[id] = spec.factory
	}

	edgesBySource := make(map[string][]*Edge)
	for _, e := range b.edges {
		for _, src := range e.sourcesOf() {
			edgesBySource[src] = append(edgesBySource[src], e)
		}
	}

	ports := make(map[string]PortSpec, len(b.ports))
	for id, p := range b.ports {
		ports[id] = p
	}

	return &Workflow{
		factories:     factories,
		edgesBySource: edgesBySource,
		startID:       b.startID,
		inputType:     b.inputType,
		ports:         ports,
		outputSinkID:  b.outputSinkID,
	}, nil
}
