package flow

// EdgeKind tags the three edge shapes the runtime supports (spec §3).
type EdgeKind int

const (
	// DirectEdge connects exactly one source to one target, optionally
	// gated by a Predicate.
	DirectEdge EdgeKind = iota
	// FanOutEdge connects one source to an ordered list of targets,
	// optionally narrowed by a Partitioner.
	FanOutEdge
	// FanInEdge connects an ordered list of sources to one target, firing
	// the target once per gating round after every source has contributed.
	FanInEdge
)

// Predicate gates a DirectEdge. It sees only the message, never context
// (spec §4.3: "predicates see the message only, not context").
type Predicate func(msg any) bool

// Partitioner narrows the targets of a FanOutEdge to a subset of indices
// into the edge's Targets list. A nil Partitioner means broadcast to all
// targets.
type Partitioner func(msg any, n int) []int

// Edge is a directed connection between executors. Exactly the fields
// relevant to Kind are meaningful; see DirectEdge/FanOutEdge/FanInEdge.
type Edge struct {
	Kind EdgeKind

	// Source is the originating executor id for DirectEdge and FanOutEdge.
	Source string
	// Target is the single destination executor id for DirectEdge and
	// FanInEdge.
	Target string
	// Targets is the ordered destination list for FanOutEdge.
	Targets []string
	// Sources is the ordered source list for FanInEdge.
	Sources []string

	Predicate   Predicate
	Partitioner Partitioner

	// id is a stable, build-time-assigned identifier used to key the
	// dispatcher's fan-in gating buffers. Not exposed to callers.
	id int
}

// NewDirectEdge builds a one-to-one edge, optionally predicated.
func NewDirectEdge(source, target string, when Predicate) Edge {
	return Edge{Kind: DirectEdge, Source: source, Target: target, Predicate: when}
}

// NewFanOutEdge builds a one-to-many edge. A nil partitioner broadcasts to
// every target.
func NewFanOutEdge(source string, targets []string, partitioner Partitioner) Edge {
	cp := make([]string, len(targets))
	copy(cp, targets)
	return Edge{Kind: FanOutEdge, Source: source, Targets: cp, Partitioner: partitioner}
}

// NewFanInEdge builds a many-to-one edge gated on all sources having
// contributed in the current round.
func NewFanInEdge(sources []string, target string) Edge {
	cp := make([]string, len(sources))
	copy(cp, sources)
	return Edge{Kind: FanInEdge, Sources: cp, Target: target}
}

// sourcesOf returns every executor id that can originate traffic on this
// edge, used to build the dispatcher's outgoing-edge index.
func (e Edge) sourcesOf() []string {
	switch e.Kind {
	case DirectEdge, FanOutEdge:
		return []string{e.Source}
	case FanInEdge:
		return e.Sources
	default:
		return nil
	}
}

// endpointIDs returns every executor id this edge names, source and target
// alike, so Build can check each one against the registered executors
// (spec §3: "Every edge endpoint must resolve to a registered executor at
// build time").
func (e Edge) endpointIDs() []string {
	switch e.Kind {
	case DirectEdge:
		return []string{e.Source, e.Target}
	case FanOutEdge:
		out := append([]string{e.Source}, e.Targets...)
		return out
	case FanInEdge:
		out := append([]string{}, e.Sources...)
		return append(out, e.Target)
	default:
		return nil
	}
}
