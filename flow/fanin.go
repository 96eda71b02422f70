package flow

// faninBuffers tracks, per fan-in edge, the most recent contribution from
// each source that has reported in the current gating round (spec §4.3:
// "latest-per-source" policy — a second message from the same source
// before its peers contribute replaces the first, and the replacement is
// what ships when the round fires).
type faninBuffers struct {
	// byEdge[edgeID][sourceID] = latest payload from sourceID this round.
	byEdge map[int]map[string]any
}

func newFaninBuffers() *faninBuffers {
	return &faninBuffers{byEdge: make(map[int]map[string]any)}
}

// contribute records payload from source against edge and reports whether
// every declared source has now contributed at least once this round
// (i.e. the edge should fire). On fire, the round's buffer is cleared so a
// fresh round begins.
func (f *faninBuffers) contribute(e *Edge, source string, payload any) (bundle FanInBundle, fired bool) {
	bucket, ok := f.byEdge[e.id]
	if !ok {
		bucket = make(map[string]any, len(e.Sources))
		f.byEdge[e.id] = bucket
	}
	bucket[source] = payload

	for _, s := range e.Sources {
		if _, ok := bucket[s]; !ok {
			return nil, false
		}
	}

	out := make(FanInBundle, len(e.Sources))
	for i, s := range e.Sources {
		out[i] = bucket[s]
	}
	f.byEdge[e.id] = make(map[string]any, len(e.Sources)) // new round
	return out, true
}

// snapshot captures the buffer contents for checkpointing.
func (f *faninBuffers) snapshot() map[int]map[string]any {
	out := make(map[int]map[string]any, len(f.byEdge))
	for id, bucket := range f.byEdge {
		cp := make(map[string]any, len(bucket))
		for k, v := range bucket {
			cp[k] = v
		}
		out[id] = cp
	}
	return out
}

func (f *faninBuffers) restore(snap map[int]map[string]any) {
	f.byEdge = make(map[int]map[string]any, len(snap))
	for id, bucket := range snap {
		cp := make(map[string]any, len(bucket))
		for k, v := range bucket {
			cp[k] = v
		}
		f.byEdge[id] = cp
	}
}
