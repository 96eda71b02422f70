package flow

// ioRecords backs WorkflowContext.RecordIO/ReplayedIO: a deterministic-
// replay aid, not an automatic interception mechanism — a handler must
// explicitly call RecordIO after an external call and ReplayedIO before
// making one, opting each call site into replay.
type ioRecords struct {
	// byExecutor[executorID][label] = recorded value.
	byExecutor map[string]map[string]any
}

func newIORecords() *ioRecords {
	return &ioRecords{byExecutor: make(map[string]map[string]any)}
}

func (r *ioRecords) record(executorID, label string, value any) {
	bucket, ok := r.byExecutor[executorID]
	if !ok {
		bucket = make(map[string]any)
		r.byExecutor[executorID] = bucket
	}
	bucket[label] = value
}

func (r *ioRecords) lookup(executorID, label string) (any, bool) {
	bucket, ok := r.byExecutor[executorID]
	if !ok {
		return nil, false
	}
	v, ok := bucket[label]
	return v, ok
}

// snapshot exports the recordings made so far, for inclusion in a Checkpoint.
func (r *ioRecords) snapshot() map[string]map[string]any {
	out := make(map[string]map[string]any, len(r.byExecutor))
	for exec, bucket := range r.byExecutor {
		cp := make(map[string]any, len(bucket))
		for k, v := range bucket {
			cp[k] = v
		}
		out[exec] = cp
	}
	return out
}

// seedReplay merges a resumed checkpoint's recordings into the live set, so
// a resumed run's ReplayedIO calls answer with exactly what the original run
// recorded, while still allowing new call sites added after the checkpoint
// was taken to record fresh values.
func (r *ioRecords) seedReplay(snap map[string]map[string]any) {
	for exec, bucket := range snap {
		dst, ok := r.byExecutor[exec]
		if !ok {
			dst = make(map[string]any, len(bucket))
			r.byExecutor[exec] = dst
		}
		for k, v := range bucket {
			dst[k] = v
		}
	}
}
