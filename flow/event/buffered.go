package event

import (
	"context"
	"sync"
)

// BufferedEmitter stores every event in memory, organized by run id, and
// offers simple filtered retrieval. Grounded on graph/emit/buffered.go,
// the teacher's primary test-observability tool. The tests in this repo do
// not use it; they wire their own small Emitter where they observe events.
type BufferedEmitter struct {
	mu      sync.Mutex
	history map[string][]Event
}

// NewBufferedEmitter returns an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{history: make(map[string][]Event)}
}

func (b *BufferedEmitter) Emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[ev.RunID()] = append(b.history[ev.RunID()], ev)
}

func (b *BufferedEmitter) EmitBatch(_ context.Context, evs []Event) error {
	for _, ev := range evs {
		b.Emit(ev)
	}
	return nil
}

func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// History returns a copy of every event recorded for runID, in emission
// order.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.history[runID]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// Clear discards the history for runID, or every run if runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if runID == "" {
		b.history = make(map[string][]Event)
		return
	}
	delete(b.history, runID)
}
