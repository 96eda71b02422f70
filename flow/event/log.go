package event

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes structured log output to a writer, in either
// human-readable text or JSON-lines form. Grounded on graph/emit/log.go.
type LogEmitter struct {
	w        io.Writer
	jsonMode bool
}

// NewLogEmitter returns a LogEmitter writing to w (os.Stdout if nil). When
// jsonMode is true, each event is written as one JSON object per line.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{w: w, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(ev Event) {
	if l.jsonMode {
		l.emitJSON(ev)
		return
	}
	l.emitText(ev)
}

func (l *LogEmitter) emitJSON(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		_, _ = fmt.Fprintf(l.w, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.w, "%s\n", data)
}

func (l *LogEmitter) emitText(ev Event) {
	_, _ = fmt.Fprintf(l.w, "[%T] run=%s %+v\n", ev, ev.RunID(), ev)
}

// EmitBatch writes each event in order; see LogEmitter.Emit.
func (l *LogEmitter) EmitBatch(_ context.Context, evs []Event) error {
	for _, ev := range evs {
		l.Emit(ev)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously with no internal
// buffering. Wrap w in a bufio.Writer and flush it directly if buffering
// is desired.
func (l *LogEmitter) Flush(context.Context) error { return nil }
