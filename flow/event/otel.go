package event

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each lifecycle event into a single OpenTelemetry span,
// started and ended immediately (events are points in time, not durations).
// Grounded on graph/emit/otel.go, adapted from a flat RunID/Step/NodeID/
// Msg/Meta record to this package's typed event kinds: the span name
// becomes the Go type name and attributes are populated per kind instead of
// from a free-form Meta map.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an Emitter backed by tracer (e.g.
// otel.Tracer("agentflow")).
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(ev Event) {
	o.emitOne(context.Background(), ev)
}

func (o *OTelEmitter) emitOne(ctx context.Context, ev Event) {
	name := fmt.Sprintf("%T", ev)
	_, span := o.tracer.Start(ctx, name)
	defer span.End()

	attrs := []attribute.KeyValue{attribute.String("run_id", ev.RunID())}

	switch e := ev.(type) {
	case ExecutorInvoked:
		attrs = append(attrs, attribute.String("executor_id", e.ExecutorID))
	case ExecutorCompleted:
		attrs = append(attrs, attribute.String("executor_id", e.ExecutorID))
	case ExecutorFailed:
		attrs = append(attrs, attribute.String("executor_id", e.ExecutorID))
		span.SetStatus(codes.Error, e.Err.Error())
		span.RecordError(e.Err)
	case AgentRunResponse:
		attrs = append(attrs, attribute.String("executor_id", e.ExecutorID))
	case AgentRunUpdate:
		attrs = append(attrs, attribute.String("executor_id", e.ExecutorID))
	case WorkflowError:
		span.SetStatus(codes.Error, e.Err.Error())
		span.RecordError(e.Err)
	case RunEnded:
		attrs = append(attrs, attribute.String("status", e.Status))
	}
	span.SetAttributes(attrs...)
}

// EmitBatch starts and ends one span per event, in order.
func (o *OTelEmitter) EmitBatch(ctx context.Context, evs []Event) error {
	for _, ev := range evs {
		o.emitOne(ctx, ev)
	}
	return nil
}

// Flush is a no-op here: the tracer provider owns its own export buffering.
// Callers wanting a guaranteed flush should call ForceFlush on their
// *sdktrace.TracerProvider directly during shutdown.
func (o *OTelEmitter) Flush(context.Context) error { return nil }
