package worker

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetkit/workerstd/v1/logger"
)

func withMessageContext(ctx context.Context, queue string) (context.Context, string) {
	id := uuid.NewString()
	ctx = logger.WithQueueName(ctx, queue)
	ctx = logger.WithCorrelationID(ctx, id)
	return ctx, id
}

// startSpan starts a span for one message or batch when a tracer is
// configured. The returned function ends it.
func (w *Worker) startSpan(ctx context.Context, name string, attrs map[string]interface{}, opts ...trace.SpanStartOption) (context.Context, func(err error, attrs map[string]interface{})) {
	if w.p.Tracer == nil {
		return ctx, func(error, map[string]interface{}) {}
	}
	ctx, span := w.p.Tracer.StartSpan(ctx, name, opts...)
	w.p.Tracer.SetAttributes(span, attrs)
	return ctx, func(err error, attrs map[string]interface{}) {
		if err != nil {
			w.p.Tracer.RecordErrorOnSpan(span, err)
		}
		w.p.Tracer.SetAttributes(span, attrs)
		span.End()
	}
}
