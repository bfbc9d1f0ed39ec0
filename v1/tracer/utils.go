package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fleetkit/workerstd"

// StartSpan starts a span named name as a child of the span in ctx.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.provider.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// LinksFromHeaders returns a link to the remote span context carried by each
// header table. Tables without a valid span context are skipped.
func (t *Tracer) LinksFromHeaders(headers ...map[string]interface{}) []trace.Link {
	var links []trace.Link
	for _, h := range headers {
		sc := trace.SpanContextFromContext(t.ExtractHeaders(context.Background(), h))
		if sc.IsValid() {
			links = append(links, trace.Link{SpanContext: sc})
		}
	}
	return links
}

// RecordErrorOnSpan records err on span and marks the span as failed.
func (t *Tracer) RecordErrorOnSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes converts attrs to OpenTelemetry attributes. Unknown value
// types are formatted with fmt.
func (t *Tracer) SetAttributes(span trace.Span, attrs map[string]interface{}) {
	if len(attrs) == 0 {
		return
	}
	attributes := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			attributes = append(attributes, attribute.String(k, val))
		case int:
			attributes = append(attributes, attribute.Int(k, val))
		case int64:
			attributes = append(attributes, attribute.Int64(k, val))
		case float64:
			attributes = append(attributes, attribute.Float64(k, val))
		case bool:
			attributes = append(attributes, attribute.Bool(k, val))
		default:
			attributes = append(attributes, attribute.String(k, fmt.Sprint(val)))
		}
	}
	span.SetAttributes(attributes...)
}

// InjectHeaders writes the span context of ctx into message headers.
// headers is typically an amqp.Table and must not be nil.
func (t *Tracer) InjectHeaders(ctx context.Context, headers map[string]interface{}) {
	t.propagator.Inject(ctx, HeaderCarrier(headers))
}

// ExtractHeaders returns a copy of ctx carrying the remote span context found
// in message headers, if any.
func (t *Tracer) ExtractHeaders(ctx context.Context, headers map[string]interface{}) context.Context {
	if headers == nil {
		return ctx
	}
	return t.propagator.Extract(ctx, HeaderCarrier(headers))
}
