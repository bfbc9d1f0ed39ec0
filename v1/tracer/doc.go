// Package tracer sets up OpenTelemetry tracing for workers and carries span
// contexts across the broker through message headers.
//
// The publisher injects the current span context into the headers of every
// message it sends; the worker extracts it from incoming deliveries and starts
// a consume span per message or batch, so a retried message stays part of the
// trace that produced it.
//
//	t, err := tracer.NewClient(tracer.Config{ServiceName: "orders-worker"}, log)
//	headers := amqp.Table{}
//	t.InjectHeaders(ctx, headers)
//	...
//	ctx = t.ExtractHeaders(ctx, delivery.Headers)
//	ctx, span := t.StartSpan(ctx, "consume orders")
//	defer span.End()
package tracer
