package logger

import "context"

// Field names used for the values carried in a context.
const (
	CorrelationIDField = "correlation_id"
	QueueNameField     = "queue_name"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	queueNameKey
)

// WithCorrelationID returns a copy of ctx carrying the correlation id of the
// message or batch being processed. Every *WithContext entry logged with the
// returned context includes it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation id stored in ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// WithQueueName returns a copy of ctx carrying the name of the consumed queue.
func WithQueueName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, queueNameKey, name)
}

// QueueName returns the queue name stored in ctx, or "".
func QueueName(ctx context.Context) string {
	name, _ := ctx.Value(queueNameKey).(string)
	return name
}
