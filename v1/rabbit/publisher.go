package rabbit

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HeaderInjector writes the tracing context of ctx into message headers.
// *tracer.Tracer implements it.
type HeaderInjector interface {
	InjectHeaders(ctx context.Context, headers map[string]interface{})
}

// Encoder serialises messages of type T. *codec.Codec[T] implements it.
type Encoder[T any] interface {
	Encode(msg T) ([]byte, error)
}

// Publisher sends persistent messages to the exchange of a Pool.
type Publisher struct {
	pool     *Pool
	logger   Logger
	injector HeaderInjector
}

// PublisherOption customises a Publisher.
type PublisherOption func(*Publisher)

// WithHeaderInjector propagates the tracing context of every publish.
func WithHeaderInjector(injector HeaderInjector) PublisherOption {
	return func(p *Publisher) { p.injector = injector }
}

func NewPublisher(pool *Pool, logger Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{pool: pool, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends body to the exchange with routingKey. headers are copied and
// never modified.
//
// Publish never returns an error: failures are logged and reported as false.
// The channel used for a failed attempt is closed instead of being returned to
// the pool, so the next publish starts on a fresh channel.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte, headers amqp.Table) bool {
	fields := map[string]interface{}{"routing_key": routingKey}

	ex, err := p.pool.Exchange(ctx)
	if err != nil {
		p.logger.ErrorWithContext(ctx, "cannot resolve exchange for publish", err, fields)
		return false
	}
	fields["exchange"] = ex.Name

	ch, err := p.pool.channels.acquire(ctx)
	if err != nil {
		p.logger.ErrorWithContext(ctx, "cannot get channel for publish", err, fields)
		return false
	}

	msgHeaders := make(amqp.Table, len(headers)+2)
	for k, v := range headers {
		msgHeaders[k] = v
	}
	if p.injector != nil {
		p.injector.InjectHeaders(ctx, msgHeaders)
	}

	err = ch.PublishWithContext(ctx, ex.Name, routingKey, false, false, amqp.Publishing{
		Headers:      msgHeaders,
		ContentType:  p.pool.cfg.Channel.ContentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		p.logger.ErrorWithContext(ctx, "failed to publish message", TranslateError(err), fields)
		p.pool.channels.discard(ch)
		return false
	}

	p.pool.channels.release(ch)
	p.logger.DebugWithContext(ctx, "message published", nil, fields)
	return true
}

// PublishMessage encodes msg with enc and publishes it. An encoding failure is
// logged and reported as false, like a publish failure.
func PublishMessage[T any](ctx context.Context, p *Publisher, enc Encoder[T], routingKey string, msg T, headers amqp.Table) bool {
	body, err := enc.Encode(msg)
	if err != nil {
		p.logger.ErrorWithContext(ctx, "cannot encode message", err, map[string]interface{}{"routing_key": routingKey})
		return false
	}
	return p.Publish(ctx, routingKey, body, headers)
}
