package rabbit

import (
	"context"
	"iter"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultPollInterval = 200 * time.Millisecond

// Decoder parses message bodies into T. *codec.Codec[T] implements it.
type Decoder[T any] interface {
	Decode(body []byte) (T, error)
}

// Listener reads a queue message by message in pull mode. It suits scripts and
// tools that need a few messages, not long running workers.
type Listener[T any] struct {
	pool         *Pool
	queue        string
	decoder      Decoder[T]
	logger       Logger
	pollInterval time.Duration
}

func NewListener[T any](pool *Pool, queue string, decoder Decoder[T], logger Logger) *Listener[T] {
	return &Listener[T]{
		pool:         pool,
		queue:        queue,
		decoder:      decoder,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// Next blocks until a message that decodes is available, acknowledges it and
// returns it. Messages that do not decode are rejected without requeue.
func (l *Listener[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if _, err := l.pool.Queue(ctx, l.queue); err != nil {
		return zero, err
	}

	for {
		var (
			msg      T
			received bool
		)
		err := l.pool.withChannel(ctx, func(ch Channel) error {
			d, ok, err := ch.Get(l.queue, false)
			if err != nil || !ok {
				return err
			}
			return l.handle(ctx, d, &msg, &received)
		})
		if err != nil {
			return zero, TranslateError(err)
		}
		if received {
			return msg, nil
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

func (l *Listener[T]) handle(ctx context.Context, d amqp.Delivery, msg *T, received *bool) error {
	decoded, err := l.decoder.Decode(d.Body)
	if err != nil {
		l.logger.WarnWithContext(ctx, "rejecting message that cannot be decoded", err, map[string]interface{}{"queue": l.queue})
		return d.Reject(false)
	}
	if err := d.Ack(false); err != nil {
		return err
	}
	*msg, *received = decoded, true
	return nil
}

// All yields messages until ctx ends or the broker fails. The error, if any,
// is yielded last.
func (l *Listener[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			msg, err := l.Next(ctx)
			if err != nil {
				if ctx.Err() == nil {
					yield(msg, err)
				}
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}
