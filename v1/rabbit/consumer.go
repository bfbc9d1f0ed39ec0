package rabbit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ConsumeOptions selects what Consume subscribes to.
type ConsumeOptions struct {
	// Queue to consume from. It must already exist.
	Queue string

	// ConsumerTag identifies the subscription. A unique tag is generated when empty.
	ConsumerTag string

	// Prefetch is the QoS prefetch count of the consumer channel. Zero uses
	// the prefetch count of the pool configuration.
	Prefetch int
}

// Consume subscribes to a queue on a dedicated pooled channel and forwards
// deliveries until ctx is cancelled. Deliveries are never auto-acked.
//
// If the subscription is lost together with its channel, Consume resubscribes
// on a new channel, retrying with backoff. When ctx ends, the consumer is
// cancelled, deliveries that were already buffered are requeued and the
// returned channel is closed.
//
// An error is returned only when the first subscription fails.
func (p *Pool) Consume(ctx context.Context, opts ConsumeOptions) (<-chan amqp.Delivery, error) {
	if opts.Prefetch == 0 {
		opts.Prefetch = p.cfg.Channel.PrefetchCount
	}
	if opts.ConsumerTag == "" {
		opts.ConsumerTag = opts.Queue + "-" + uuid.NewString()
	}

	ch, deliveries, err := p.subscribe(ctx, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan amqp.Delivery)
	go p.forward(ctx, opts, ch, deliveries, out)
	return out, nil
}

func (p *Pool) subscribe(ctx context.Context, opts ConsumeOptions) (Channel, <-chan amqp.Delivery, error) {
	ch, err := p.channels.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
		p.channels.release(ch)
		return nil, nil, fmt.Errorf("failed to set QoS: %w", TranslateError(err))
	}
	deliveries, err := ch.Consume(opts.Queue, opts.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		p.channels.release(ch)
		return nil, nil, fmt.Errorf("failed to consume from %q: %w", opts.Queue, TranslateError(err))
	}
	return ch, deliveries, nil
}

func (p *Pool) resubscribe(ctx context.Context, opts ConsumeOptions) (Channel, <-chan amqp.Delivery, error) {
	var (
		ch         Channel
		deliveries <-chan amqp.Delivery
	)
	op := func() error {
		c, d, err := p.subscribe(ctx, opts)
		if err != nil {
			if errors.Is(err, ErrPoolClosed) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		ch, deliveries = c, d
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.logger.WarnWithContext(ctx, "cannot resubscribe consumer, retrying", err, map[string]interface{}{
			"queue":    opts.Queue,
			"retry_in": wait.String(),
		})
	}
	err := backoff.RetryNotify(op, backoff.WithContext(p.reconnectBackOff(), ctx), notify)
	return ch, deliveries, err
}

func (p *Pool) forward(ctx context.Context, opts ConsumeOptions, ch Channel, deliveries <-chan amqp.Delivery, out chan<- amqp.Delivery) {
	defer close(out)
	fields := map[string]interface{}{"queue": opts.Queue, "consumer_tag": opts.ConsumerTag}

	for {
		select {
		case <-ctx.Done():
			p.stopConsumer(ch, opts.ConsumerTag, deliveries)
			return

		case d, ok := <-deliveries:
			if !ok {
				p.channels.release(ch)
				p.logger.WarnWithContext(ctx, "consumer channel closed, resubscribing", nil, fields)

				var err error
				if ch, deliveries, err = p.resubscribe(ctx, opts); err != nil {
					p.logger.InfoWithContext(ctx, "consumer stopped", err, fields)
					return
				}
				continue
			}

			select {
			case out <- d:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				p.stopConsumer(ch, opts.ConsumerTag, deliveries)
				return
			}
		}
	}
}

// stopConsumer cancels the subscription and requeues whatever the client
// library had buffered. If the cancel fails the channel is closed, which
// requeues every unacknowledged delivery on the broker side.
func (p *Pool) stopConsumer(ch Channel, tag string, deliveries <-chan amqp.Delivery) {
	ctx := context.Background()
	if err := ch.Cancel(tag, false); err != nil {
		p.logger.WarnWithContext(ctx, "cannot cancel consumer, closing its channel", err, map[string]interface{}{"consumer_tag": tag})
		p.channels.discard(ch)
		return
	}
	for d := range deliveries {
		_ = d.Nack(false, true)
	}
	p.channels.release(ch)
	p.logger.InfoWithContext(ctx, "consumer cancelled", nil, map[string]interface{}{"consumer_tag": tag})
}
