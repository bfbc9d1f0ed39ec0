package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetkit/workerstd/v1/rabbit"
)

// NewBatch creates a worker that hands batches of up to Config.Batch.Size
// messages to handler.
//
// Collection blocks until a first message arrives and then waits at most
// Config.Batch.Timeout for the rest. Messages that do not decode are dropped
// from the batch. The batch is acknowledged or rejected as a whole through
// the last delivery: a nil error acknowledges every message, an error rejects
// every message without requeue. A batch without decodable messages is
// acknowledged without calling handler.
func NewBatch[T any](p Params, decoder Decoder[T], handler BatchHandler[T]) (*Worker, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if decoder == nil || handler == nil {
		return nil, fmt.Errorf("%w: decoder and handler are required", ErrInvalidConfig)
	}
	return newWorker(p, func(w *Worker) deliveryPolicy {
		return &batchPolicy[T]{
			w:       w,
			decoder: decoder,
			handler: handler,
			size:    p.Config.Batch.Size,
			timeout: p.Config.Batch.Timeout,
		}
	}), nil
}

type batchPolicy[T any] struct {
	w       *Worker
	decoder Decoder[T]
	handler BatchHandler[T]
	size    int
	timeout time.Duration
}

func (b *batchPolicy[T]) name() string { return "batch_worker" }

func (b *batchPolicy[T]) declare(ctx context.Context, init TopologyInitializer, topo rabbit.Topology) error {
	return init.InitQueue(ctx, topo)
}

func (b *batchPolicy[T]) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	staging := make(chan amqp.Delivery, b.size)
	go feed(ctx, deliveries, staging)

	for {
		if ctx.Err() != nil {
			b.reject(context.WithoutCancel(ctx), drain(staging))
			return
		}
		batch, err := collectBatch(ctx, staging, b.size, b.timeout)
		if err != nil && ctx.Err() != nil {
			// Interrupted while collecting: nothing of this batch reached the handler.
			b.reject(context.WithoutCancel(ctx), append(batch, drain(staging)...))
			return
		}
		if len(batch) > 0 {
			b.process(ctx, batch)
		}
		if err != nil {
			return
		}
	}
}

// feed moves deliveries into the bounded staging channel. Once ctx is done
// deliveries are requeued instead, until the broker closes the subscription.
func feed(ctx context.Context, deliveries <-chan amqp.Delivery, staging chan<- amqp.Delivery) {
	defer close(staging)
	for d := range deliveries {
		select {
		case staging <- d:
		case <-ctx.Done():
			_ = d.Nack(false, true)
		}
	}
}

// drain returns everything left in staging once the feeder closed it.
func drain(staging <-chan amqp.Delivery) []amqp.Delivery {
	var rest []amqp.Delivery
	for d := range staging {
		rest = append(rest, d)
	}
	return rest
}

// errStagingClosed is returned by collectBatch when no more deliveries will arrive.
var errStagingClosed = errors.New("staging closed")

// collectBatch blocks until the first delivery arrives and then collects up
// to size-1 more. The wait for the rest is bounded by timeout in total,
// measured from the first delivery. The collected deliveries are returned
// together with ctx.Err() or errStagingClosed when collection was cut short
// for one of those reasons.
func collectBatch(ctx context.Context, staging <-chan amqp.Delivery, size int, timeout time.Duration) ([]amqp.Delivery, error) {
	var first amqp.Delivery
	select {
	case d, ok := <-staging:
		if !ok {
			return nil, errStagingClosed
		}
		first = d
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	batch := make([]amqp.Delivery, 1, size)
	batch[0] = first

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for len(batch) < size {
		select {
		case d, ok := <-staging:
			if !ok {
				return batch, errStagingClosed
			}
			batch = append(batch, d)
		case <-timer.C:
			return batch, nil
		case <-ctx.Done():
			return batch, ctx.Err()
		}
	}
	return batch, nil
}

func (b *batchPolicy[T]) process(ctx context.Context, raw []amqp.Delivery) {
	start := time.Now()
	w := b.w
	queue := w.Queue()
	defer w.observe(start)

	last := raw[len(raw)-1]
	ctx, correlationID := w.processingContext(ctx, last.Headers)
	ctx, endSpan := w.startSpan(ctx, "process batch "+queue, map[string]interface{}{
		"messaging.destination.name":    queue,
		"messaging.batch.message_count": len(raw),
	}, trace.WithLinks(b.links(raw)...))

	w.p.Metrics.IncomingMessages(queue, len(raw))
	w.p.Logger.DebugWithContext(ctx, "batch collected", nil, map[string]interface{}{"size": len(raw)})

	messages := make([]T, 0, len(raw))
	for _, d := range raw {
		msg, err := b.decoder.Decode(d.Body)
		if err != nil {
			w.p.Logger.ErrorWithContext(ctx, "wrong formatted message", err, map[string]interface{}{"body": string(d.Body)})
			continue
		}
		messages = append(messages, msg)
	}
	if malformed := len(raw) - len(messages); malformed > 0 {
		w.p.Metrics.WrongFormattedMessages(queue, malformed)
	}

	if len(messages) == 0 {
		b.ack(ctx, last)
		endSpan(nil, map[string]interface{}{"messaging.outcome": "malformed"})
		return
	}

	err := b.invoke(ctx, Batch[T]{Messages: messages, CorrelationID: correlationID, Clients: w.p.Clients})
	if err != nil {
		w.p.Metrics.ProcessingErrors(queue, len(messages))
		w.p.Logger.ErrorWithContext(ctx, "batch processing failed, rejecting batch", err, map[string]interface{}{"size": len(raw)})
		if nackErr := last.Nack(true, false); nackErr != nil {
			w.p.Logger.ErrorWithContext(ctx, "failed to nack batch", nackErr)
		}
		endSpan(err, map[string]interface{}{"messaging.outcome": OutcomeFailed.String()})
		return
	}

	b.ack(ctx, last)
	w.p.Metrics.SuccessfulMessages(queue, len(messages))
	w.p.Logger.DebugWithContext(ctx, "batch processed", nil, map[string]interface{}{"size": len(messages)})
	endSpan(nil, map[string]interface{}{"messaging.outcome": OutcomeSuccess.String()})
}

// links refers the batch span to the producer span of every message. Only
// the last message's span is its parent.
func (b *batchPolicy[T]) links(raw []amqp.Delivery) []trace.Link {
	if b.w.p.Tracer == nil {
		return nil
	}
	headers := make([]map[string]interface{}, 0, len(raw))
	for _, d := range raw {
		headers = append(headers, d.Headers)
	}
	return b.w.p.Tracer.LinksFromHeaders(headers...)
}

func (b *batchPolicy[T]) invoke(ctx context.Context, batch Batch[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return b.handler(ctx, batch)
}

func (b *batchPolicy[T]) ack(ctx context.Context, last amqp.Delivery) {
	if err := last.Ack(true); err != nil {
		b.w.p.Logger.ErrorWithContext(ctx, "failed to ack batch", err)
	}
}

// reject requeues deliveries that never reached the handler.
func (b *batchPolicy[T]) reject(ctx context.Context, pending []amqp.Delivery) {
	if len(pending) == 0 {
		return
	}
	last := pending[len(pending)-1]
	if err := last.Nack(true, true); err != nil {
		b.w.p.Logger.ErrorWithContext(ctx, "failed to requeue staged messages", err)
		return
	}
	b.w.p.Logger.InfoWithContext(ctx, "requeued staged messages", nil, map[string]interface{}{
		"queue": b.w.Queue(),
		"count": len(pending),
	})
}
