package worker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fleetkit/workerstd/v1/rabbit"
)

// New creates a worker that handles one message at a time.
//
// Messages that do not decode are acknowledged and counted. A successful
// message is acknowledged; any other outcome is counted as a processing
// error and the message is requeued.
func New[T any](p Params, decoder Decoder[T], handler Handler[T]) (*Worker, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if decoder == nil || handler == nil {
		return nil, fmt.Errorf("%w: decoder and handler are required", ErrInvalidConfig)
	}
	return newWorker(p, func(w *Worker) deliveryPolicy {
		return &singlePolicy[T]{w: w, decoder: decoder, handler: handler}
	}), nil
}

// NewWithDeadLetter creates a worker that handles one message at a time and
// supports delayed retries and dead-lettering. The exchange must exist.
//
// OutcomeRetry republishes the message to the delay routing key with
// retry_count incremented; it returns to the queue when the delay queue TTL
// expires. OutcomeDeadLetter republishes it to the dead letter routing key.
// OutcomeFailed is counted as a processing error and retried like
// OutcomeRetry. The original delivery is rejected only after the republish
// succeeded; if the republish fails it is requeued instead.
func NewWithDeadLetter[T any](p Params, codec Codec[T], handler Handler[T]) (*Worker, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if codec == nil || handler == nil {
		return nil, fmt.Errorf("%w: codec and handler are required", ErrInvalidConfig)
	}
	if p.Publisher == nil {
		return nil, fmt.Errorf("%w: publisher is required", ErrInvalidConfig)
	}
	if err := p.Topology.ValidateDeadLetter(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return newWorker(p, func(w *Worker) deliveryPolicy {
		return &singlePolicy[T]{w: w, decoder: codec, encoder: codec, handler: handler, deadLetter: true}
	}), nil
}

type singlePolicy[T any] struct {
	w          *Worker
	decoder    Decoder[T]
	encoder    Codec[T]
	handler    Handler[T]
	deadLetter bool
}

func (s *singlePolicy[T]) name() string {
	if s.deadLetter {
		return "worker_with_dead_letter"
	}
	return "worker"
}

func (s *singlePolicy[T]) declare(ctx context.Context, init TopologyInitializer, topo rabbit.Topology) error {
	if s.deadLetter {
		return init.InitQueueWithDeadLetter(ctx, topo)
	}
	return init.InitQueue(ctx, topo)
}

func (s *singlePolicy[T]) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		s.process(ctx, d)
	}
}

func (s *singlePolicy[T]) process(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	w := s.w
	queue := w.Queue()
	defer w.observe(start)

	ctx, correlationID := w.processingContext(ctx, d.Headers)
	ctx, endSpan := w.startSpan(ctx, "process "+queue, map[string]interface{}{
		"messaging.destination.name": queue,
		"messaging.message.id":       d.MessageId,
	})

	w.p.Metrics.IncomingMessages(queue, 1)
	w.p.Logger.DebugWithContext(ctx, "message received", nil, map[string]interface{}{"delivery_tag": d.DeliveryTag})

	payload, err := s.decoder.Decode(d.Body)
	if err != nil {
		w.p.Metrics.WrongFormattedMessages(queue, 1)
		w.p.Logger.ErrorWithContext(ctx, "wrong formatted message", err, map[string]interface{}{"body": string(d.Body)})
		s.ack(ctx, d)
		endSpan(err, map[string]interface{}{"messaging.outcome": "malformed"})
		return
	}

	msg := Message[T]{
		Payload:       payload,
		Headers:       d.Headers,
		RetryCount:    RetryCount(d.Headers),
		CorrelationID: correlationID,
		Clients:       w.p.Clients,
	}
	outcome := s.invoke(ctx, msg)

	if s.deadLetter {
		s.dispatchDeadLetter(ctx, d, msg, outcome)
	} else {
		s.dispatch(ctx, d, outcome)
	}
	endSpan(outcome.Err, map[string]interface{}{"messaging.outcome": outcome.Kind.String()})
}

func (s *singlePolicy[T]) invoke(ctx context.Context, msg Message[T]) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Failed(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
		}
	}()
	return s.handler(ctx, msg)
}

func (s *singlePolicy[T]) dispatch(ctx context.Context, d amqp.Delivery, outcome Outcome) {
	queue := s.w.Queue()
	if outcome.Kind == OutcomeSuccess {
		s.ack(ctx, d)
		s.w.p.Metrics.SuccessfulMessages(queue, 1)
		s.w.p.Logger.DebugWithContext(ctx, "message processed", nil)
		return
	}
	s.w.p.Metrics.ProcessingErrors(queue, 1)
	s.w.p.Logger.ErrorWithContext(ctx, "message processing failed, requeueing", outcome.Err, map[string]interface{}{
		"outcome": outcome.Kind.String(),
	})
	s.nack(ctx, d, true)
}

func (s *singlePolicy[T]) dispatchDeadLetter(ctx context.Context, d amqp.Delivery, msg Message[T], outcome Outcome) {
	w := s.w
	queue := w.Queue()
	topo := w.p.Topology

	switch outcome.Kind {
	case OutcomeSuccess:
		s.ack(ctx, d)
		w.p.Metrics.SuccessfulMessages(queue, 1)
		w.p.Logger.DebugWithContext(ctx, "message processed", nil)
		return
	case OutcomeDeadLetter:
		s.deadLetterMessage(ctx, d, msg, outcome.Err)
		return
	case OutcomeFailed:
		w.p.Metrics.ProcessingErrors(queue, 1)
		w.p.Logger.ErrorWithContext(ctx, "message processing failed, retrying later", outcome.Err)
	}

	retry := msg.RetryCount + 1
	if limit := w.p.Config.MaxRetries; limit > 0 && retry > limit {
		w.p.Logger.WarnWithContext(ctx, "retry limit reached", outcome.Err, map[string]interface{}{
			"retry_count": msg.RetryCount,
			"max_retries": limit,
		})
		s.deadLetterMessage(ctx, d, msg, outcome.Err)
		return
	}

	if !s.republish(ctx, d, msg, topo.DelayRoutingKey, retryHeaders(d.Headers, retry)) {
		return
	}
	w.p.Metrics.DelayedMessages(queue, 1)
	w.p.Logger.WarnWithContext(ctx, "message sent to delay queue", outcome.Err, map[string]interface{}{
		"retry_count": retry,
		"routing_key": topo.DelayRoutingKey,
	})
}

func (s *singlePolicy[T]) deadLetterMessage(ctx context.Context, d amqp.Delivery, msg Message[T], reason error) {
	key := s.w.p.Topology.DeadLetterRoutingKey
	if !s.republish(ctx, d, msg, key, copyHeaders(d.Headers)) {
		return
	}
	s.w.p.Metrics.DeadMessages(s.w.Queue(), 1)
	s.w.p.Logger.WarnWithContext(ctx, "message sent to dead letter queue", reason, map[string]interface{}{
		"retry_count": msg.RetryCount,
		"routing_key": key,
	})
}

// republish publishes msg to key and rejects the delivery. When the message
// cannot be published the delivery is requeued and false is returned.
func (s *singlePolicy[T]) republish(ctx context.Context, d amqp.Delivery, msg Message[T], key string, headers amqp.Table) bool {
	body, err := s.encoder.Encode(msg.Payload)
	if err == nil && s.w.p.Publisher.Publish(ctx, key, body, headers) {
		s.nack(ctx, d, false)
		return true
	}
	if err == nil {
		err = rabbit.ErrPublishFailed
	}
	s.w.p.Metrics.ProcessingErrors(s.w.Queue(), 1)
	s.w.p.Logger.ErrorWithContext(ctx, "failed to republish message, requeueing", err, map[string]interface{}{
		"routing_key": key,
	})
	s.nack(ctx, d, true)
	return false
}

func (s *singlePolicy[T]) ack(ctx context.Context, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		s.w.p.Logger.ErrorWithContext(ctx, "failed to ack message", err, map[string]interface{}{"delivery_tag": d.DeliveryTag})
	}
}

func (s *singlePolicy[T]) nack(ctx context.Context, d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		s.w.p.Logger.ErrorWithContext(ctx, "failed to nack message", err, map[string]interface{}{
			"delivery_tag": d.DeliveryTag,
			"requeue":      requeue,
		})
	}
}
