// Package worker consumes RabbitMQ queues and turns deliveries into handler
// calls with a well defined acknowledgement protocol.
//
// Three flavours share one driver, Worker, and differ only in how they
// process deliveries:
//
//	New               one message at a time, failures are requeued
//	NewWithDeadLetter one message at a time, with delayed retries and a dead letter queue
//	NewBatch          batches bounded by size and time, acknowledged as a whole
//
// # Outcomes
//
// A Handler returns an Outcome instead of signalling through errors:
//
//	func handle(ctx context.Context, msg worker.Message[Order]) worker.Outcome {
//		if msg.Payload.Qty <= 0 {
//			return worker.DeadLetter(errInvalidQty)
//		}
//		if err := store(ctx, msg.Payload); err != nil {
//			return worker.Retry(err)
//		}
//		return worker.Success()
//	}
//
// Handlers that prefer plain errors can return FromError(err) and wrap
// ErrRetry or ErrDeadLetter.
//
// # Delivery guarantees
//
// Every delivery is acknowledged or rejected exactly once. Messages that do
// not decode are acknowledged and counted in wrong_formatted_messages_count,
// so they are not redelivered forever. In the dead letter flavour a message
// is rejected only after it was republished to the delay or dead letter
// queue; when the republish fails the message is requeued.
//
// The retry_count header is incremented on every delayed retry. With
// Config.MaxRetries set, a message that would exceed the limit is
// dead-lettered.
//
// # Shutdown
//
// Stop cancels the subscription and lets the message or batch in progress
// finish. Deliveries that were received but not handed to the handler are
// requeued. Handlers receive a context that is not cancelled by Stop.
//
// # Logging and tracing
//
// The handler context carries the queue name and a fresh correlation id per
// message or batch; the logger package adds both to every log line. With a
// tracer, the trace context found in the message headers is continued.
package worker
