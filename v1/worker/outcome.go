package worker

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fleetkit/workerstd/v1/clients"
)

// OutcomeKind tells the worker what to do with a message after its handler ran.
type OutcomeKind int

const (
	// OutcomeSuccess acknowledges the message.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRetry parks the message in the delay queue.
	OutcomeRetry
	// OutcomeDeadLetter moves the message to the dead letter queue.
	OutcomeDeadLetter
	// OutcomeFailed reports an unexpected error.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeDeadLetter:
		return "dead_letter"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of a Handler.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func Success() Outcome { return Outcome{Kind: OutcomeSuccess} }

// Retry asks for delayed redelivery. reason is logged and may be nil.
func Retry(reason error) Outcome { return Outcome{Kind: OutcomeRetry, Err: reason} }

// DeadLetter gives up on the message. reason is logged and may be nil.
func DeadLetter(reason error) Outcome { return Outcome{Kind: OutcomeDeadLetter, Err: reason} }

func Failed(err error) Outcome { return Outcome{Kind: OutcomeFailed, Err: err} }

// FromError maps an error returned by handler code onto an outcome: nil is
// success, errors wrapping ErrRetry or ErrDeadLetter request those outcomes
// and everything else is a failure.
func FromError(err error) Outcome {
	switch {
	case err == nil:
		return Success()
	case errors.Is(err, ErrDeadLetter):
		return DeadLetter(err)
	case errors.Is(err, ErrRetry):
		return Retry(err)
	}
	return Failed(err)
}

// Message is one decoded delivery handed to a Handler.
type Message[T any] struct {
	Payload T

	// Headers of the delivery. Handlers must not modify them.
	Headers amqp.Table

	// RetryCount is the number of delayed retries the message went through.
	RetryCount int

	CorrelationID string

	// Clients is nil unless the worker was given a client state.
	Clients *clients.State
}

// Handler processes one message.
type Handler[T any] func(ctx context.Context, msg Message[T]) Outcome

// Batch is the ordered list of decoded messages of one batch.
type Batch[T any] struct {
	Messages      []T
	CorrelationID string
	Clients       *clients.State
}

// BatchHandler processes one batch. A non-nil error rejects the whole batch.
type BatchHandler[T any] func(ctx context.Context, batch Batch[T]) error

// Decoder parses message bodies. *codec.Codec[T] implements it.
type Decoder[T any] interface {
	Decode(body []byte) (T, error)
}

// Codec parses message bodies and encodes messages that are republished.
type Codec[T any] interface {
	Decoder[T]
	Encode(msg T) ([]byte, error)
}
