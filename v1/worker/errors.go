package worker

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid worker configuration")

	// ErrAlreadyStarted is returned by Start on a worker that is not idle.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrConsumerStopped is returned by Run when the broker subscription ended
	// without the worker being stopped.
	ErrConsumerStopped = errors.New("consumer stopped unexpectedly")

	// ErrHandlerPanic wraps the value of a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")

	// Handlers that report errors instead of outcomes can return these; see
	// FromError.
	ErrRetry      = errors.New("delayed retry requested")
	ErrDeadLetter = errors.New("dead letter requested")
)
