package rabbit

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid rabbit configuration")

	// ErrPoolClosed is returned by every pool operation after Close.
	ErrPoolClosed = errors.New("pool closed")

	ErrConnectionFailed   = errors.New("connection failed")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrChannelClosed      = errors.New("channel closed")
	ErrAccessDenied       = errors.New("access denied")
	ErrNotFound           = errors.New("resource not found")
	ErrExchangeNotFound   = errors.New("exchange not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrResourceLocked     = errors.New("resource locked")
	ErrNotAllowed         = errors.New("operation not allowed")
	ErrPublishFailed      = errors.New("publish failed")
	ErrMessageTooLarge    = errors.New("message too large")
	ErrTimeout            = errors.New("operation timeout")
	ErrNetworkError       = errors.New("network error")
	ErrServerError        = errors.New("server error")
	ErrProtocolError      = errors.New("protocol error")
)

// TranslateError maps broker, network and syscall errors onto the sentinel
// errors of this package. The original error stays in the chain, so both
// errors.Is(err, ErrNotFound) and errors.As(err, &amqpErr) keep working.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if sentinel := classify(err); sentinel != nil && !errors.Is(err, sentinel) {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}

func classify(err error) error {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return classifyAMQP(amqpErr)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED:
			return ErrConnectionFailed
		case syscall.ECONNRESET, syscall.ECONNABORTED, syscall.EPIPE, syscall.ENOTCONN:
			return ErrConnectionLost
		case syscall.ETIMEDOUT:
			return ErrTimeout
		default:
			return ErrNetworkError
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}
		return ErrNetworkError
	}
	return nil
}

func classifyAMQP(err *amqp.Error) error {
	switch err.Code {
	case amqp.ConnectionForced:
		return ErrConnectionClosed
	case amqp.AccessRefused:
		return ErrAccessDenied
	case amqp.NotFound:
		return ErrNotFound
	case amqp.ResourceLocked:
		return ErrResourceLocked
	case amqp.PreconditionFailed:
		return ErrPreconditionFailed
	case amqp.ContentTooLarge:
		return ErrMessageTooLarge
	case amqp.NoRoute, amqp.NoConsumers:
		return ErrPublishFailed
	case amqp.NotAllowed:
		return ErrNotAllowed
	case amqp.ChannelError:
		return ErrChannelClosed
	case amqp.InternalError, amqp.ResourceError:
		return ErrServerError
	case amqp.SyntaxError, amqp.CommandInvalid, amqp.FrameError, amqp.UnexpectedFrame, amqp.NotImplemented:
		return ErrProtocolError
	}
	if err.Server {
		return ErrServerError
	}
	return ErrConnectionLost
}

// IsRetryableError reports whether an operation that failed with err may
// succeed when attempted again on a fresh connection.
func IsRetryableError(err error) bool {
	switch {
	case errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrConnectionLost),
		errors.Is(err, ErrConnectionClosed),
		errors.Is(err, ErrChannelClosed),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrNetworkError),
		errors.Is(err, ErrServerError):
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err is a broker 404, such as a passive declare of
// a missing exchange.
func IsNotFound(err error) bool {
	return errors.Is(TranslateError(err), ErrNotFound)
}
