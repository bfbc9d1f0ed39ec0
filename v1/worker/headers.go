package worker

import (
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RetryCountHeader counts the delayed retries of a message.
const RetryCountHeader = "retry_count"

// RetryCount reads the retry_count header. A missing or unreadable header
// counts as zero.
func RetryCount(headers amqp.Table) int {
	switch v := headers[RetryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// retryHeaders copies headers and sets retry_count to n.
func retryHeaders(headers amqp.Table, n int) amqp.Table {
	out := copyHeaders(headers)
	out[RetryCountHeader] = int32(n)
	return out
}

func copyHeaders(headers amqp.Table) amqp.Table {
	out := make(amqp.Table, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	return out
}
