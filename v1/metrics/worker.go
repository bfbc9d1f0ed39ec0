package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Names of the message flow metrics. All of them carry a queue_name label.
const (
	IncomingMessagesName       = "incoming_messages_count"
	SuccessfulMessagesName     = "successful_messages_count"
	WrongFormattedMessagesName = "wrong_formatted_messages_count"
	ProcessingErrorsName       = "processing_errors_count"
	DelayedMessagesName        = "delayed_message_count"
	DeadMessagesName           = "dead_message_count"
	ExecutionTimeName          = "execution_message_time"

	queueLabel = "queue_name"
)

// WorkerMetrics is the Prometheus backed WorkerCollector.
type WorkerMetrics struct {
	incoming       *prometheus.CounterVec
	successful     *prometheus.CounterVec
	wrongFormatted *prometheus.CounterVec
	errors         *prometheus.CounterVec
	delayed        *prometheus.CounterVec
	dead           *prometheus.CounterVec
	executionTime  *prometheus.HistogramVec
}

// NewWorkerMetrics registers the message flow metrics on m. It must be called
// once per registry.
func NewWorkerMetrics(m *Metrics) *WorkerMetrics {
	labels := []string{queueLabel}
	return &WorkerMetrics{
		incoming:       m.CreateCounter(IncomingMessagesName, "Number of messages received from the broker", labels),
		successful:     m.CreateCounter(SuccessfulMessagesName, "Number of messages processed successfully", labels),
		wrongFormatted: m.CreateCounter(WrongFormattedMessagesName, "Number of messages that could not be decoded", labels),
		errors:         m.CreateCounter(ProcessingErrorsName, "Number of messages whose handler failed", labels),
		delayed:        m.CreateCounter(DelayedMessagesName, "Number of messages sent to the delay queue", labels),
		dead:           m.CreateCounter(DeadMessagesName, "Number of messages sent to the dead letter queue", labels),
		executionTime:  m.CreateHistogram(ExecutionTimeName, "Time spent processing a message or batch in seconds", labels, prometheus.DefBuckets),
	}
}

func (w *WorkerMetrics) IncomingMessages(queue string, n int) {
	w.incoming.WithLabelValues(queue).Add(float64(n))
}

func (w *WorkerMetrics) SuccessfulMessages(queue string, n int) {
	w.successful.WithLabelValues(queue).Add(float64(n))
}

func (w *WorkerMetrics) WrongFormattedMessages(queue string, n int) {
	w.wrongFormatted.WithLabelValues(queue).Add(float64(n))
}

func (w *WorkerMetrics) ProcessingErrors(queue string, n int) {
	w.errors.WithLabelValues(queue).Add(float64(n))
}

func (w *WorkerMetrics) DelayedMessages(queue string, n int) {
	w.delayed.WithLabelValues(queue).Add(float64(n))
}

func (w *WorkerMetrics) DeadMessages(queue string, n int) {
	w.dead.WithLabelValues(queue).Add(float64(n))
}

func (w *WorkerMetrics) ObserveExecutionTime(queue string, d time.Duration) {
	w.executionTime.WithLabelValues(queue).Observe(d.Seconds())
}
