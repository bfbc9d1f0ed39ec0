package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector is implemented by *Metrics.
type MetricsCollector interface {
	// IncrementRequests counts a request served by one of the worker's HTTP endpoints.
	IncrementRequests(status string)

	// RecordRequestDuration records how long an HTTP endpoint took.
	RecordRequestDuration(start time.Time, endpoint string)

	// CreateCounter creates and registers a new CounterVec.
	CreateCounter(name, help string, labels []string) *prometheus.CounterVec

	// CreateHistogram creates and registers a new HistogramVec.
	CreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec

	// CreateGauge creates and registers a new GaugeVec.
	CreateGauge(name, help string, labels []string) *prometheus.GaugeVec
}

// WorkerCollector records the message flow of a worker. Every method takes the
// name of the consumed queue, which becomes the queue_name label.
type WorkerCollector interface {
	IncomingMessages(queue string, n int)
	SuccessfulMessages(queue string, n int)
	WrongFormattedMessages(queue string, n int)
	ProcessingErrors(queue string, n int)
	DelayedMessages(queue string, n int)
	DeadMessages(queue string, n int)
	ObserveExecutionTime(queue string, d time.Duration)
}

var (
	_ MetricsCollector = (*Metrics)(nil)
	_ WorkerCollector  = (*WorkerMetrics)(nil)
)
