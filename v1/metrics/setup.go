package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the isolated Prometheus registry of a worker process and the
// HTTP server exposing it.
type Metrics struct {
	// Server serves /metrics. It is nil when Config.Address is empty.
	Server *http.Server

	// Registry holds every collector of the process. It is never the global
	// default registry, so several workers can share a test binary.
	Registry *prometheus.Registry

	registerer prometheus.Registerer

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates the registry, wraps it with a constant service label,
// registers the request metrics of the health endpoint and, when configured,
// the default runtime collectors and the application_version gauge.
//
//	m := metrics.NewMetrics(metrics.Config{Address: ":9090", ServiceName: "orders-worker"})
//	go m.Server.ListenAndServe()
func NewMetrics(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(
		prometheus.Labels{"service": cfg.ServiceName},
		registry,
	)

	m := &Metrics{
		Registry:   registry,
		registerer: wrapped,
	}

	m.requestsTotal = createCounterVec("requests_total", "Total number of requests served by the worker HTTP endpoints", []string{"status"})
	m.requestDuration = createHistogramVec("request_duration_seconds", "Duration of worker HTTP requests in seconds", []string{"endpoint"}, prometheus.DefBuckets)
	wrapped.MustRegister(m.requestsTotal, m.requestDuration)

	if cfg.EnableDefaultCollectors {
		wrapped.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	if cfg.Version != "" {
		version := m.CreateGauge("application_version", "Version of the running application", []string{"version", "commit_hash"})
		version.WithLabelValues(cfg.Version, cfg.CommitHash).Set(1)
	}

	if cfg.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		m.Server = &http.Server{
			Addr:    cfg.Address,
			Handler: mux,
		}
	}

	return m
}
