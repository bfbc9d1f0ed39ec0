package metrics

// DefaultMetricsAddress is used by SetDefaults when metrics are enabled without an address.
const DefaultMetricsAddress = ":9090"

// Config defines how the Prometheus endpoint of a worker is exposed.
type Config struct {
	// Address of the /metrics HTTP server, e.g. ":9090" or "127.0.0.1:9100".
	// An empty address disables the server; collectors are still registered so
	// the worker can record metrics.
	Address string `yaml:"address" envconfig:"METRICS_ADDRESS"`

	// EnableDefaultCollectors registers the Go runtime, process and build info collectors.
	EnableDefaultCollectors bool `yaml:"enable_default_collectors" envconfig:"METRICS_ENABLE_DEFAULT_COLLECTORS"`

	// ServiceName is added as a constant "service" label to every metric.
	ServiceName string `yaml:"service_name" envconfig:"METRICS_SERVICE_NAME"`

	// Version and CommitHash are exported through the application_version gauge.
	// The gauge is skipped when Version is empty.
	Version    string `yaml:"version" envconfig:"APP_VERSION"`
	CommitHash string `yaml:"commit_hash" envconfig:"APP_COMMIT_HASH"`
}
