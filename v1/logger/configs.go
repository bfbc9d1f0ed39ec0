package logger

// Log levels accepted by Config.Level.
const (
	Debug   = "debug"
	Info    = "info"
	Warning = "warning"
	Error   = "error"
)

// Config defines the logger settings of a worker process.
type Config struct {
	// Level is the minimum severity that is written. Unknown values fall back to Info.
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`

	// EnableTracing adds trace_id and span_id of the active OpenTelemetry span
	// to every *WithContext log entry.
	EnableTracing bool `yaml:"enable_tracing" envconfig:"LOG_ENABLE_TRACING"`

	// ServiceName is attached to every entry as the "service" field.
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME"`
}
