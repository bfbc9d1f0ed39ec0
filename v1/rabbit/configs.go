package rabbit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Defaults applied by Config.SetDefaults.
const (
	DefaultPrefetchCount   = 100
	DefaultMaxChannels     = 100
	DefaultMaxConnections  = 10
	DefaultExchangeType    = "topic"
	DefaultHeartbeat       = 10 * time.Second
	DefaultConnectTimeout  = time.Second
	DefaultReconnectPeriod = 5 * time.Second
)

// Config holds everything a worker needs to reach the broker and lay out its
// queues.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Channel    ChannelConfig    `yaml:"channel"`
	DelayQueue DelayQueueConfig `yaml:"delay_queue"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Pool       PoolConfig       `yaml:"pool"`
}

// ConnectionConfig locates the broker. URL takes precedence over the
// individual host fields.
type ConnectionConfig struct {
	URL string `yaml:"url" envconfig:"RABBITMQ_URL"`

	Host     string `yaml:"host" envconfig:"RABBITMQ_HOST"`
	Port     uint   `yaml:"port" envconfig:"RABBITMQ_PORT"`
	User     string `yaml:"user" envconfig:"RABBITMQ_USER"`
	Password string `yaml:"password" envconfig:"RABBITMQ_PASSWORD"`
	VHost    string `yaml:"vhost" envconfig:"RABBITMQ_VHOST"`

	// IsSSLEnabled switches the scheme to amqps. With UseCert the client
	// certificate below is presented as well.
	IsSSLEnabled   bool   `yaml:"is_ssl_enabled" envconfig:"RABBITMQ_IS_SSL_ENABLED"`
	UseCert        bool   `yaml:"use_cert" envconfig:"RABBITMQ_USE_CERT"`
	CACertPath     string `yaml:"ca_cert_path" envconfig:"RABBITMQ_CA_CERT_PATH"`
	ClientCertPath string `yaml:"client_cert_path" envconfig:"RABBITMQ_CLIENT_CERT_PATH"`
	ClientKeyPath  string `yaml:"client_key_path" envconfig:"RABBITMQ_CLIENT_KEY_PATH"`
	ServerName     string `yaml:"server_name" envconfig:"RABBITMQ_SERVER_NAME"`

	Heartbeat time.Duration `yaml:"heartbeat" envconfig:"RABBITMQ_HEARTBEAT"`

	// ConnectTimeout bounds the TCP dial. Topology setup always uses one second.
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"RABBITMQ_CONNECT_TIMEOUT"`

	// ReconnectPeriod caps the backoff between reconnection attempts.
	ReconnectPeriod time.Duration `yaml:"reconnect_period" envconfig:"RABBITMQ_RECONNECT_PERIOD"`
}

// ChannelConfig describes the exchange and the primary queue of the worker.
type ChannelConfig struct {
	ExchangeName      string `yaml:"exchange_name" envconfig:"RABBITMQ_EXCHANGE_NAME"`
	ExchangeType      string `yaml:"exchange_type" envconfig:"RABBITMQ_EXCHANGE_TYPE"`
	IsExchangeDurable bool   `yaml:"is_exchange_durable" envconfig:"RABBITMQ_IS_EXCHANGE_DURABLE"`

	QueueName      string `yaml:"queue_name" envconfig:"RABBITMQ_QUEUE_NAME"`
	RoutingKey     string `yaml:"routing_key" envconfig:"RABBITMQ_ROUTING_KEY"`
	IsQueueDurable bool   `yaml:"is_queue_durable" envconfig:"RABBITMQ_IS_QUEUE_DURABLE"`

	PrefetchCount int    `yaml:"prefetch_count" envconfig:"RABBITMQ_PREFETCH_COUNT"`
	ContentType   string `yaml:"content_type" envconfig:"RABBITMQ_CONTENT_TYPE"`
}

// DelayQueueConfig describes the queue that parks messages for TTLSeconds and
// then dead-letters them back to the primary queue.
type DelayQueueConfig struct {
	QueueName  string `yaml:"queue_name" envconfig:"RABBITMQ_DELAY_QUEUE_NAME"`
	RoutingKey string `yaml:"routing_key" envconfig:"RABBITMQ_DELAY_ROUTING_KEY"`
	TTLSeconds int    `yaml:"ttl_seconds" envconfig:"RABBITMQ_DELAY_TTL"`
}

// DeadLetterConfig describes the terminal queue for unprocessable messages.
type DeadLetterConfig struct {
	QueueName  string `yaml:"queue_name" envconfig:"RABBITMQ_DEAD_QUEUE_NAME"`
	RoutingKey string `yaml:"routing_key" envconfig:"RABBITMQ_DEAD_ROUTING_KEY"`
}

// PoolConfig bounds the connection and channel pools.
type PoolConfig struct {
	MaxConnections int `yaml:"max_connections" envconfig:"RABBITMQ_MAX_CONNECTIONS"`
	MaxChannels    int `yaml:"max_channels" envconfig:"RABBITMQ_MAX_CHANNELS"`
}

//go:generate mockgen -source=configs.go -destination=mock_logger.go -package=rabbit

// Logger is the logging contract of the package.
type Logger interface {
	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// SetDefaults fills zero values with the package defaults.
func (c *Config) SetDefaults() {
	if c.Channel.ExchangeType == "" {
		c.Channel.ExchangeType = DefaultExchangeType
	}
	if c.Channel.PrefetchCount == 0 {
		c.Channel.PrefetchCount = DefaultPrefetchCount
	}
	if c.Channel.ContentType == "" {
		c.Channel.ContentType = "application/json"
	}
	if c.Pool.MaxChannels == 0 {
		c.Pool.MaxChannels = DefaultMaxChannels
	}
	if c.Pool.MaxConnections == 0 {
		c.Pool.MaxConnections = DefaultMaxConnections
	}
	if c.Connection.Heartbeat == 0 {
		c.Connection.Heartbeat = DefaultHeartbeat
	}
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Connection.ReconnectPeriod == 0 {
		c.Connection.ReconnectPeriod = DefaultReconnectPeriod
	}
	if c.Channel.RoutingKey == "" {
		c.Channel.RoutingKey = c.Channel.QueueName
	}
}

// Validate checks the settings every worker needs.
func (c Config) Validate() error {
	if c.Connection.URL == "" && c.Connection.Host == "" {
		return fmt.Errorf("%w: broker url or host is required", ErrInvalidConfig)
	}
	if c.Channel.ExchangeName == "" {
		return fmt.Errorf("%w: exchange name is required", ErrInvalidConfig)
	}
	if c.Channel.QueueName == "" {
		return fmt.Errorf("%w: queue name is required", ErrInvalidConfig)
	}
	if c.Pool.MaxChannels < 0 || c.Pool.MaxConnections < 0 || c.Channel.PrefetchCount < 0 {
		return fmt.Errorf("%w: pool sizes and prefetch must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ValidateDeadLetter checks the additional settings of a worker with delayed
// retries and a dead letter queue.
func (c Config) ValidateDeadLetter() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DelayQueue.QueueName == "" || c.DelayQueue.RoutingKey == "" {
		return fmt.Errorf("%w: delay queue name and routing key are required", ErrInvalidConfig)
	}
	if c.DelayQueue.TTLSeconds <= 0 {
		return fmt.Errorf("%w: delay queue ttl must be positive", ErrInvalidConfig)
	}
	if c.DeadLetter.QueueName == "" || c.DeadLetter.RoutingKey == "" {
		return fmt.Errorf("%w: dead letter queue name and routing key are required", ErrInvalidConfig)
	}
	return nil
}

// BrokerURL returns the AMQP URL of the broker.
func (c ConnectionConfig) BrokerURL() string {
	if c.URL != "" {
		return c.URL
	}
	scheme := "amqp"
	if c.IsSSLEnabled {
		scheme = "amqps"
	}
	host := c.Host
	if c.Port != 0 {
		host = host + ":" + strconv.FormatUint(uint64(c.Port), 10)
	}
	u := url.URL{Scheme: scheme, Host: host}
	if c.VHost != "" {
		u.Path = "/" + c.VHost
		u.RawPath = "/" + url.PathEscape(c.VHost)
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}
