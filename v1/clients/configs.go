package clients

import (
	"fmt"
	"net/url"
	"time"
)

// Defaults of the health check retry policy.
const (
	DefaultCheckAttempts = 3
	DefaultCheckInterval = 200 * time.Millisecond
	DefaultCheckTimeout  = 5 * time.Second
)

// Config controls how State runs health checks.
type Config struct {
	// CheckAttempts is how often a failing check is tried before it is reported.
	CheckAttempts int `yaml:"check_attempts" envconfig:"CLIENTS_CHECK_ATTEMPTS"`

	// CheckInterval is the pause between two attempts of the same check.
	CheckInterval time.Duration `yaml:"check_interval" envconfig:"CLIENTS_CHECK_INTERVAL"`

	// CheckTimeout bounds a single attempt.
	CheckTimeout time.Duration `yaml:"check_timeout" envconfig:"CLIENTS_CHECK_TIMEOUT"`
}

func (c *Config) SetDefaults() {
	if c.CheckAttempts <= 0 {
		c.CheckAttempts = DefaultCheckAttempts
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = DefaultCheckTimeout
	}
}

// DatabaseConfig locates the service database of a worker.
type DatabaseConfig struct {
	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     string `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	DbName   string `yaml:"db_name" envconfig:"DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"DB_SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME"`
}

// DSN returns the key/value connection string understood by the gorm driver.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DbName, c.sslMode())
}

// URL returns the postgres:// connection URL understood by pgx.
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DbName,
		RawQuery: url.Values{"sslmode": []string{c.sslMode()}}.Encode(),
	}
	return u.String()
}

func (c DatabaseConfig) sslMode() string {
	if c.SSLMode == "" {
		return "disable"
	}
	return c.SSLMode
}
