package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/fleetkit/workerstd/v1/clients"
	"github.com/fleetkit/workerstd/v1/health"
	"github.com/fleetkit/workerstd/v1/logger"
	"github.com/fleetkit/workerstd/v1/metrics"
	"github.com/fleetkit/workerstd/v1/rabbit"
	"github.com/fleetkit/workerstd/v1/tracer"
	"github.com/fleetkit/workerstd/v1/worker"
)

const serviceName = "orders-worker"

type config struct {
	Logger  logger.Config
	Tracer  tracer.Config
	Metrics metrics.Config
	Rabbit  rabbit.Config
	Worker  worker.Config
	Health  health.Config
	Clients clients.Config

	// Database is nil when DB_HOST is not set; orders are then only logged.
	Database *clients.DatabaseConfig

	// Batch switches from the dead-letter worker to the batch worker.
	Batch bool
}

func loadConfig() config {
	// A .env file is optional.
	_ = godotenv.Load()

	cfg := config{
		Logger: logger.Config{
			Level:         getEnv("LOG_LEVEL", logger.Info),
			EnableTracing: getEnvBool("LOG_ENABLE_TRACING", false),
			ServiceName:   serviceName,
		},
		Tracer: tracer.Config{
			ServiceName:  serviceName,
			AppEnv:       getEnv("APP_ENV", "local"),
			EnableExport: getEnvBool("TRACER_ENABLE_EXPORT", false),
		},
		Metrics: metrics.Config{
			Address:                 getEnv("METRICS_ADDRESS", metrics.DefaultMetricsAddress),
			EnableDefaultCollectors: true,
			ServiceName:             serviceName,
			Version:                 getEnv("APP_VERSION", "dev"),
			CommitHash:              getEnv("APP_COMMIT_HASH", ""),
		},
		Rabbit: rabbit.Config{
			Connection: rabbit.ConnectionConfig{
				URL:      os.Getenv("RABBITMQ_URL"),
				Host:     getEnv("RABBITMQ_HOST", "localhost"),
				Port:     uint(getEnvInt("RABBITMQ_PORT", 5672)),
				User:     getEnv("RABBITMQ_USER", "guest"),
				Password: getEnv("RABBITMQ_PASSWORD", "guest"),
				VHost:    getEnv("RABBITMQ_VHOST", "/"),
			},
			Channel: rabbit.ChannelConfig{
				ExchangeName:      getEnv("RABBITMQ_EXCHANGE_NAME", "store"),
				IsExchangeDurable: true,
				QueueName:         getEnv("RABBITMQ_QUEUE_NAME", "orders"),
				RoutingKey:        getEnv("RABBITMQ_ROUTING_KEY", "orders.created"),
				IsQueueDurable:    true,
				PrefetchCount:     getEnvInt("RABBITMQ_PREFETCH_COUNT", rabbit.DefaultPrefetchCount),
			},
			DelayQueue: rabbit.DelayQueueConfig{
				QueueName:  getEnv("RABBITMQ_DELAY_QUEUE_NAME", "orders.delay"),
				RoutingKey: getEnv("RABBITMQ_DELAY_ROUTING_KEY", "orders.delay"),
				TTLSeconds: getEnvInt("RABBITMQ_DELAY_TTL", 30),
			},
			DeadLetter: rabbit.DeadLetterConfig{
				QueueName:  getEnv("RABBITMQ_DEAD_QUEUE_NAME", "orders.dead"),
				RoutingKey: getEnv("RABBITMQ_DEAD_ROUTING_KEY", "orders.dead"),
			},
		},
		Worker: worker.Config{
			MaxRetries: getEnvInt("WORKER_MAX_RETRIES", 5),
			Batch: worker.BatchConfig{
				Size:    getEnvInt("WORKER_BATCH_SIZE", worker.DefaultBatchSize),
				Timeout: getEnvDuration("WORKER_BATCH_TIMEOUT", worker.DefaultBatchTimeout),
			},
		},
		Health: health.Config{
			Enabled: getEnvBool("HEALTH_CHECK_ENABLED", true),
			Host:    getEnv("HEALTH_HOST", ""),
			Port:    getEnvInt("HEALTH_PORT", health.DefaultPort),
		},
		Batch: getEnv("WORKER_MODE", "single") == "batch",
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database = &clients.DatabaseConfig{
			Host:     host,
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "orders"),
			Password: getEnv("DB_PASSWORD", ""),
			DbName:   getEnv("DB_NAME", "orders"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		}
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1500ms") and plain seconds ("2").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}
