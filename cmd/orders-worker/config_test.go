package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetkit/workerstd/v1/rabbit"
	"github.com/fleetkit/workerstd/v1/worker"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_HOST", "")

	cfg := loadConfig()

	assert.Equal(t, "orders", cfg.Rabbit.Channel.QueueName)
	assert.Equal(t, "orders.delay", cfg.Rabbit.DelayQueue.RoutingKey)
	assert.Equal(t, 30, cfg.Rabbit.DelayQueue.TTLSeconds)
	assert.Equal(t, rabbit.DefaultPrefetchCount, cfg.Rabbit.Channel.PrefetchCount)
	assert.Equal(t, worker.DefaultBatchTimeout, cfg.Worker.Batch.Timeout)
	assert.True(t, cfg.Health.Enabled)
	assert.False(t, cfg.Batch)
	assert.Nil(t, cfg.Database)
	require.NoError(t, cfg.Rabbit.ValidateDeadLetter())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("RABBITMQ_QUEUE_NAME", "invoices")
	t.Setenv("RABBITMQ_DELAY_TTL", "5")
	t.Setenv("WORKER_MODE", "batch")
	t.Setenv("WORKER_BATCH_SIZE", "50")
	t.Setenv("WORKER_BATCH_TIMEOUT", "2")
	t.Setenv("HEALTH_CHECK_ENABLED", "false")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "billing")

	cfg := loadConfig()

	assert.Equal(t, "invoices", cfg.Rabbit.Channel.QueueName)
	assert.Equal(t, 5, cfg.Rabbit.DelayQueue.TTLSeconds)
	assert.True(t, cfg.Batch)
	assert.Equal(t, 50, cfg.Worker.Batch.Size)
	assert.Equal(t, 2*time.Second, cfg.Worker.Batch.Timeout)
	assert.False(t, cfg.Health.Enabled)
	require.NotNil(t, cfg.Database)
	assert.Equal(t, "postgres://orders:@db.internal:5432/billing?sslmode=disable", cfg.Database.URL())
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TIMEOUT", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("TIMEOUT", time.Second))

	t.Setenv("TIMEOUT", "0.5")
	assert.Equal(t, 500*time.Millisecond, getEnvDuration("TIMEOUT", time.Second))

	t.Setenv("TIMEOUT", "soon")
	assert.Equal(t, time.Second, getEnvDuration("TIMEOUT", time.Second))
}
