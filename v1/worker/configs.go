package worker

import (
	"fmt"
	"time"
)

// Defaults applied by Config.SetDefaults.
const (
	DefaultBatchSize    = 10
	DefaultBatchTimeout = time.Second
	DefaultStopTimeout  = 30 * time.Second
)

// Config holds the consumption settings of a worker. Broker addresses, queue
// names and routing keys live in rabbit.Config.
type Config struct {
	// Prefetch overrides the prefetch count of the pool for this worker.
	Prefetch int `yaml:"prefetch" envconfig:"WORKER_PREFETCH"`

	Batch BatchConfig `yaml:"batch"`

	// MaxRetries caps the delayed retries of a message. A message whose
	// retry_count would exceed it is dead-lettered. Zero means no limit.
	MaxRetries int `yaml:"max_retries" envconfig:"WORKER_MAX_RETRIES"`
}

// BatchConfig bounds the batches of a batch worker.
type BatchConfig struct {
	Size int `yaml:"size" envconfig:"WORKER_BATCH_SIZE"`

	// Timeout bounds the collection of one batch, measured from the arrival
	// of its first message.
	Timeout time.Duration `yaml:"timeout" envconfig:"WORKER_BATCH_TIMEOUT"`
}

func (c *Config) SetDefaults() {
	if c.Batch.Size == 0 {
		c.Batch.Size = DefaultBatchSize
	}
	if c.Batch.Timeout == 0 {
		c.Batch.Timeout = DefaultBatchTimeout
	}
}

func (c Config) Validate() error {
	if c.Prefetch < 0 {
		return fmt.Errorf("%w: prefetch must not be negative", ErrInvalidConfig)
	}
	if c.Batch.Size < 1 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if c.Batch.Timeout <= 0 {
		return fmt.Errorf("%w: batch timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	return nil
}
