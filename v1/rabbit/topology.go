package rabbit

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue arguments of the delay queue.
const (
	ArgDeadLetterExchange   = "x-dead-letter-exchange"
	ArgDeadLetterRoutingKey = "x-dead-letter-routing-key"
	ArgMessageTTL           = "x-message-ttl"
)

const topologyConnectTimeout = time.Second

// Topology is the broker layout a worker needs before it starts consuming.
type Topology struct {
	Exchange        string
	ExchangeType    string
	ExchangeDurable bool

	Queue        string
	RoutingKey   string
	QueueDurable bool

	DelayQueue      string
	DelayRoutingKey string
	DelayTTLSeconds int

	DeadLetterQueue      string
	DeadLetterRoutingKey string
}

// ValidateDeadLetter checks the parts of t that InitQueueWithDeadLetter
// declares. A zero TTL would redeliver every retry at once and empty queue
// names would make the broker generate them.
func (t Topology) ValidateDeadLetter() error {
	switch {
	case t.Exchange == "":
		return fmt.Errorf("%w: exchange name is required", ErrInvalidConfig)
	case t.Queue == "":
		return fmt.Errorf("%w: queue name is required", ErrInvalidConfig)
	case t.DelayQueue == "" || t.DelayRoutingKey == "":
		return fmt.Errorf("%w: delay queue name and routing key are required", ErrInvalidConfig)
	case t.DelayTTLSeconds <= 0:
		return fmt.Errorf("%w: delay queue ttl must be positive", ErrInvalidConfig)
	case t.DeadLetterQueue == "" || t.DeadLetterRoutingKey == "":
		return fmt.Errorf("%w: dead letter queue name and routing key are required", ErrInvalidConfig)
	}
	return nil
}

// TopologyFromConfig derives the topology from a pool configuration.
func TopologyFromConfig(cfg Config) Topology {
	cfg.SetDefaults()
	return Topology{
		Exchange:             cfg.Channel.ExchangeName,
		ExchangeType:         cfg.Channel.ExchangeType,
		ExchangeDurable:      cfg.Channel.IsExchangeDurable,
		Queue:                cfg.Channel.QueueName,
		RoutingKey:           cfg.Channel.RoutingKey,
		QueueDurable:         cfg.Channel.IsQueueDurable,
		DelayQueue:           cfg.DelayQueue.QueueName,
		DelayRoutingKey:      cfg.DelayQueue.RoutingKey,
		DelayTTLSeconds:      cfg.DelayQueue.TTLSeconds,
		DeadLetterQueue:      cfg.DeadLetter.QueueName,
		DeadLetterRoutingKey: cfg.DeadLetter.RoutingKey,
	}
}

// TopologyInitializer declares worker topologies. Each call opens its own
// connection with a one second dial timeout and closes it before returning;
// the long-lived Pool is not involved.
type TopologyInitializer struct {
	conn   ConnectionConfig
	dial   Dialer
	logger Logger
}

// TopologyOption customises a TopologyInitializer.
type TopologyOption func(*TopologyInitializer)

// WithTopologyDialer replaces DialAMQP.
func WithTopologyDialer(d Dialer) TopologyOption {
	return func(t *TopologyInitializer) { t.dial = d }
}

func NewTopologyInitializer(cfg Config, logger Logger, opts ...TopologyOption) *TopologyInitializer {
	cfg.SetDefaults()
	t := &TopologyInitializer{conn: cfg.Connection, dial: DialAMQP, logger: logger}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// InitQueue prepares a worker without retries: the exchange is looked up
// passively and declared if that fails, then the primary queue is declared and
// bound with the routing key.
func (t *TopologyInitializer) InitQueue(ctx context.Context, topo Topology) error {
	return t.withConnection(ctx, func(conn Connection) error {
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open channel: %w", TranslateError(err))
		}
		defer closeQuietly(ch)

		kind := exchangeKind(topo)
		if err := ch.ExchangeDeclarePassive(topo.Exchange, kind, topo.ExchangeDurable, false, false, false, nil); err != nil {
			t.logger.InfoWithContext(ctx, "exchange not found, declaring it", nil, map[string]interface{}{"exchange": topo.Exchange})

			// A failed passive declare closes the channel.
			if ch, err = conn.Channel(); err != nil {
				return fmt.Errorf("failed to open channel: %w", TranslateError(err))
			}
			defer closeQuietly(ch)
			if err := ch.ExchangeDeclare(topo.Exchange, kind, topo.ExchangeDurable, false, false, false, nil); err != nil {
				return fmt.Errorf("failed to declare exchange %q: %w", topo.Exchange, TranslateError(err))
			}
		}

		if _, err := ch.QueueDeclare(topo.Queue, topo.QueueDurable, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", topo.Queue, TranslateError(err))
		}
		if err := ch.QueueBind(topo.Queue, topo.RoutingKey, topo.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", topo.Queue, TranslateError(err))
		}

		t.logger.InfoWithContext(ctx, "queue initialised", nil, map[string]interface{}{
			"exchange":    topo.Exchange,
			"queue":       topo.Queue,
			"routing_key": topo.RoutingKey,
		})
		return nil
	})
}

// InitQueueWithDeadLetter prepares a worker with delayed retries and a dead
// letter queue. The exchange must already exist.
//
// The delay queue dead-letters expired messages back to the primary queue
// through the default exchange, so a message published to the delay routing
// key is redelivered to the worker after DelayTTLSeconds.
func (t *TopologyInitializer) InitQueueWithDeadLetter(ctx context.Context, topo Topology) error {
	if err := topo.ValidateDeadLetter(); err != nil {
		return err
	}
	return t.withConnection(ctx, func(conn Connection) error {
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open channel: %w", TranslateError(err))
		}
		defer closeQuietly(ch)

		if err := ch.ExchangeDeclarePassive(topo.Exchange, exchangeKind(topo), topo.ExchangeDurable, false, false, false, nil); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrExchangeNotFound, topo.Exchange, TranslateError(err))
		}

		if _, err := ch.QueueDeclare(topo.Queue, topo.QueueDurable, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", topo.Queue, TranslateError(err))
		}
		if _, err := ch.QueueDeclare(topo.DelayQueue, false, false, false, false, DelayQueueArgs(topo.Queue, topo.DelayTTLSeconds)); err != nil {
			return fmt.Errorf("failed to declare delay queue %q: %w", topo.DelayQueue, TranslateError(err))
		}
		if _, err := ch.QueueDeclare(topo.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead letter queue %q: %w", topo.DeadLetterQueue, TranslateError(err))
		}

		bindings := []struct{ queue, key string }{
			{topo.Queue, topo.RoutingKey},
			{topo.DelayQueue, topo.DelayRoutingKey},
			{topo.DeadLetterQueue, topo.DeadLetterRoutingKey},
		}
		for _, b := range bindings {
			if err := ch.QueueBind(b.queue, b.key, topo.Exchange, false, nil); err != nil {
				return fmt.Errorf("failed to bind queue %q: %w", b.queue, TranslateError(err))
			}
		}

		t.logger.InfoWithContext(ctx, "queues with dead letter initialised", nil, map[string]interface{}{
			"exchange":    topo.Exchange,
			"queue":       topo.Queue,
			"delay_queue": topo.DelayQueue,
			"dead_queue":  topo.DeadLetterQueue,
			"delay_ttl_s": topo.DelayTTLSeconds,
		})
		return nil
	})
}

// DelayQueueArgs returns the arguments of a delay queue that redelivers to
// target after ttlSeconds.
func DelayQueueArgs(target string, ttlSeconds int) amqp.Table {
	return amqp.Table{
		ArgDeadLetterExchange:   "",
		ArgDeadLetterRoutingKey: target,
		ArgMessageTTL:           int64(ttlSeconds) * 1000,
	}
}

func (t *TopologyInitializer) withConnection(ctx context.Context, fn func(Connection) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := t.dial(t.conn, topologyConnectTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbit: %w", TranslateError(err))
	}
	defer func() {
		if err := conn.Close(); err != nil {
			t.logger.WarnWithContext(ctx, "failed to close topology connection", err)
		}
	}()
	return fn(conn)
}

func exchangeKind(topo Topology) string {
	if topo.ExchangeType == "" {
		return DefaultExchangeType
	}
	return topo.ExchangeType
}

func closeQuietly(ch Channel) {
	if !ch.IsClosed() {
		_ = ch.Close()
	}
}
