package rabbit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange describes the topic exchange every queue of the pool is bound to.
type Exchange struct {
	Name    string
	Kind    string
	Durable bool
}

// Pool is the long-lived gateway to the broker. It keeps a bounded pool of
// connections and a bounded pool of channels opened on them, and remembers
// which exchange and queues it has already declared.
//
// Every operation checks out a channel, uses it and returns it, also when the
// operation fails or panics. Callers block while all channels are checked out.
// Lost connections are redialled with exponential backoff the next time a
// channel is needed.
type Pool struct {
	cfg    Config
	logger Logger
	dial   Dialer

	connections *resourcePool[Connection]
	channels    *resourcePool[Channel]

	mu               sync.Mutex
	exchangeDeclared bool
	queues           map[string]amqp.Queue
	closed           bool
}

// Option customises a Pool.
type Option func(*Pool)

// WithDialer replaces DialAMQP, e.g. with an in-memory broker in tests.
func WithDialer(d Dialer) Option {
	return func(p *Pool) { p.dial = d }
}

// NewPool validates cfg and prepares the pools. No connection is opened until
// the first operation needs a channel.
func NewPool(cfg Config, logger Logger, opts ...Option) (*Pool, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:    cfg,
		logger: logger,
		dial:   DialAMQP,
		queues: make(map[string]amqp.Queue),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.connections = newResourcePool(cfg.Pool.MaxConnections, p.connect,
		func(c Connection) bool { return !c.IsClosed() },
		func(c Connection) error {
			if c.IsClosed() {
				return nil
			}
			return c.Close()
		},
	)
	p.channels = newResourcePool(cfg.Pool.MaxChannels, p.openChannel,
		func(ch Channel) bool { return !ch.IsClosed() },
		func(ch Channel) error {
			if ch.IsClosed() {
				return nil
			}
			return ch.Close()
		},
	)
	return p, nil
}

// Config returns the configuration of the pool with defaults applied.
func (p *Pool) Config() Config {
	return p.cfg
}

// Exchange returns the exchange of the pool, declaring it on first use.
func (p *Pool) Exchange(ctx context.Context) (Exchange, error) {
	ex := Exchange{
		Name:    p.cfg.Channel.ExchangeName,
		Kind:    p.cfg.Channel.ExchangeType,
		Durable: p.cfg.Channel.IsExchangeDurable,
	}

	p.mu.Lock()
	declared := p.exchangeDeclared
	p.mu.Unlock()
	if declared {
		return ex, nil
	}

	err := p.withChannel(ctx, func(ch Channel) error {
		return ch.ExchangeDeclare(ex.Name, ex.Kind, ex.Durable, false, false, false, nil)
	})
	if err != nil {
		return Exchange{}, fmt.Errorf("failed to declare exchange %q: %w", ex.Name, TranslateError(err))
	}

	p.MarkExchangeDeclared()
	return ex, nil
}

// MarkExchangeDeclared records that the exchange exists, for instance because
// the topology initializer created it, so Exchange does not declare it again.
func (p *Pool) MarkExchangeDeclared() {
	p.mu.Lock()
	p.exchangeDeclared = true
	p.mu.Unlock()
}

// Queue returns the named queue. The first call per name declares the queue
// and binds it to the exchange with the queue name as routing key; later
// calls are answered from memory without touching the broker.
func (p *Pool) Queue(ctx context.Context, name string) (amqp.Queue, error) {
	p.mu.Lock()
	q, ok := p.queues[name]
	p.mu.Unlock()
	if ok {
		return q, nil
	}

	ex, err := p.Exchange(ctx)
	if err != nil {
		return amqp.Queue{}, err
	}

	err = p.withChannel(ctx, func(ch Channel) error {
		var err error
		if q, err = ch.QueueDeclare(name, p.cfg.Channel.IsQueueDurable, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", name, err)
		}
		if err = ch.QueueBind(name, name, ex.Name, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return amqp.Queue{}, TranslateError(err)
	}

	p.mu.Lock()
	p.queues[name] = q
	p.mu.Unlock()
	return q, nil
}

// QueueBind binds the named queue to the exchange with an additional routing key.
func (p *Pool) QueueBind(ctx context.Context, name, routingKey string) error {
	if _, err := p.Queue(ctx, name); err != nil {
		return err
	}
	ex, err := p.Exchange(ctx)
	if err != nil {
		return err
	}
	err = p.withChannel(ctx, func(ch Channel) error {
		return ch.QueueBind(name, routingKey, ex.Name, false, nil)
	})
	if err != nil {
		return fmt.Errorf("failed to bind queue %q with key %q: %w", name, routingKey, TranslateError(err))
	}
	return nil
}

// Ping checks out a channel and returns it, dialling the broker if needed.
func (p *Pool) Ping(ctx context.Context) error {
	return p.withChannel(ctx, func(Channel) error { return nil })
}

// Close closes all idle channels, then all idle connections. Channels that are
// checked out are closed when they are returned. Calling Close again is a no-op.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := errors.Join(p.channels.close(), p.connections.close())
	p.logger.InfoWithContext(context.Background(), "rabbit pool closed", err)
	return err
}

func (p *Pool) withChannel(ctx context.Context, fn func(Channel) error) error {
	ch, err := p.channels.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.channels.release(ch)
	return fn(ch)
}

// connect dials the broker, retrying with backoff until it succeeds, the error
// is permanent or ctx ends.
func (p *Pool) connect(ctx context.Context) (Connection, error) {
	var conn Connection
	op := func() error {
		c, err := p.dial(p.cfg.Connection, p.cfg.Connection.ConnectTimeout)
		if err != nil {
			err = TranslateError(err)
			if errors.Is(err, ErrAccessDenied) || !IsRetryableError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.logger.WarnWithContext(ctx, "cannot connect to rabbit, retrying", err, map[string]interface{}{
			"retry_in": wait.String(),
		})
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(p.reconnectBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	p.logger.InfoWithContext(ctx, "connected to rabbit", nil)
	return conn, nil
}

// openChannel opens a channel on a pooled connection. A connection that
// refuses to open channels is dropped and the next attempt dials a new one.
func (p *Pool) openChannel(ctx context.Context) (Channel, error) {
	var ch Channel
	op := func() error {
		conn, err := p.connections.acquire(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		c, err := conn.Channel()
		if err != nil {
			p.connections.discard(conn)
			return TranslateError(err)
		}
		p.connections.release(conn)
		ch = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.logger.WarnWithContext(ctx, "cannot open rabbit channel, reconnecting", err, map[string]interface{}{
			"retry_in": wait.String(),
		})
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(p.reconnectBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return ch, nil
}

func (p *Pool) reconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = p.cfg.Connection.ReconnectPeriod
	b.MaxElapsedTime = 0
	return b
}
