package rabbit

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueIsDeclaredAndBoundOnce(t *testing.T) {
	broker := &fakeBroker{}
	pool := newTestPool(t, broker)
	ctx := context.Background()

	q, err := pool.Queue(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", q.Name)
	callsAfterFirst := len(broker.recorded())

	_, err = pool.Queue(ctx, "x")
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, len(broker.recorded()), "second lookup must not reach the broker")
	assert.Equal(t, 1, broker.count("QueueDeclare x"))
	assert.Equal(t, 1, broker.count("QueueBind x x store"))
	assert.Equal(t, 1, broker.count("ExchangeDeclare store topic durable=true"))
}

func TestQueueDeclaresWithoutAutoDelete(t *testing.T) {
	broker := &fakeBroker{}
	pool := newTestPool(t, broker, func(c *Config) { c.Channel.IsQueueDurable = false })

	_, err := pool.Queue(context.Background(), "transient")
	require.NoError(t, err)
	assert.Equal(t, 1, broker.count("QueueDeclare transient durable=false autoDelete=false"))
}

func TestExchangeDeclaredOnceAndSkippedWhenMarked(t *testing.T) {
	broker := &fakeBroker{}
	pool := newTestPool(t, broker)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ex, err := pool.Exchange(ctx)
		require.NoError(t, err)
		assert.Equal(t, Exchange{Name: "store", Kind: "topic", Durable: true}, ex)
	}
	assert.Equal(t, 1, broker.count("ExchangeDeclare"))

	other := &fakeBroker{}
	marked := newTestPool(t, other)
	marked.MarkExchangeDeclared()
	_, err := marked.Exchange(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, other.count("ExchangeDeclare"))
	assert.Equal(t, 0, other.dials)
}

func TestQueueBindAddsRoutingKey(t *testing.T) {
	broker := &fakeBroker{}
	pool := newTestPool(t, broker)

	require.NoError(t, pool.QueueBind(context.Background(), "orders", "orders.#"))
	assert.Equal(t, 1, broker.count("QueueBind orders orders store"))
	assert.Equal(t, 1, broker.count("QueueBind orders orders.# store"))
}

func TestCloseIsIdempotent(t *testing.T) {
	broker := &fakeBroker{}
	pool := newTestPool(t, broker)
	require.NoError(t, pool.Ping(context.Background()))

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err := pool.Queue(context.Background(), "never-declared")
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestChannelAcquisitionBlocksWhenExhausted(t *testing.T) {
	broker := &fakeBroker{}
	pool := newTestPool(t, broker, func(c *Config) { c.Pool.MaxChannels = 1 })

	ch, err := pool.channels.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.channels.acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.channels.release(ch)
	again, err := pool.channels.acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, ch, again)
	pool.channels.release(again)
}

func TestReleaseIsGuaranteedWhenOperationPanics(t *testing.T) {
	broker := &fakeBroker{}
	pool := newTestPool(t, broker, func(c *Config) { c.Pool.MaxChannels = 1 })

	assert.Panics(t, func() {
		_ = pool.withChannel(context.Background(), func(Channel) error { panic("boom") })
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Ping(ctx))
}

func TestClosedChannelIsReplaced(t *testing.T) {
	broker := &fakeBroker{}
	pool := newTestPool(t, broker)

	ch, err := pool.channels.acquire(context.Background())
	require.NoError(t, err)
	ch.(*fakeChannel).kill()
	pool.channels.release(ch)
	assert.Equal(t, 0, pool.channels.inUse())

	next, err := pool.channels.acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, ch, next)
	assert.Equal(t, 2, broker.channels)
	pool.channels.release(next)
}

func TestReconnectsAfterConnectionLoss(t *testing.T) {
	broker := &fakeBroker{}
	pool := newTestPool(t, broker)
	ctx := context.Background()

	conn, err := pool.connections.acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	pool.connections.release(conn)

	require.NoError(t, pool.Ping(ctx))
	assert.Equal(t, 2, broker.dials)
}

func TestConnectRetriesTransientFailures(t *testing.T) {
	refused := fmt.Errorf("%w: %w", ErrConnectionFailed, syscall.ECONNREFUSED)
	broker := &fakeBroker{dialErrs: []error{refused, refused}}
	pool := newTestPool(t, broker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Ping(ctx))
	assert.Equal(t, 3, broker.dials)
}

func TestConnectStopsOnAccessDenied(t *testing.T) {
	broker := &fakeBroker{dialErrs: []error{amqp.ErrCredentials}}
	pool := newTestPool(t, broker)

	err := pool.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, 1, broker.dials)
}

func TestNewPoolValidatesConfig(t *testing.T) {
	_, err := NewPool(Config{}, newQuietLogger(t))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResourcePoolCloseDestroysIdleItems(t *testing.T) {
	var destroyed []int
	next := 0
	p := newResourcePool(2,
		func(context.Context) (int, error) { next++; return next, nil },
		func(int) bool { return true },
		func(i int) error {
			destroyed = append(destroyed, i)
			if i == 2 {
				return errors.New("close failed")
			}
			return nil
		},
	)
	a, _ := p.acquire(context.Background())
	b, _ := p.acquire(context.Background())
	p.release(a)
	p.release(b)

	err := p.close()
	assert.EqualError(t, err, "close failed")
	assert.ElementsMatch(t, []int{1, 2}, destroyed)
	assert.NoError(t, p.close())
	assert.Equal(t, 0, p.inUse())
}
