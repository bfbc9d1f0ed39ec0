package rabbit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/mock/gomock"
)

// fakeBroker is an in-memory stand-in for the parts of RabbitMQ the package
// talks to. It records every channel operation.
type fakeBroker struct {
	mu sync.Mutex

	dials    int
	dialErrs []error
	channels int
	calls    []string

	passiveErr error
	publishErr error
	published  []publishedMessage

	subscriptions []chan amqp.Delivery
	consumers     []*fakeChannel
	getQueue      []amqp.Delivery
}

type publishedMessage struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (b *fakeBroker) dial(ConnectionConfig, time.Duration) (Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if len(b.dialErrs) > 0 {
		err := b.dialErrs[0]
		b.dialErrs = b.dialErrs[1:]
		return nil, err
	}
	return &fakeConnection{broker: b}, nil
}

func (b *fakeBroker) record(format string, args ...interface{}) {
	b.mu.Lock()
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
	b.mu.Unlock()
}

func (b *fakeBroker) recorded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBroker) count(prefix string) int {
	n := 0
	for _, c := range b.recorded() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (b *fakeBroker) latestSubscription() chan amqp.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subscriptions) == 0 {
		return nil
	}
	return b.subscriptions[len(b.subscriptions)-1]
}

func (b *fakeBroker) latestConsumer() *fakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumers[len(b.consumers)-1]
}

func (b *fakeBroker) publishedMessages() []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedMessage(nil), b.published...)
}

type fakeConnection struct {
	broker *fakeBroker
	closed atomic.Bool
}

func (c *fakeConnection) Channel() (Channel, error) {
	if c.closed.Load() {
		return nil, amqp.ErrClosed
	}
	c.broker.mu.Lock()
	c.broker.channels++
	c.broker.mu.Unlock()
	return &fakeChannel{broker: c.broker}, nil
}

func (c *fakeConnection) IsClosed() bool { return c.closed.Load() }

func (c *fakeConnection) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeChannel struct {
	broker *fakeBroker
	closed atomic.Bool

	mu           sync.Mutex
	subscription chan amqp.Delivery
	cancelOnce   sync.Once
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	c.broker.record("ExchangeDeclare %s %s durable=%t", name, kind, durable)
	return nil
}

func (c *fakeChannel) ExchangeDeclarePassive(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.broker.record("ExchangeDeclarePassive %s %s", name, kind)
	c.broker.mu.Lock()
	err := c.broker.passiveErr
	c.broker.mu.Unlock()
	if err != nil {
		c.closed.Store(true)
	}
	return err
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	c.broker.record("QueueDeclare %s durable=%t autoDelete=%t args=%v", name, durable, autoDelete, args)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.broker.record("QueueBind %s %s %s", name, key, exchange)
	return nil
}

func (c *fakeChannel) Qos(prefetch, _ int, _ bool) error {
	c.broker.record("Qos %d", prefetch)
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.broker.record("Consume %s autoAck=%t", queue, autoAck)
	sub := make(chan amqp.Delivery, 16)
	c.mu.Lock()
	c.subscription = sub
	c.mu.Unlock()
	c.broker.mu.Lock()
	c.broker.subscriptions = append(c.broker.subscriptions, sub)
	c.broker.consumers = append(c.broker.consumers, c)
	c.broker.mu.Unlock()
	return sub, nil
}

func (c *fakeChannel) Get(queue string, _ bool) (amqp.Delivery, bool, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if len(c.broker.getQueue) == 0 {
		return amqp.Delivery{}, false, nil
	}
	d := c.broker.getQueue[0]
	c.broker.getQueue = c.broker.getQueue[1:]
	return d, true, nil
}

func (c *fakeChannel) Cancel(consumer string, _ bool) error {
	c.broker.record("Cancel")
	c.closeSubscription()
	return nil
}

func (c *fakeChannel) closeSubscription() {
	c.cancelOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.subscription != nil {
			close(c.subscription)
		}
	})
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.broker.publishErr != nil {
		return c.broker.publishErr
	}
	c.broker.published = append(c.broker.published, publishedMessage{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) IsClosed() bool { return c.closed.Load() }

func (c *fakeChannel) Close() error {
	c.closed.Store(true)
	c.closeSubscription()
	return nil
}

// kill simulates the broker closing the channel.
func (c *fakeChannel) kill() {
	c.closed.Store(true)
	c.closeSubscription()
}

type fakeAcknowledger struct {
	mu     sync.Mutex
	acks   []uint64
	nacks  []uint64
	reject []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, tag)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reject = append(a.reject, tag)
	return nil
}

func testConfig() Config {
	return Config{
		Connection: ConnectionConfig{Host: "localhost", Port: 5672, ReconnectPeriod: 20 * time.Millisecond},
		Channel: ChannelConfig{
			ExchangeName:      "store",
			IsExchangeDurable: true,
			QueueName:         "orders",
			RoutingKey:        "orders.created",
			IsQueueDurable:    true,
			PrefetchCount:     10,
		},
		DelayQueue: DelayQueueConfig{QueueName: "orders.delay", RoutingKey: "orders.delay", TTLSeconds: 30},
		DeadLetter: DeadLetterConfig{QueueName: "orders.dead", RoutingKey: "orders.dead"},
	}
}

func newQuietLogger(t *testing.T) *MockLogger {
	ctrl := gomock.NewController(t)
	log := NewMockLogger(ctrl)
	log.EXPECT().DebugWithContext(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().InfoWithContext(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().InfoWithContext(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().WarnWithContext(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().WarnWithContext(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().ErrorWithContext(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	return log
}

func newTestPool(t *testing.T, broker *fakeBroker, mutate ...func(*Config)) *Pool {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	pool, err := NewPool(cfg, newQuietLogger(t), WithDialer(broker.dial))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}
