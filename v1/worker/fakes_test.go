package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/mock/gomock"

	"github.com/fleetkit/workerstd/v1/rabbit"
)

type order struct {
	ID  int `json:"id"`
	Qty int `json:"qty"`
}

type orderCodec struct{}

func (orderCodec) Decode(body []byte) (order, error) {
	var o order
	if err := json.Unmarshal(body, &o); err != nil {
		return order{}, err
	}
	if o.ID == 0 {
		return order{}, errors.New("id is required")
	}
	return o, nil
}

func (orderCodec) Encode(o order) ([]byte, error) {
	return json.Marshal(o)
}

type ackEvent struct {
	tag      uint64
	op       string
	multiple bool
	requeue  bool
}

// fakeAcknowledger records acknowledgements in the order they happen.
type fakeAcknowledger struct {
	mu     sync.Mutex
	events []ackEvent
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.record(ackEvent{tag: tag, op: "ack", multiple: multiple})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.record(ackEvent{tag: tag, op: "nack", multiple: multiple, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.record(ackEvent{tag: tag, op: "nack", requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) record(e ackEvent) {
	a.mu.Lock()
	a.events = append(a.events, e)
	a.mu.Unlock()
}

func (a *fakeAcknowledger) all() []ackEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ackEvent(nil), a.events...)
}

// settled expands multiple acknowledgements the way the broker does and
// returns, per delivery tag, every operation that settled it.
func (a *fakeAcknowledger) settled(tags ...uint64) map[uint64][]string {
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	out := make(map[uint64][]string)
	open := make(map[uint64]bool, len(tags))
	for _, tag := range tags {
		open[tag] = true
	}
	for _, e := range a.all() {
		op := e.op
		if e.op == "nack" && e.requeue {
			op = "requeue"
		}
		if !e.multiple {
			out[e.tag] = append(out[e.tag], op)
			delete(open, e.tag)
			continue
		}
		for _, tag := range tags {
			if tag <= e.tag && open[tag] {
				out[tag] = append(out[tag], op)
				delete(open, tag)
			}
		}
	}
	return out
}

// fakeSource forwards pushed deliveries like rabbit.Pool.Consume does: the
// returned channel is closed when ctx ends and a delivery held at that
// moment is requeued.
type fakeSource struct {
	in     chan amqp.Delivery
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	opts []rabbit.ConsumeOptions
	ack  *fakeAcknowledger
	tag  uint64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		in:     make(chan amqp.Delivery, 64),
		closed: make(chan struct{}),
		ack:    &fakeAcknowledger{},
	}
}

func (s *fakeSource) Consume(ctx context.Context, opts rabbit.ConsumeOptions) (<-chan amqp.Delivery, error) {
	s.mu.Lock()
	s.opts = append(s.opts, opts)
	s.mu.Unlock()

	out := make(chan amqp.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			case d := <-s.in:
				select {
				case out <- d:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// push enqueues a delivery and returns its tag.
func (s *fakeSource) push(body string, headers amqp.Table) uint64 {
	s.mu.Lock()
	s.tag++
	tag := s.tag
	s.mu.Unlock()
	s.in <- amqp.Delivery{Acknowledger: s.ack, DeliveryTag: tag, Body: []byte(body), Headers: headers}
	return tag
}

// lose simulates a subscription that is gone for good.
func (s *fakeSource) lose() {
	s.once.Do(func() { close(s.closed) })
}

// recordingCollector is an in-memory metrics.WorkerCollector.
type recordingCollector struct {
	mu         sync.Mutex
	counts     map[string]int
	executions int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{counts: make(map[string]int)}
}

func (c *recordingCollector) add(name, queue string, n int) {
	c.mu.Lock()
	c.counts[name+"/"+queue] += n
	c.mu.Unlock()
}

func (c *recordingCollector) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name+"/orders"]
}

func (c *recordingCollector) observed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executions
}

func (c *recordingCollector) IncomingMessages(q string, n int)       { c.add("incoming", q, n) }
func (c *recordingCollector) SuccessfulMessages(q string, n int)     { c.add("successful", q, n) }
func (c *recordingCollector) WrongFormattedMessages(q string, n int) { c.add("wrong_formatted", q, n) }
func (c *recordingCollector) ProcessingErrors(q string, n int)       { c.add("errors", q, n) }
func (c *recordingCollector) DelayedMessages(q string, n int)        { c.add("delayed", q, n) }
func (c *recordingCollector) DeadMessages(q string, n int)           { c.add("dead", q, n) }

func (c *recordingCollector) ObserveExecutionTime(string, time.Duration) {
	c.mu.Lock()
	c.executions++
	c.mu.Unlock()
}

func testTopology() rabbit.Topology {
	return rabbit.Topology{
		Exchange:             "store",
		ExchangeType:         "topic",
		Queue:                "orders",
		RoutingKey:           "orders.created",
		QueueDurable:         true,
		DelayQueue:           "orders.delay",
		DelayRoutingKey:      "orders.delay",
		DelayTTLSeconds:      30,
		DeadLetterQueue:      "orders.dead",
		DeadLetterRoutingKey: "orders.dead",
	}
}

type testEnv struct {
	params      Params
	source      *fakeSource
	metrics     *recordingCollector
	initializer *MockTopologyInitializer
	publisher   *MockPublisher
}

func quietLogger(ctrl *gomock.Controller) *MockLogger {
	log := NewMockLogger(ctrl)
	log.EXPECT().DebugWithContext(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().DebugWithContext(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().InfoWithContext(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().InfoWithContext(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().WarnWithContext(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().WarnWithContext(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().ErrorWithContext(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().ErrorWithContext(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	return log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	env := &testEnv{
		source:      newFakeSource(),
		metrics:     newRecordingCollector(),
		initializer: NewMockTopologyInitializer(ctrl),
		publisher:   NewMockPublisher(ctrl),
	}
	env.params = Params{
		Config:      Config{Batch: BatchConfig{Size: 5, Timeout: 100 * time.Millisecond}},
		Topology:    testTopology(),
		Source:      env.source,
		Initializer: env.initializer,
		Publisher:   env.publisher,
		Metrics:     env.metrics,
		Logger:      quietLogger(ctrl),
	}
	return env
}

// start starts w and stops it when the test ends.
func start(t *testing.T, w *Worker) {
	t.Helper()
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
}
