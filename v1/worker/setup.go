package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fleetkit/workerstd/v1/clients"
	"github.com/fleetkit/workerstd/v1/metrics"
	"github.com/fleetkit/workerstd/v1/rabbit"
	"github.com/fleetkit/workerstd/v1/tracer"
)

// State is the lifecycle state of a worker.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateConsuming
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateConsuming:
		return "consuming"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Runner is implemented by every worker.
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Done() <-chan struct{}
	State() State
}

// Params are the collaborators of a worker.
type Params struct {
	Config   Config
	Topology rabbit.Topology

	Source      DeliverySource
	Initializer TopologyInitializer
	Metrics     metrics.WorkerCollector
	Logger      Logger

	// Publisher is required by NewWithDeadLetter only.
	Publisher Publisher

	// Clients is started before consuming and shut down after draining. It
	// is passed to every handler call. Optional.
	Clients *clients.State

	// Tracer continues the trace of incoming messages. Optional.
	Tracer *tracer.Tracer
}

func (p *Params) validate() error {
	p.Config.SetDefaults()
	if err := p.Config.Validate(); err != nil {
		return err
	}
	switch {
	case p.Topology.Queue == "":
		return fmt.Errorf("%w: queue name is required", ErrInvalidConfig)
	case p.Source == nil:
		return fmt.Errorf("%w: delivery source is required", ErrInvalidConfig)
	case p.Initializer == nil:
		return fmt.Errorf("%w: topology initializer is required", ErrInvalidConfig)
	case p.Metrics == nil:
		return fmt.Errorf("%w: metrics collector is required", ErrInvalidConfig)
	case p.Logger == nil:
		return fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}
	return nil
}

// deliveryPolicy is what distinguishes the worker flavours: how the topology
// is declared and how deliveries are turned into handler calls.
type deliveryPolicy interface {
	name() string
	declare(ctx context.Context, init TopologyInitializer, topo rabbit.Topology) error
	consume(ctx context.Context, deliveries <-chan amqp.Delivery)
}

// Worker consumes one queue until it is stopped. It is created by New,
// NewWithDeadLetter or NewBatch.
//
// Lifecycle: Idle -> Starting -> Consuming -> Draining -> Stopped. Stop lets
// the message or batch in progress finish; deliveries that were received but
// not handed to the handler are requeued.
type Worker struct {
	p      Params
	policy deliveryPolicy

	state  atomic.Int32
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newWorker(p Params, policy func(*Worker) deliveryPolicy) *Worker {
	w := &Worker{p: p, done: make(chan struct{})}
	w.policy = policy(w)
	return w
}

// Queue returns the name of the consumed queue.
func (w *Worker) Queue() string {
	return w.p.Topology.Queue
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

// Done is closed when consumption has ended, either because the worker was
// stopped or because the subscription was lost for good.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Start starts the clients, declares the topology, subscribes to the queue
// and processes deliveries in the background. ctx bounds the startup only.
func (w *Worker) Start(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return fmt.Errorf("%w: worker is %s", ErrAlreadyStarted, w.State())
	}
	fields := map[string]interface{}{"queue": w.Queue(), "worker": w.policy.name()}
	w.p.Logger.InfoWithContext(ctx, "starting worker", nil, fields)

	if w.p.Clients != nil {
		if err := w.p.Clients.Startup(ctx); err != nil {
			w.state.Store(int32(StateStopped))
			return fmt.Errorf("failed to start clients: %w", err)
		}
	}

	if err := w.policy.declare(ctx, w.p.Initializer, w.p.Topology); err != nil {
		w.abortStart(ctx)
		return fmt.Errorf("failed to initialise topology: %w", err)
	}
	if marker, ok := w.p.Source.(interface{ MarkExchangeDeclared() }); ok {
		marker.MarkExchangeDeclared()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	deliveries, err := w.p.Source.Consume(runCtx, rabbit.ConsumeOptions{
		Queue:    w.Queue(),
		Prefetch: w.p.Config.Prefetch,
	})
	if err != nil {
		cancel()
		w.abortStart(ctx)
		return fmt.Errorf("failed to consume from %q: %w", w.Queue(), err)
	}

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	w.state.Store(int32(StateConsuming))

	go func() {
		defer close(w.done)
		w.policy.consume(runCtx, deliveries)
		if runCtx.Err() == nil {
			w.p.Logger.ErrorWithContext(runCtx, "consumer stopped unexpectedly", ErrConsumerStopped, fields)
		}
	}()

	w.p.Logger.InfoWithContext(ctx, "worker started", nil, fields)
	return nil
}

func (w *Worker) abortStart(ctx context.Context) {
	if w.p.Clients != nil {
		if err := w.p.Clients.Shutdown(ctx); err != nil {
			w.p.Logger.WarnWithContext(ctx, "failed to shut down clients", err)
		}
	}
	w.state.Store(int32(StateStopped))
}

// Stop stops consuming, waits until the work in progress is done or ctx ends
// and shuts the clients down. Stopping a worker that does not consume is a
// no-op.
func (w *Worker) Stop(ctx context.Context) error {
	if w.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		return nil
	}
	if !w.state.CompareAndSwap(int32(StateConsuming), int32(StateDraining)) {
		return nil
	}
	fields := map[string]interface{}{"queue": w.Queue(), "worker": w.policy.name()}
	w.p.Logger.InfoWithContext(ctx, "draining worker", nil, fields)

	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	cancel()

	var errs []error
	select {
	case <-w.done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("worker did not drain in time: %w", ctx.Err()))
	}

	if w.p.Clients != nil {
		if err := w.p.Clients.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down clients: %w", err))
		}
	}

	w.state.Store(int32(StateStopped))
	err := errors.Join(errs...)
	w.p.Logger.InfoWithContext(ctx, "worker stopped", err, fields)
	return err
}

// Run starts the worker and blocks until ctx is cancelled or consumption ends
// on its own, then stops it.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-w.done:
		runErr = ErrConsumerStopped
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), DefaultStopTimeout)
	defer cancel()
	return errors.Join(runErr, w.Stop(stopCtx))
}

// processingContext detaches ctx from the cancellation of the consumer, so a
// message in progress finishes during shutdown, and attaches the queue name
// and a new correlation id for logging.
func (w *Worker) processingContext(ctx context.Context, headers amqp.Table) (context.Context, string) {
	ctx = context.WithoutCancel(ctx)
	if w.p.Tracer != nil {
		ctx = w.p.Tracer.ExtractHeaders(ctx, headers)
	}
	return withMessageContext(ctx, w.Queue())
}

func (w *Worker) observe(start time.Time) {
	w.p.Metrics.ObserveExecutionTime(w.Queue(), time.Since(start))
}
