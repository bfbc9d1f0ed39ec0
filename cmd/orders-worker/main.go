// Command orders-worker consumes orders.created and stores the orders in
// Postgres. Invalid orders end up in the dead letter queue, failed writes are
// retried through the delay queue.
//
// Configuration is read from the environment and an optional .env file, see
// loadConfig. WORKER_MODE=batch stores orders in batches instead.
package main

import (
	"context"

	"go.uber.org/fx"

	"github.com/fleetkit/workerstd/v1/clients"
	"github.com/fleetkit/workerstd/v1/codec"
	"github.com/fleetkit/workerstd/v1/health"
	"github.com/fleetkit/workerstd/v1/logger"
	"github.com/fleetkit/workerstd/v1/metrics"
	"github.com/fleetkit/workerstd/v1/rabbit"
	"github.com/fleetkit/workerstd/v1/tracer"
	"github.com/fleetkit/workerstd/v1/worker"
)

func main() {
	cfg := loadConfig()

	fx.New(
		fx.Supply(cfg, cfg.Logger, cfg.Tracer, cfg.Metrics, cfg.Rabbit, cfg.Worker, cfg.Health, cfg.Clients),
		logger.FXModule,
		tracer.FXModule,
		metrics.FXModule,
		rabbit.FXModule,
		clients.FXModule,
		health.FXModule,
		worker.FXModule,
		fx.Provide(
			newOrderStore,
			newOrderWorker,
			newHealthCheck,
		),
		fx.Invoke(registerDatabase),
	).Run()
}

func registerDatabase(cfg config, state *clients.State) error {
	if cfg.Database == nil {
		return nil
	}
	return state.RegisterPgxPool(ordersDB, *cfg.Database)
}

func newOrderStore(cfg config, state *clients.State, log logger.Logger) orderStore {
	if cfg.Database == nil {
		return logStore{log: log}
	}
	return pgxStore{state: state}
}

func newOrderWorker(cfg config, p worker.Params, store orderStore, log logger.Logger) (*worker.Worker, error) {
	h := &orderHandler{store: store, log: log}
	c := codec.NewJSON[Order]()
	if cfg.Batch {
		return worker.NewBatch(p, c, h.HandleBatch)
	}
	return worker.NewWithDeadLetter(p, c, h.Handle)
}

// newHealthCheck reports the clients of the worker and the broker connection.
func newHealthCheck(state *clients.State, pool *rabbit.Pool) health.CheckFunc {
	return func(ctx context.Context) map[string]string {
		errs := state.Health(ctx)
		if err := pool.Ping(ctx); err != nil {
			errs["rabbitmq"] = err.Error()
		}
		return errs
	}
}
