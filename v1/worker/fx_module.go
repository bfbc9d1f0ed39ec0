package worker

import (
	"context"

	"go.uber.org/fx"

	"github.com/fleetkit/workerstd/v1/clients"
	"github.com/fleetkit/workerstd/v1/logger"
	"github.com/fleetkit/workerstd/v1/metrics"
	"github.com/fleetkit/workerstd/v1/rabbit"
	"github.com/fleetkit/workerstd/v1/tracer"
)

// FXModule provides Params assembled from the rabbit, metrics and logger
// modules and runs the *Worker of the application. The application builds the
// worker itself, since only it knows the message type:
//
//	fx.Provide(func(p worker.Params) (*worker.Worker, error) {
//		return worker.NewWithDeadLetter(p, codec.NewJSON[Order](), handle)
//	}),
//
// When consumption ends on its own the application is shut down with exit
// code 1.
var FXModule = fx.Module("worker",
	fx.Provide(NewParamsWithDI),
	fx.Invoke(RegisterWorkerLifecycle),
)

type ParamsIn struct {
	fx.In

	Config      Config
	Pool        *rabbit.Pool
	Initializer *rabbit.TopologyInitializer
	Publisher   *rabbit.Publisher
	Metrics     *metrics.WorkerMetrics
	Logger      logger.Logger
	Clients     *clients.State `optional:"true"`
	Tracer      *tracer.Tracer `optional:"true"`
}

func NewParamsWithDI(in ParamsIn) Params {
	return Params{
		Config:      in.Config,
		Topology:    rabbit.TopologyFromConfig(in.Pool.Config()),
		Source:      in.Pool,
		Initializer: in.Initializer,
		Metrics:     in.Metrics,
		Logger:      in.Logger,
		Publisher:   in.Publisher,
		Clients:     in.Clients,
		Tracer:      in.Tracer,
	}
}

// RegisterWorkerLifecycle starts the worker on OnStart and drains it on OnStop.
func RegisterWorkerLifecycle(lc fx.Lifecycle, w *Worker, shutdowner fx.Shutdowner) {
	registerRunner(lc, w, shutdowner)
}

func registerRunner(lc fx.Lifecycle, r Runner, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := r.Start(ctx); err != nil {
				return err
			}
			go func() {
				<-r.Done()
				if r.State() == StateConsuming {
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: r.Stop,
	})
}
