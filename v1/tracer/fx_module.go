package tracer

import (
	"context"

	"go.uber.org/fx"

	"github.com/fleetkit/workerstd/v1/logger"
)

// FXModule provides *Tracer and flushes it on shutdown.
var FXModule = fx.Module("tracer",
	fx.Provide(
		func(cfg Config, log logger.Logger) (*Tracer, error) {
			return NewClient(cfg, log)
		},
	),
	fx.Invoke(RegisterTracerLifecycle),
)

// RegisterTracerLifecycle shuts the tracer provider down when the application stops.
func RegisterTracerLifecycle(lc fx.Lifecycle, tracer *Tracer) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			tracer.logger.Info("shutting down tracer", nil)
			return tracer.Shutdown(ctx)
		},
	})
}
