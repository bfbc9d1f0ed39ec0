package health

import (
	"context"

	"go.uber.org/fx"

	"github.com/fleetkit/workerstd/v1/logger"
	"github.com/fleetkit/workerstd/v1/metrics"
)

// FXModule serves the health endpoint for the lifetime of the application
// when Config.Enabled is set. The application provides the CheckFunc.
var FXModule = fx.Module("health",
	fx.Provide(NewServerWithDI),
	fx.Invoke(RegisterHealthLifecycle),
)

type ServerParams struct {
	fx.In

	Config  Config
	Check   CheckFunc
	Logger  logger.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// NewServerWithDI returns nil when the endpoint is disabled.
func NewServerWithDI(params ServerParams) *Server {
	if !params.Config.Enabled {
		return nil
	}
	var recorder RequestRecorder
	if params.Metrics != nil {
		recorder = params.Metrics
	}
	return NewServer(params.Config, NewHandler(params.Check, params.Logger, recorder), params.Logger)
}

func RegisterHealthLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			server.Start(context.WithoutCancel(ctx))
			return nil
		},
		OnStop: server.Shutdown,
	})
}
