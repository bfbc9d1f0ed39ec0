package rabbit

import (
	"context"

	"go.uber.org/fx"

	"github.com/fleetkit/workerstd/v1/logger"
	"github.com/fleetkit/workerstd/v1/tracer"
)

// FXModule provides *Pool, *Publisher and *TopologyInitializer and closes the
// pool when the application stops. A rabbit.Config must be available; a
// logger.Logger and a *tracer.Tracer are used when present.
//
//	app := fx.New(
//	    logger.FXModule,
//	    rabbit.FXModule,
//	    fx.Provide(func() rabbit.Config { return cfg }),
//	)
var FXModule = fx.Module("rabbit",
	fx.Provide(
		NewPoolWithDI,
		NewPublisherWithDI,
		NewTopologyInitializerWithDI,
	),
	fx.Invoke(RegisterPoolLifecycle),
)

// PoolParams groups the dependencies of NewPoolWithDI.
type PoolParams struct {
	fx.In

	Config Config
	Logger logger.Logger `optional:"true"`
}

// NewPoolWithDI builds the pool from injected dependencies.
func NewPoolWithDI(params PoolParams) (*Pool, error) {
	return NewPool(params.Config, loggerOrNop(params.Logger))
}

// PublisherParams groups the dependencies of NewPublisherWithDI.
type PublisherParams struct {
	fx.In

	Pool   *Pool
	Logger logger.Logger  `optional:"true"`
	Tracer *tracer.Tracer `optional:"true"`
}

// NewPublisherWithDI builds a publisher that propagates trace context when a
// tracer is available.
func NewPublisherWithDI(params PublisherParams) *Publisher {
	var opts []PublisherOption
	if params.Tracer != nil {
		opts = append(opts, WithHeaderInjector(params.Tracer))
	}
	return NewPublisher(params.Pool, loggerOrNop(params.Logger), opts...)
}

// TopologyParams groups the dependencies of NewTopologyInitializerWithDI.
type TopologyParams struct {
	fx.In

	Config Config
	Logger logger.Logger `optional:"true"`
}

func NewTopologyInitializerWithDI(params TopologyParams) *TopologyInitializer {
	return NewTopologyInitializer(params.Config, loggerOrNop(params.Logger))
}

// RegisterPoolLifecycle closes the pool on OnStop. fx runs OnStop hooks in
// reverse order, so lifecycles registered after this module stop first.
func RegisterPoolLifecycle(lc fx.Lifecycle, pool *Pool) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pool.Close()
		},
	})
}

type nopLogger struct{}

func (nopLogger) DebugWithContext(context.Context, string, error, ...map[string]interface{}) {}
func (nopLogger) InfoWithContext(context.Context, string, error, ...map[string]interface{})  {}
func (nopLogger) WarnWithContext(context.Context, string, error, ...map[string]interface{})  {}
func (nopLogger) ErrorWithContext(context.Context, string, error, ...map[string]interface{}) {}

func loggerOrNop(l logger.Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
