package clients

import (
	"context"

	"go.uber.org/fx"

	"github.com/fleetkit/workerstd/v1/logger"
)

// FXModule provides *State. The worker owns the lifecycle of the state: it
// starts the clients before consuming and shuts them down after draining.
var FXModule = fx.Module("clients",
	fx.Provide(NewStateWithDI),
)

type StateParams struct {
	fx.In

	Config Config        `optional:"true"`
	Logger logger.Logger `optional:"true"`
}

func NewStateWithDI(params StateParams) *State {
	var log Logger = nopLogger{}
	if params.Logger != nil {
		log = params.Logger
	}
	return NewState(params.Config, log)
}

type nopLogger struct{}

func (nopLogger) InfoWithContext(context.Context, string, error, ...map[string]interface{})  {}
func (nopLogger) WarnWithContext(context.Context, string, error, ...map[string]interface{})  {}
func (nopLogger) ErrorWithContext(context.Context, string, error, ...map[string]interface{}) {}
