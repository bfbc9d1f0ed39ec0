package worker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fleetkit/workerstd/v1/rabbit"
)

//go:generate mockgen -source=interface.go -destination=mock_interface.go -package=worker

// DeliverySource subscribes to a queue. *rabbit.Pool implements it.
type DeliverySource interface {
	Consume(ctx context.Context, opts rabbit.ConsumeOptions) (<-chan amqp.Delivery, error)
}

// TopologyInitializer declares the queues of a worker before it consumes.
// *rabbit.TopologyInitializer implements it.
type TopologyInitializer interface {
	InitQueue(ctx context.Context, topo rabbit.Topology) error
	InitQueueWithDeadLetter(ctx context.Context, topo rabbit.Topology) error
}

// Publisher republishes messages to the delay and dead letter queues.
// *rabbit.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, headers amqp.Table) bool
}

// Logger is the logging contract of the package.
type Logger interface {
	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

var (
	_ DeliverySource      = (*rabbit.Pool)(nil)
	_ TopologyInitializer = (*rabbit.TopologyInitializer)(nil)
	_ Publisher           = (*rabbit.Publisher)(nil)
)
