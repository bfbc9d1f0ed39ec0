// Package rabbit connects workers to RabbitMQ.
//
// It offers a bounded pool of connections and channels, topology setup for
// plain workers and for workers with delayed retries and a dead letter queue,
// a push consumer with automatic resubscription, a pull Listener and a
// Publisher that never returns an error.
//
// # Architecture
//
// Connections and channels live in two bounded pools. A caller that finds the
// pool exhausted waits until another caller returns a channel. Closed
// resources are dropped on return and replaced lazily, so a broker restart
// heals without a restart of the process:
//
//	Pool
//	 ├── connections (Pool.MaxConnections)
//	 └── channels    (Pool.MaxChannels)
//	       ├── Exchange / Queue / QueueBind (declared once, cached)
//	       ├── Consume                      (one channel per subscription)
//	       └── Publisher.Publish            (borrowed per message)
//
// Topology setup does not use the pool. TopologyInitializer opens its own
// connection with a one second dial timeout and closes it when done.
//
// # Direct Usage (Without FX)
//
//	pool, err := rabbit.NewPool(rabbit.Config{
//		Connection: rabbit.ConnectionConfig{Host: "localhost", Port: 5672, User: "guest", Password: "guest"},
//		Channel: rabbit.ChannelConfig{
//			ExchangeName:      "store",
//			IsExchangeDurable: true,
//			QueueName:         "orders",
//			RoutingKey:        "orders.created",
//			IsQueueDurable:    true,
//		},
//	}, log)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	publisher := rabbit.NewPublisher(pool, log)
//	if !publisher.Publish(ctx, "orders.created", body, nil) {
//		// the failure has been logged
//	}
//
// # Delayed Retries and Dead Letters
//
// InitQueueWithDeadLetter declares three queues on an existing exchange:
//
//	orders        durable, bound to Channel.RoutingKey
//	orders.delay  x-message-ttl = TTLSeconds*1000, dead-letters to "orders"
//	orders.dead   durable, terminal
//
// A message published to the delay routing key comes back to the primary
// queue after the TTL expires.
//
// # FX Module Integration
//
//	app := fx.New(
//		logger.FXModule,
//		tracer.FXModule,
//		rabbit.FXModule,
//		fx.Provide(func() rabbit.Config { return cfg }),
//	)
//
// The module provides *Pool, *Publisher and *TopologyInitializer and closes
// the pool when the application stops. The publisher injects trace context
// into message headers when a *tracer.Tracer is available.
//
// # Errors
//
// Broker and network failures are translated into the sentinel errors of
// errors.go. The original error stays in the chain:
//
//	if errors.Is(err, rabbit.ErrAccessDenied) {
//		// wrong credentials, retrying will not help
//	}
package rabbit
