// Package logger provides the structured logger used by every worker process.
//
// It wraps go.uber.org/zap with a small, map based API:
//
//	log := logger.NewLoggerClient(logger.Config{
//		Level:       logger.Info,
//		ServiceName: "orders-worker",
//	})
//	log.Info("worker started", nil, map[string]interface{}{"queue": "orders"})
//
// # Context fields
//
// Messages consumed from the broker are processed under a context that carries
// a correlation id and the queue name. Entries written through the *WithContext
// methods pick these up automatically:
//
//	ctx = logger.WithCorrelationID(ctx, uuid.NewString())
//	ctx = logger.WithQueueName(ctx, "orders")
//	log.ErrorWithContext(ctx, "handler failed", err)
//	// {"level":"ERROR","msg":"handler failed","correlation_id":"...","queue_name":"orders",...}
//
// With Config.EnableTracing the trace_id and span_id of the active OpenTelemetry
// span are added as well.
//
// # FX
//
// FXModule provides *LoggerClient and the Logger interface and syncs the logger
// on shutdown.
package logger
