// Package metrics exposes the Prometheus metrics of a worker process.
//
// Each process owns an isolated registry (Metrics.Registry) wrapped with a
// constant service label. WorkerMetrics registers the message flow metrics
// that every worker records:
//
//	incoming_messages_count{queue_name}
//	successful_messages_count{queue_name}
//	wrong_formatted_messages_count{queue_name}
//	processing_errors_count{queue_name}
//	delayed_message_count{queue_name}
//	dead_message_count{queue_name}
//	execution_message_time{queue_name}   histogram, seconds
//
// Workers never touch package level state: a WorkerCollector is handed to each
// worker when it is constructed.
//
//	m := metrics.NewMetrics(metrics.Config{Address: ":9090", ServiceName: "orders-worker"})
//	wm := metrics.NewWorkerMetrics(m)
//	wm.IncomingMessages("orders", 1)
//
// When Config.Version is set, application_version{version,commit_hash} is
// exported with the value 1.
//
// FXModule provides both types and manages the server lifecycle.
package metrics
