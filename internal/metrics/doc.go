// Package metrics provides real-time metrics collection for the heartbeat
// workers.
//
// It uses a channel-based event pipeline to asynchronously collect, per proxy:
//   - Successful and de-authenticated sessions
//   - Heartbeat successes and failures
//   - Time of the last accepted heartbeat
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the workers. Emit is non-blocking: when the buffer is full the
// event is dropped rather than delaying a heartbeat.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:  metrics.EventHeartbeatSucceeded,
//		Proxy: "http://10.0.0.1:3128",
//	})
//
//	snapshot := collector.Snapshot()
//
// The package provides thread-safe metrics storage using sync.RWMutex and
// supports graceful shutdown with event draining to prevent data loss.
package metrics
