/*
Package metrics defines and registers the engine's Prometheus collectors:
task lifecycle counters (scheduled, executed, failed, stale-discarded,
deactivated), gauges for active task count and scheduler queue depth, a
per-cache-table size gauge, a slot-write counter split by whether the
value actually changed, and two histograms (execution duration,
quiescence duration).

All collectors are registered against the default registry at package
init, matching the teacher's pkg/metrics. Handler exposes them over
promhttp for an embedder's own mux; nothing in this package starts an
HTTP server itself.

# Usage

	timer := metrics.NewTimer()
	// ... execute a task body ...
	timer.ObserveDuration(metrics.TaskExecutionDuration)

	metrics.ActiveTasks.Set(float64(activeTasks))
	metrics.SlotWritesTotal.WithLabelValues("true").Inc()
*/
package metrics
