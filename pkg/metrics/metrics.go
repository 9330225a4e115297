package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksScheduledTotal counts every task the manager schedules, across
	// all identity kinds (native, resolve, trait, root, once). An in-place
	// re-run after a stale discard is not counted again.
	TasksScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellgraph_tasks_scheduled_total",
			Help: "Total number of task executions scheduled",
		},
	)

	// TasksExecutedTotal counts committed, successful executions. Stale
	// discards and failures are counted by TasksStaleDiscardedTotal and
	// TasksFailedTotal instead.
	TasksExecutedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellgraph_tasks_executed_total",
			Help: "Total number of task bodies that ran to completion",
		},
	)

	TasksFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellgraph_tasks_failed_total",
			Help: "Total number of task executions that returned an error",
		},
	)

	TasksStaleDiscardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellgraph_tasks_stale_discarded_total",
			Help: "Total number of executions discarded because the task was invalidated mid-flight",
		},
	)

	TasksDeactivatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellgraph_tasks_deactivated_total",
			Help: "Total number of tasks removed by the liveness reaper",
		},
	)

	ActiveTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellgraph_active_tasks",
			Help: "Number of tasks currently Scheduled or InProgress",
		},
	)

	SchedulerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellgraph_scheduler_queue_depth",
			Help: "Number of jobs waiting in the scheduler pool's queue",
		},
	)

	CacheSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cellgraph_dedup_cache_size",
			Help: "Number of entries in a dedup cache table",
		},
		[]string{"cache"},
	)

	SlotWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellgraph_slot_writes_total",
			Help: "Total number of slot writes, split by whether the value actually changed",
		},
		[]string{"changed"},
	)

	QuiescenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cellgraph_quiescence_duration_seconds",
			Help:    "Wall-clock time from the first scheduled task after quiescence to the next quiescence",
			Buckets: prometheus.DefBuckets,
		},
	)

	TaskExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cellgraph_task_execution_duration_seconds",
			Help:    "Wall-clock time a single task body execution takes",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		TasksScheduledTotal,
		TasksExecutedTotal,
		TasksFailedTotal,
		TasksStaleDiscardedTotal,
		TasksDeactivatedTotal,
		ActiveTasks,
		SchedulerQueueDepth,
		CacheSize,
		SlotWritesTotal,
		QuiescenceDuration,
		TaskExecutionDuration,
	)
}

// Handler returns the Prometheus scrape HTTP handler, for embedders that
// want to expose these collectors on their own mux.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
