package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corral_tasks_by_status",
			Help: "Current number of tasks by (role, job, status)",
		},
		[]string{"role", "job", "status"},
	)

	TaskTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_task_transitions_total",
			Help: "Total number of task state transitions by target status",
		},
		[]string{"status"},
	)

	TasksRescheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_tasks_rescheduled_total",
			Help: "Total number of tasks rescheduled, by reason",
		},
		[]string{"reason"}, // reschedule, update, rollback
	)

	// Transaction metrics
	WriteTransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corral_write_transaction_duration_seconds",
			Help:    "Time taken to commit a write transaction, including drain",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_workqueue_depth",
			Help: "Commands enqueued but not yet drained, across all live transactions",
		},
	)

	// Update coordinator metrics
	UpdatesStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_updates_started_total",
			Help: "Total number of rolling updates registered",
		},
	)

	UpdatesFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_updates_finished_total",
			Help: "Total number of rolling updates finished, by outcome",
		},
		[]string{"outcome"}, // SUCCESS, FAILED
	)

	ShardsModifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_shards_modified_total",
			Help: "Total number of shards touched by modifyShards, by result",
		},
		[]string{"result"}, // ADDED, RESTARTING, UNCHANGED
	)

	// Kill-task backoff metrics
	KillTaskWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corral_kill_task_wait_duration_seconds",
			Help:    "Time spent polling for killed tasks to leave the active set",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event broker metrics
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_events_published_total",
			Help: "Total number of post-commit events published, by kind",
		},
		[]string{"kind"},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_events_dropped_total",
			Help: "Events lost to subscribers that stopped draining their channel",
		},
	)
)

func init() {
	prometheus.MustRegister(TasksByStatus)
	prometheus.MustRegister(TaskTransitionsTotal)
	prometheus.MustRegister(TasksRescheduledTotal)
	prometheus.MustRegister(WriteTransactionDuration)
	prometheus.MustRegister(WorkQueueDepth)
	prometheus.MustRegister(UpdatesStartedTotal)
	prometheus.MustRegister(UpdatesFinishedTotal)
	prometheus.MustRegister(ShardsModifiedTotal)
	prometheus.MustRegister(KillTaskWaitDuration)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(EventsDroppedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
