package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"readflow/internal/pkg/config"
)

// WorkerMetrics provides Prometheus metrics for the worker process. It
// embeds the standard ConfigMetrics for configuration monitoring and adds
// scheduler tick metrics.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp
//   - worker_config_validation_errors_total
//   - worker_config_fallbacks_total
//   - worker_config_fallback_active
//
// Worker-specific metrics:
//   - worker_scheduler_ticks_total: Scheduler ticks by status (success/failure/skipped)
//   - worker_scheduler_tick_duration_seconds: Duration histogram of scheduler ticks
//   - worker_scheduler_jobs_enqueued_total: Jobs enqueued across all ticks
//   - worker_scheduler_last_success_timestamp: Unix timestamp of last successful tick
type WorkerMetrics struct {
	*config.ConfigMetrics

	// SchedulerTicksTotal counts scheduler ticks by outcome.
	// Labels: status (success, failure, skipped)
	SchedulerTicksTotal *prometheus.CounterVec

	// SchedulerTickDurationSeconds measures how long a full tick takes.
	// Buckets span 100ms to 5m: a tick only enqueues jobs, it does not crawl.
	SchedulerTickDurationSeconds prometheus.Histogram

	// SchedulerJobsEnqueuedTotal counts jobs created by scheduler ticks.
	SchedulerJobsEnqueuedTotal prometheus.Counter

	// SchedulerLastSuccessTimestamp is the Unix time of the last clean tick.
	SchedulerLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates the worker metrics set. Registration with the
// default Prometheus registry happens on creation via promauto.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		SchedulerTicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_scheduler_ticks_total",
			Help: "Total number of scheduler ticks by status",
		}, []string{"status"}),

		SchedulerTickDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_scheduler_tick_duration_seconds",
			Help:    "Duration of scheduler ticks in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),

		SchedulerJobsEnqueuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_scheduler_jobs_enqueued_total",
			Help: "Total number of jobs enqueued by scheduler ticks",
		}),

		SchedulerLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_scheduler_last_success_timestamp",
			Help: "Unix timestamp of the last successful scheduler tick",
		}),
	}
}

// RecordTick increments the tick counter for the given status
// ("success", "failure" or "skipped").
func (m *WorkerMetrics) RecordTick(status string) {
	m.SchedulerTicksTotal.WithLabelValues(status).Inc()
}

// RecordTickDuration observes the duration of one scheduler tick in seconds.
func (m *WorkerMetrics) RecordTickDuration(seconds float64) {
	m.SchedulerTickDurationSeconds.Observe(seconds)
}

// RecordJobsEnqueued adds the number of jobs created during one tick.
func (m *WorkerMetrics) RecordJobsEnqueued(count int) {
	m.SchedulerJobsEnqueuedTotal.Add(float64(count))
}

// RecordLastSuccess records the current time as the last successful tick.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.SchedulerLastSuccessTimestamp.SetToCurrentTime()
}
