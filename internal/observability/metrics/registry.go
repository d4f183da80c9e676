// Package metrics provides centralized Prometheus metrics for the worker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics track crawl and article processing outcomes
var (
	// SourceCrawlsTotal counts crawl runs per source by result
	SourceCrawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_crawls_total",
			Help: "Total number of source crawl runs",
		},
		[]string{"source_id", "result"},
	)

	// SourceCrawlDuration measures time to crawl one source end to end
	SourceCrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_crawl_duration_seconds",
			Help:    "Time taken to crawl a source",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"source_id"},
	)

	// SourceCrawlErrors counts errors during source crawling
	SourceCrawlErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_crawl_errors_total",
			Help: "Total number of source crawl errors",
		},
		[]string{"source_id", "error_type"},
	)

	// ArticlesCreatedTotal counts articles persisted per source
	ArticlesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_created_total",
			Help: "Total number of articles created",
		},
		[]string{"source_id"},
	)

	// ArticlesSkippedTotal counts candidates skipped by reason
	ArticlesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_skipped_total",
			Help: "Total number of candidate articles skipped",
		},
		[]string{"source_id", "reason"}, // reason: duplicate, fetch, extract
	)

	// NormalizationsTotal counts normalization calls by status
	NormalizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalizations_total",
			Help: "Total number of article normalizations",
		},
		[]string{"status"}, // status: success, fallback
	)

	// NormalizationDuration measures time to normalize an article
	NormalizationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "normalization_duration_seconds",
			Help:    "Time taken to normalize an article",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// ContentFetchDuration measures time to fetch a page body
	ContentFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "content_fetch_duration_seconds",
			Help:    "Time taken to fetch page content",
			Buckets: []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8},
		},
	)

	// ContentFetchSize measures fetched content size in bytes
	ContentFetchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "content_fetch_size_bytes",
			Help: "Fetched page content size in bytes",
			Buckets: []float64{
				100, 200, 400, 800, 1600, 3200, 6400, 12800,
				25600, 51200, 102400, 204800, 409600, 819200,
				1638400, 3276800, 6553600, 10485760, // up to 10MB
			},
		},
	)
)

// Job queue metrics track queue throughput and backlog
var (
	// JobsProcessedTotal counts completed poll-loop job executions by status
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs processed by the queue worker",
		},
		[]string{"status"}, // status: completed, retried, failed
	)

	// JobDuration measures end-to-end job execution time
	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Time taken to execute one job",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	// JobsPending gauges the current pending-job backlog
	JobsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_pending",
			Help: "Number of jobs currently pending",
		},
	)

	// JobsReclaimedTotal counts stuck jobs reclaimed by the poll loop
	JobsReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_reclaimed_total",
			Help: "Total number of stuck jobs reclaimed",
		},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
