package metrics

import (
	"fmt"
	"time"
)

// RecordSourceCrawl records the outcome of one source crawl run.
// This metric helps track crawling performance and source activity.
//
// Parameters:
//   - sourceID: ID of the crawled source
//   - duration: Time taken for the full run
//   - success: Whether the run completed without error
//
// Individual article creations are recorded separately by
// RecordArticleCreated.
func RecordSourceCrawl(sourceID int64, duration time.Duration, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	id := fmt.Sprintf("%d", sourceID)
	SourceCrawlsTotal.WithLabelValues(id, result).Inc()
	SourceCrawlDuration.WithLabelValues(id).Observe(duration.Seconds())
}

// RecordCrawlError records an error during source crawling.
// errorType should name the failing stage (e.g. "fetch", "persist").
func RecordCrawlError(sourceID int64, errorType string) {
	SourceCrawlErrors.WithLabelValues(fmt.Sprintf("%d", sourceID), errorType).Inc()
}

// RecordArticleCreated records one persisted article for the source.
func RecordArticleCreated(sourceID int64) {
	ArticlesCreatedTotal.WithLabelValues(fmt.Sprintf("%d", sourceID)).Inc()
}

// RecordArticleSkipped records a candidate that was skipped before
// persistence. Reason should be "duplicate", "fetch" or "extract".
func RecordArticleSkipped(sourceID int64, reason string) {
	ArticlesSkippedTotal.WithLabelValues(fmt.Sprintf("%d", sourceID), reason).Inc()
}

// RecordNormalization records the result of an article normalization call.
// aiSucceeded is false when the deterministic fallback was used.
func RecordNormalization(duration time.Duration, aiSucceeded bool) {
	status := "success"
	if !aiSucceeded {
		status = "fallback"
	}
	NormalizationsTotal.WithLabelValues(status).Inc()
	NormalizationDuration.Observe(duration.Seconds())
}

// RecordJobProcessed records one job leaving the running state.
// Status should be "completed", "retried" or "failed".
func RecordJobProcessed(status string, duration time.Duration) {
	JobsProcessedTotal.WithLabelValues(status).Inc()
	JobDuration.Observe(duration.Seconds())
}

// UpdateJobsPending updates the pending-job backlog gauge.
// This gauge should be updated on every poll cycle.
func UpdateJobsPending(count int) {
	JobsPending.Set(float64(count))
}

// RecordJobReclaimed records one stuck job reclaimed by the poll loop.
func RecordJobReclaimed() {
	JobsReclaimedTotal.Inc()
}

// RecordContentFetchSuccess records a successful page fetch.
//
// Parameters:
//   - duration: Time taken to fetch the content
//   - size: Size of fetched content in bytes
func RecordContentFetchSuccess(duration time.Duration, size int) {
	ContentFetchDuration.Observe(duration.Seconds())
	ContentFetchSize.Observe(float64(size))
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "select_articles", "insert_article").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
