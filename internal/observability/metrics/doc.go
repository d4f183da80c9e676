// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all worker metrics including:
//   - Pipeline metrics (crawls, articles, normalizations)
//   - Job queue metrics (throughput, backlog, reclamations)
//   - Database query metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint of the worker's metrics server.
//
// Example usage:
//
//	import "readflow/internal/observability/metrics"
//
//	func crawlSource(sourceID int64) {
//	    start := time.Now()
//	    // ... crawl ...
//	    metrics.RecordSourceCrawl(sourceID, time.Since(start), true)
//	}
package metrics
