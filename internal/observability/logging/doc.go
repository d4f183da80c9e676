// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the worker.
//
// Key features:
//   - JSON and text output formats
//   - Job identity propagation
//   - Context-aware logging
//   - Configurable log levels
//
// Example usage:
//
//	import "readflow/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("worker started", slog.String("version", "1.0"))
//	}
//
//	func runJob(job *entity.Job) {
//	    logger := logging.WithJob(slog.Default(), job.ID, job.SourceID)
//	    logger.Info("processing job")
//	}
package logging
