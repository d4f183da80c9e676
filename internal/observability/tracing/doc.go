// Package tracing provides OpenTelemetry tracing integration for the worker.
//
// Spans cover job executions and pipeline stages. No exporter is wired yet;
// the provider still issues trace IDs, which are attached to logs for
// correlation. Exporter integration (OTLP) is a later phase.
//
// Example usage:
//
//	import "readflow/internal/observability/tracing"
//
//	func main() {
//	    shutdown, err := tracing.InitTracer("readflow-worker")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer func() { _ = shutdown(context.Background()) }()
//	}
//
//	func runJob(ctx context.Context, job *entity.Job) {
//	    ctx, span := tracing.StartJobSpan(ctx, job.ID, job.SourceID)
//	    defer span.End()
//	    // ... run job ...
//	}
package tracing
