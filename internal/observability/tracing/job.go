package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartJobSpan starts a span covering one queue job execution, annotated
// with the job and source identity so traces can be correlated with the
// jobs table.
func StartJobSpan(ctx context.Context, jobID, sourceID int64) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "queue.run_job",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.Int64("job.id", jobID),
		attribute.Int64("source.id", sourceID),
	)
	return ctx, span
}

// EndJobSpan records the job outcome on the span and ends it.
func EndJobSpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("job.status", status))
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.RecordError(err)
	}
	span.End()
}
