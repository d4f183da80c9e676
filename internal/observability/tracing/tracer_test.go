package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer(t *testing.T) {
	shutdown, err := InitTracer("readflow-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	ctx, span := StartSpan(context.Background(), "test-operation")
	assert.NotNil(t, ctx)
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestStartJobSpan(t *testing.T) {
	_, err := InitTracer("readflow-test")
	require.NoError(t, err)

	tests := []struct {
		name     string
		jobID    int64
		sourceID int64
		status   string
		runErr   error
	}{
		{
			name:     "completed job",
			jobID:    1,
			sourceID: 10,
			status:   "completed",
			runErr:   nil,
		},
		{
			name:     "failed job",
			jobID:    2,
			sourceID: 20,
			status:   "failed",
			runErr:   errors.New("fetch failed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, span := StartJobSpan(context.Background(), tt.jobID, tt.sourceID)
			assert.NotNil(t, ctx)
			assert.True(t, span.SpanContext().IsValid())
			assert.NotPanics(t, func() {
				EndJobSpan(span, tt.status, tt.runErr)
			})
		})
	}
}
