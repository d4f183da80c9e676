package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", fmt.Errorf("fetch: %w", context.DeadlineExceeded), false},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset wrapped", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"http 500", &HTTPError{StatusCode: 500, Message: "internal"}, true},
		{"http 503 wrapped", fmt.Errorf("fetch: %w", &HTTPError{StatusCode: 503, Message: "unavailable"}), true},
		{"http 429", &HTTPError{StatusCode: 429, Message: "rate limited"}, true},
		{"http 408", &HTTPError{StatusCode: 408, Message: "timeout"}, true},
		{"http 404", &HTTPError{StatusCode: 404, Message: "not found"}, false},
		{"http 400", &HTTPError{StatusCode: 400, Message: "bad request"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetryAfterHint(t *testing.T) {
	hint, ok := RetryAfterHint(fmt.Errorf("llm: %w", &HTTPError{StatusCode: 429, RetryAfter: 3 * time.Second}))
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, hint)

	_, ok = RetryAfterHint(&HTTPError{StatusCode: 429})
	assert.False(t, ok, "no hint without a Retry-After value")

	_, ok = RetryAfterHint(errors.New("boom"))
	assert.False(t, ok)
}

func TestWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return &HTTPError{StatusCode: 503, Message: "unavailable"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithBackoff_NonRetryableAbortsImmediately(t *testing.T) {
	wantErr := &HTTPError{StatusCode: 404, Message: "not found"}
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		calls++
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestWithBackoff_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		calls++
		return syscall.ECONNREFUSED
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retry attempts")
}

func TestWithBackoff_ContextCancelAbortsWait(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Minute
	cfg.MaxDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := WithBackoff(ctx, cfg, func() error {
		calls++
		return &HTTPError{StatusCode: 500, Message: "internal"}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestAddJitter(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, base, addJitter(base, 0))

	for i := 0; i < 20; i++ {
		jittered := addJitter(base, 0.5)
		assert.GreaterOrEqual(t, jittered, base)
		assert.LessOrEqual(t, jittered, base+base/2)
	}
}
