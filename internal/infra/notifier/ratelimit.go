package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket guarding one webhook endpoint. Discord and
// Slack enforce per-webhook limits server-side; staying under them locally
// avoids burning deliveries on 429 responses.
//
// On top of the bucket it carries a penalty window: when the service answers
// 429 anyway, Penalize pushes the hinted Retry-After onto every sender of
// this endpoint, not just the goroutine that saw the response.
type RateLimiter struct {
	limiter *rate.Limiter

	mu        sync.Mutex
	notBefore time.Time
}

// NewRateLimiter creates a limiter sustaining requestsPerSecond with the
// given burst capacity.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Allow blocks until a token is available and any penalty window has passed,
// or the context is canceled.
func (r *RateLimiter) Allow(ctx context.Context) error {
	r.mu.Lock()
	wait := time.Until(r.notBefore)
	r.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return r.limiter.Wait(ctx)
}

// Penalize holds all senders back for the server-provided Retry-After
// duration. A shorter penalty never shortens one already in effect.
func (r *RateLimiter) Penalize(retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}
	until := time.Now().Add(retryAfter)

	r.mu.Lock()
	if until.After(r.notBefore) {
		r.notBefore = until
	}
	r.mu.Unlock()
}
