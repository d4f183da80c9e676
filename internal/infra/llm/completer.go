// Package llm provides language-model completion clients used by the
// ingestion pipeline for page classification and content normalization.
// It includes adapters for Claude (Anthropic) and OpenAI APIs with
// reliability patterns: client-side rate limiting, circuit breaking,
// and a hard per-call deadline enforced independently of the HTTP client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Completer is the contract the pipeline requires from an LLM collaborator:
// a structured completion with bounded latency, opaque to model identity.
type Completer interface {
	// Complete sends a system+user prompt pair and returns the raw text
	// response. Implementations must surface HTTP 429 as *RateLimitError
	// so callers can apply their rate-limit retry policy.
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// RateLimitError indicates the provider rejected the call with HTTP 429.
// RetryAfter carries the server's Retry-After hint when present, zero
// otherwise.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
	}
	return "rate limited"
}

// AsRateLimit extracts a *RateLimitError from the error chain, if any.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// ErrCallTimeout indicates a completion call exceeded its overall deadline
// and was abandoned.
var ErrCallTimeout = errors.New("llm call exceeded overall deadline")

// completionResult carries one call's outcome across the deadline race.
type completionResult struct {
	text string
	err  error
}

// raceDeadline runs fn in its own goroutine and races it against the overall
// call budget. A call that overruns is abandoned, not awaited: the goroutine
// finishes on its own once the HTTP layer gives up, and its result is
// discarded via the buffered channel.
func raceDeadline(ctx context.Context, budget time.Duration, fn func(ctx context.Context) (string, error)) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	ch := make(chan completionResult, 1)
	go func() {
		text, err := fn(callCtx)
		ch <- completionResult{text: text, err: err}
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.text, res.err
	case <-timer.C:
		return "", fmt.Errorf("%w: %v", ErrCallTimeout, budget)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
