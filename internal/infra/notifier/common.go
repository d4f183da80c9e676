package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"readflow/internal/domain/entity"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// Common webhook error types used by Discord and Slack notifiers

// RateLimitError represents a 429 rate limit error from a webhook service.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string // Optional custom message
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError represents a 4xx client error from a webhook service.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError represents a 5xx server error from a webhook service.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// is429Error checks if the error is a rate limit error and extracts retry_after.
func is429Error(err error) (*RateLimitError, bool) {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr, true
	}
	return nil, false
}

// isRetryableError checks if the error is worth retrying (5xx server errors, network errors).
// Client errors (4xx) are not retryable except for rate limits (429).
func isRetryableError(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return false // Handled by is429Error
	}

	// Network errors, context errors, etc. are retryable
	return true
}

// sendWithRetry runs the webhook send with the retry policy shared by all
// webhook notifiers:
//   - Max attempts: 2
//   - 429 errors: sleep for retry_after from the response, then retry
//   - Server errors (5xx) and network errors: linear backoff (5s, 10s)
//   - Client errors (4xx): no retry, fail immediately
//
// A 429 additionally penalizes the endpoint's limiter so concurrent senders
// back off too.
//
// All attempts are logged with request_id for tracing.
func sendWithRetry(ctx context.Context, service string, limiter *RateLimiter, article *entity.Article, send func(context.Context) error) error {
	const (
		maxAttempts = 2
		baseDelay   = 5 * time.Second
	)

	requestID, _ := ctx.Value(requestIDKey).(string)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := send(ctx)
		if err == nil {
			slog.Info("notification successful",
				slog.String("service", service),
				slog.String("request_id", requestID),
				slog.Int64("article_id", article.ID),
				slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if rateLimitErr, ok := is429Error(err); ok {
			if limiter != nil {
				limiter.Penalize(rateLimitErr.RetryAfter)
			}
			slog.Warn("webhook rate limit hit, backing off",
				slog.String("service", service),
				slog.String("request_id", requestID),
				slog.Int64("article_id", article.ID),
				slog.Duration("retry_after", rateLimitErr.RetryAfter),
				slog.Int("attempt", attempt))
			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			slog.Error("notification failed with non-retryable error",
				slog.String("service", service),
				slog.String("request_id", requestID),
				slog.Int64("article_id", article.ID),
				slog.Any("error", err),
				slog.Int("attempt", attempt))
			return err
		}

		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)
			slog.Warn("webhook request failed, retrying",
				slog.String("service", service),
				slog.String("request_id", requestID),
				slog.Int64("article_id", article.ID),
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}

	slog.Error("notification failed after all retries",
		slog.String("service", service),
		slog.String("request_id", requestID),
		slog.Int64("article_id", article.ID),
		slog.Any("error", lastErr),
		slog.Int("max_attempts", maxAttempts))
	return fmt.Errorf("%s notification failed after %d attempts: %w", service, maxAttempts, lastErr)
}

// truncateSummary truncates text to maxLength characters.
// If truncated, appends suffix to indicate continuation.
func truncateSummary(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}

	truncateAt := maxLength - len(suffix)
	if truncateAt < 0 {
		truncateAt = 0
	}
	return text[:truncateAt] + suffix
}

// articleHost returns the host of the article URL, used as the notification
// footer in place of a source name.
func articleHost(article *entity.Article) string {
	u, err := url.Parse(article.URL)
	if err != nil || u.Host == "" {
		return "readflow"
	}
	return u.Host
}

// articleTimestamp picks the best display timestamp for the article.
func articleTimestamp(article *entity.Article) time.Time {
	if article.PublishedAt != nil {
		return *article.PublishedAt
	}
	if !article.CreatedAt.IsZero() {
		return article.CreatedAt
	}
	return time.Now()
}
