// Package notify dispatches new-article notifications across the configured
// delivery channels (Discord, Slack). Each channel is guarded by its own
// circuit breaker so a broken webhook cannot slow down article processing.
package notify

import (
	"context"

	"readflow/internal/domain/entity"
)

// Channel represents a notification delivery channel (Discord, Slack, etc.).
// Each channel implementation handles its own rate limiting, retries, and
// error handling.
//
// Thread Safety:
//   - All methods must be safe for concurrent use by multiple goroutines
//
// Context Handling:
//   - Implementations must respect context cancellation and timeout
//   - request_id should be extracted from context for logging
type Channel interface {
	// Name returns the human-readable name of the channel (e.g., "discord",
	// "slack"). This is used for logging, metrics, and health reporting.
	Name() string

	// IsEnabled returns true if this channel is enabled via configuration.
	// Disabled channels are skipped during dispatching.
	IsEnabled() bool

	// Send delivers a notification about a new article to this channel.
	//
	// Implementations must:
	//   - Respect context cancellation/timeout
	//   - Apply rate limiting
	//   - Retry transient failures
	//   - Log all attempts with request_id from context
	//
	// Returns:
	//   - error: Non-nil if delivery failed after all retries
	//     - ErrChannelDisabled: If Send() called on disabled channel
	//     - ErrInvalidArticle: If article is nil
	//     - Network/API errors: Wrapped with context
	Send(ctx context.Context, article *entity.Article) error
}
