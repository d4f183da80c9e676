// Package notifier provides webhook delivery of new-article notifications.
// It defines the Notifier interface which allows different delivery
// mechanisms (Discord, Slack, etc.) to be used interchangeably through
// dependency injection.
//
// The package includes implementations for Discord and Slack webhooks and a
// no-op notifier for when notifications are disabled.
package notifier

import (
	"context"

	"readflow/internal/domain/entity"
)

// Notifier is an interface for sending article notifications.
// Implementations should handle rate limiting, retries, and error logging internally.
type Notifier interface {
	// NotifyArticle sends a notification about a newly ingested and
	// normalized article.
	//
	// Implementations should:
	//   - Generate a unique request ID for tracing
	//   - Apply rate limiting to prevent API abuse
	//   - Retry transient failures with exponential backoff
	//   - Log all attempts with the request ID for debugging
	//   - Respect context cancellation
	NotifyArticle(ctx context.Context, article *entity.Article) error
}
