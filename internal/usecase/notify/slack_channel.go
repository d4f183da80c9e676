package notify

import (
	"context"

	"readflow/internal/domain/entity"
	"readflow/internal/infra/notifier"
)

// SlackChannel implements the Channel interface for Slack notifications.
// It wraps the SlackNotifier from the infrastructure layer to provide
// the Channel abstraction for the notification use case.
type SlackChannel struct {
	notifier notifier.Notifier
	enabled  bool
}

// NewSlackChannel creates a new Slack channel with the specified configuration.
//
// If Slack notifications are disabled (config.Enabled = false), a NoOpNotifier
// is used instead so the Channel interface contract is always satisfied.
func NewSlackChannel(config notifier.SlackConfig) *SlackChannel {
	var n notifier.Notifier
	if config.Enabled {
		n = notifier.NewSlackNotifier(config)
	} else {
		n = notifier.NewNoOpNotifier()
	}

	return &SlackChannel{
		notifier: n,
		enabled:  config.Enabled,
	}
}

// Name returns the channel identifier "slack".
func (c *SlackChannel) Name() string {
	return "slack"
}

// IsEnabled returns whether Slack notifications are enabled via configuration.
func (c *SlackChannel) IsEnabled() bool {
	return c.enabled
}

// Send delivers a new-article notification to Slack.
//
// The underlying notifier handles rate limiting (1 req/s), retry logic, and
// context cancellation.
func (c *SlackChannel) Send(ctx context.Context, article *entity.Article) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if article == nil || article.Title == "" || article.URL == "" {
		return ErrInvalidArticle
	}
	return c.notifier.NotifyArticle(ctx, article)
}
