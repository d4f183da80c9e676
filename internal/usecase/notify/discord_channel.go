package notify

import (
	"context"

	"readflow/internal/domain/entity"
	"readflow/internal/infra/notifier"
)

// DiscordChannel implements the Channel interface for Discord notifications.
// It wraps the DiscordNotifier from the infrastructure layer to provide
// the Channel abstraction for the notification use case.
type DiscordChannel struct {
	notifier notifier.Notifier
	enabled  bool
}

// NewDiscordChannel creates a new Discord channel with the specified configuration.
//
// If Discord notifications are disabled (config.Enabled = false), a NoOpNotifier
// is used instead so the Channel interface contract is always satisfied.
func NewDiscordChannel(config notifier.DiscordConfig) *DiscordChannel {
	var n notifier.Notifier
	if config.Enabled {
		n = notifier.NewDiscordNotifier(config)
	} else {
		n = notifier.NewNoOpNotifier()
	}

	return &DiscordChannel{
		notifier: n,
		enabled:  config.Enabled,
	}
}

// Name returns the channel identifier "discord".
func (c *DiscordChannel) Name() string {
	return "discord"
}

// IsEnabled returns whether Discord notifications are enabled via configuration.
func (c *DiscordChannel) IsEnabled() bool {
	return c.enabled
}

// Send delivers a new-article notification to Discord.
//
// The underlying notifier handles rate limiting (0.5 req/s with burst of 3),
// retry logic, and context cancellation.
func (c *DiscordChannel) Send(ctx context.Context, article *entity.Article) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if article == nil || article.Title == "" || article.URL == "" {
		return ErrInvalidArticle
	}
	return c.notifier.NotifyArticle(ctx, article)
}
