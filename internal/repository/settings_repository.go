package repository

import (
	"context"

	"readflow/internal/domain/entity"
)

type SettingsRepository interface {
	// Get returns the crawler settings for the user, or entity.ErrNotFound
	// if the user has no settings row.
	Get(ctx context.Context, userID int64) (*entity.CrawlerSettings, error)
	ListEnabled(ctx context.Context) ([]*entity.CrawlerSettings, error)
}
