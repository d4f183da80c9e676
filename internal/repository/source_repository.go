package repository

import (
	"context"
	"time"

	"readflow/internal/domain/entity"
)

type SourceRepository interface {
	Get(ctx context.Context, id int64) (*entity.Source, error)
	// ListActiveDueForCrawl returns the user's active sources whose last run
	// is either unset or older than their crawl interval at the given time.
	ListActiveDueForCrawl(ctx context.Context, userID int64, now time.Time) ([]*entity.Source, error)
	UpdateStatus(ctx context.Context, id int64, status entity.SourceStatus) error
	TouchLastRunAt(ctx context.Context, id int64, t time.Time) error
}
