package repository

import (
	"context"

	"readflow/internal/domain/entity"
)

type ArticleRepository interface {
	// Create inserts a new article. Returns entity.ErrDuplicateURL if an
	// article with the same URL already exists (URL-uniqueness invariant).
	Create(ctx context.Context, article *entity.Article) error
	Get(ctx context.Context, id int64) (*entity.Article, error)
	ExistsByURL(ctx context.Context, url string) (bool, error)
	// MarkNotificationSent records whether the push notification for the
	// article was delivered.
	MarkNotificationSent(ctx context.Context, id int64, sent bool) error
}
