// Package postgres implements the repository interfaces on top of a
// PostgreSQL database accessed through database/sql with the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"readflow/internal/domain/entity"
	"readflow/internal/repository"
)

type ArticleRepo struct {
	db *sql.DB
}

func NewArticleRepo(db *sql.DB) repository.ArticleRepository {
	return &ArticleRepo{db: db}
}

func (repo *ArticleRepo) Create(ctx context.Context, article *entity.Article) error {
	const query = `
INSERT INTO articles (source_id, title, original_content, formatted_content, summary,
                      url, image_url, notification_content, published_at,
                      is_deleted, notification_sent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		article.SourceID, article.Title, article.OriginalContent, article.FormattedContent,
		article.Summary, article.URL, nullString(article.ImageURL), article.NotificationContent,
		article.PublishedAt, article.IsDeleted, article.NotificationSent, article.CreatedAt,
	).Scan(&article.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: url %q: %w", article.URL, entity.ErrDuplicateURL)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) Get(ctx context.Context, id int64) (*entity.Article, error) {
	const query = `
SELECT id, source_id, title, original_content, formatted_content, summary,
       url, COALESCE(image_url, ''), notification_content, published_at,
       is_deleted, notification_sent, created_at
FROM articles
WHERE id = $1
LIMIT 1`
	var article entity.Article
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&article.ID, &article.SourceID, &article.Title, &article.OriginalContent,
		&article.FormattedContent, &article.Summary, &article.URL, &article.ImageURL,
		&article.NotificationContent, &article.PublishedAt,
		&article.IsDeleted, &article.NotificationSent, &article.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &article, nil
}

func (repo *ArticleRepo) ExistsByURL(ctx context.Context, url string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM articles WHERE url = $1)`
	var exists bool
	if err := repo.db.QueryRowContext(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("ExistsByURL: %w", err)
	}
	return exists, nil
}

func (repo *ArticleRepo) MarkNotificationSent(ctx context.Context, id int64, sent bool) error {
	const query = `UPDATE articles SET notification_sent = $2 WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, query, id, sent); err != nil {
		return fmt.Errorf("MarkNotificationSent: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether the error is a postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
