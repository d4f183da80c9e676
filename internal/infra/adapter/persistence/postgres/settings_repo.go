package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"readflow/internal/domain/entity"
	"readflow/internal/repository"
)

type SettingsRepo struct {
	db *sql.DB
}

func NewSettingsRepo(db *sql.DB) repository.SettingsRepository {
	return &SettingsRepo{db: db}
}

func (repo *SettingsRepo) Get(ctx context.Context, userID int64) (*entity.CrawlerSettings, error) {
	const query = `
SELECT user_id, is_enabled, max_articles_per_source, default_ai_language, updated_at
FROM crawler_settings
WHERE user_id = $1
LIMIT 1`
	var settings entity.CrawlerSettings
	err := repo.db.QueryRowContext(ctx, query, userID).Scan(
		&settings.UserID, &settings.IsEnabled, &settings.MaxArticlesPerSource,
		&settings.DefaultAILanguage, &settings.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &settings, nil
}

func (repo *SettingsRepo) ListEnabled(ctx context.Context) ([]*entity.CrawlerSettings, error) {
	const query = `
SELECT user_id, is_enabled, max_articles_per_source, default_ai_language, updated_at
FROM crawler_settings
WHERE is_enabled = TRUE
ORDER BY user_id`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListEnabled: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*entity.CrawlerSettings, 0, 32)
	for rows.Next() {
		var settings entity.CrawlerSettings
		if err := rows.Scan(&settings.UserID, &settings.IsEnabled,
			&settings.MaxArticlesPerSource, &settings.DefaultAILanguage,
			&settings.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListEnabled: Scan: %w", err)
		}
		result = append(result, &settings)
	}
	return result, rows.Err()
}
