package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"readflow/internal/domain/entity"
	"readflow/internal/repository"
)

type SourceRepo struct {
	db *sql.DB
}

func NewSourceRepo(db *sql.DB) repository.SourceRepository {
	return &SourceRepo{db: db}
}

func (repo *SourceRepo) Get(ctx context.Context, id int64) (*entity.Source, error) {
	const query = `
SELECT id, user_id, url, is_active, crawl_interval_minutes, last_run_at, status
FROM sources
WHERE id = $1
LIMIT 1`
	src, err := scanSource(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return src, nil
}

func (repo *SourceRepo) ListActiveDueForCrawl(ctx context.Context, userID int64, now time.Time) ([]*entity.Source, error) {
	const query = `
SELECT id, user_id, url, is_active, crawl_interval_minutes, last_run_at, status
FROM sources
WHERE user_id = $1
  AND is_active = TRUE
  AND (last_run_at IS NULL
       OR $2 > last_run_at + make_interval(mins => crawl_interval_minutes))
ORDER BY id`
	rows, err := repo.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("ListActiveDueForCrawl: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, 16)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActiveDueForCrawl: Scan: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (repo *SourceRepo) UpdateStatus(ctx context.Context, id int64, status entity.SourceStatus) error {
	const query = `UPDATE sources SET status = $2 WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, query, id, string(status)); err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return nil
}

func (repo *SourceRepo) TouchLastRunAt(ctx context.Context, id int64, t time.Time) error {
	const query = `UPDATE sources SET last_run_at = $2 WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, query, id, t); err != nil {
		return fmt.Errorf("TouchLastRunAt: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*entity.Source, error) {
	var (
		src             entity.Source
		intervalMinutes int
		status          string
	)
	if err := row.Scan(&src.ID, &src.UserID, &src.URL, &src.IsActive,
		&intervalMinutes, &src.LastRunAt, &status); err != nil {
		return nil, err
	}
	src.CrawlInterval = time.Duration(intervalMinutes) * time.Minute
	src.Status = entity.SourceStatus(status)
	return &src, nil
}
