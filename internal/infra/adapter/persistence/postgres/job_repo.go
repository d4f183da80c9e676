package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"readflow/internal/domain/entity"
	"readflow/internal/repository"
)

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) repository.JobRepository {
	return &JobRepo{db: db}
}

func (repo *JobRepo) Create(ctx context.Context, job *entity.Job) error {
	settings, err := json.Marshal(job.Settings)
	if err != nil {
		return fmt.Errorf("Create: marshal settings: %w", err)
	}
	const query = `
INSERT INTO jobs (source_id, user_id, status, priority, settings, scheduled_at,
                  started_at, completed_at, retry_count, max_retries, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`
	err = repo.db.QueryRowContext(ctx, query,
		job.SourceID, job.UserID, string(job.Status), job.Priority, settings,
		job.ScheduledAt, job.StartedAt, job.CompletedAt,
		job.RetryCount, job.MaxRetries, nullString(job.ErrorMessage),
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *JobRepo) Update(ctx context.Context, job *entity.Job) error {
	settings, err := json.Marshal(job.Settings)
	if err != nil {
		return fmt.Errorf("Update: marshal settings: %w", err)
	}
	const query = `
UPDATE jobs
SET status = $2, priority = $3, settings = $4, scheduled_at = $5, started_at = $6,
    completed_at = $7, retry_count = $8, max_retries = $9, error_message = $10
WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, query,
		job.ID, string(job.Status), job.Priority, settings, job.ScheduledAt,
		job.StartedAt, job.CompletedAt, job.RetryCount, job.MaxRetries,
		nullString(job.ErrorMessage)); err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return nil
}

func (repo *JobRepo) ListDue(ctx context.Context, now, stuckBefore time.Time, limit int) ([]*entity.Job, error) {
	const query = `
SELECT id, source_id, user_id, status, priority, settings, scheduled_at,
       started_at, completed_at, retry_count, max_retries, COALESCE(error_message, '')
FROM jobs
WHERE (status = 'pending' AND scheduled_at <= $1)
   OR (status = 'running' AND started_at <= $2)
ORDER BY priority DESC, scheduled_at ASC
LIMIT $3`
	rows, err := repo.db.QueryContext(ctx, query, now, stuckBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("ListDue: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanJobs(rows, limit)
}

func (repo *JobRepo) ListByUser(ctx context.Context, userID int64) ([]*entity.Job, error) {
	const query = `
SELECT id, source_id, user_id, status, priority, settings, scheduled_at,
       started_at, completed_at, retry_count, max_retries, COALESCE(error_message, '')
FROM jobs
WHERE user_id = $1
ORDER BY scheduled_at DESC`
	rows, err := repo.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanJobs(rows, 50)
}

func (repo *JobRepo) StatsByUser(ctx context.Context, userID int64) (*repository.JobStats, error) {
	const query = `
SELECT
    COUNT(*) FILTER (WHERE status = 'pending'),
    COUNT(*) FILTER (WHERE status = 'running'),
    COUNT(*) FILTER (WHERE status = 'completed'),
    COUNT(*) FILTER (WHERE status = 'failed')
FROM jobs
WHERE user_id = $1`
	var stats repository.JobStats
	if err := repo.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.Pending, &stats.Running, &stats.Completed, &stats.Failed); err != nil {
		return nil, fmt.Errorf("StatsByUser: %w", err)
	}
	return &stats, nil
}

func (repo *JobRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM jobs WHERE status = 'completed' AND completed_at < $1`
	res, err := repo.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteCompletedBefore: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteCompletedBefore: RowsAffected: %w", err)
	}
	return deleted, nil
}

func scanJobs(rows *sql.Rows, sizeHint int) ([]*entity.Job, error) {
	jobs := make([]*entity.Job, 0, sizeHint)
	for rows.Next() {
		var (
			job      entity.Job
			status   string
			settings []byte
		)
		if err := rows.Scan(&job.ID, &job.SourceID, &job.UserID, &status, &job.Priority,
			&settings, &job.ScheduledAt, &job.StartedAt, &job.CompletedAt,
			&job.RetryCount, &job.MaxRetries, &job.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanJobs: Scan: %w", err)
		}
		if err := json.Unmarshal(settings, &job.Settings); err != nil {
			return nil, fmt.Errorf("scanJobs: unmarshal settings: %w", err)
		}
		job.Status = entity.JobStatus(status)
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}
