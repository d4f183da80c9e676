package repository

import (
	"context"
	"time"

	"readflow/internal/domain/entity"
)

// JobStats holds per-status job counts for one user.
type JobStats struct {
	Pending   int64
	Running   int64
	Completed int64
	Failed    int64
}

type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	Update(ctx context.Context, job *entity.Job) error
	// ListDue returns up to limit jobs that are either pending with
	// scheduled_at <= now, or running with started_at <= stuckBefore
	// (stuck-job reclamation). Ordering: priority DESC, scheduled_at ASC.
	ListDue(ctx context.Context, now, stuckBefore time.Time, limit int) ([]*entity.Job, error)
	ListByUser(ctx context.Context, userID int64) ([]*entity.Job, error)
	StatsByUser(ctx context.Context, userID int64) (*JobStats, error)
	// DeleteCompletedBefore removes completed jobs whose completed_at is older
	// than the cutoff. Returns the number of deleted rows.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
