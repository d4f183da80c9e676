package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readflow/internal/domain/entity"
)

func sampleJob() *entity.Job {
	return &entity.Job{
		SourceID:    7,
		UserID:      42,
		Status:      entity.JobStatusPending,
		Priority:    1,
		Settings:    entity.JobSettings{MaxArticlesPerSource: 5, AILanguage: "ja"},
		ScheduledAt: time.Date(2025, 6, 15, 5, 30, 0, 0, time.UTC),
		MaxRetries:  3,
	}
}

func TestJobRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &JobRepo{db: db}

	job := sampleJob()
	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs(job.SourceID, job.UserID, "pending", job.Priority,
			[]byte(`{"max_articles_per_source":5,"ai_language":"ja"}`),
			job.ScheduledAt, nil, nil, 0, 3, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(55)))

	require.NoError(t, repo.Create(context.Background(), job))
	assert.Equal(t, int64(55), job.ID)
}

func TestJobRepo_Update(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &JobRepo{db: db}

	job := sampleJob()
	job.ID = 55
	job.Status = entity.JobStatusFailed
	job.RetryCount = 3
	job.ErrorMessage = "retry limit exhausted"

	mock.ExpectExec(`UPDATE jobs`).
		WithArgs(job.ID, "failed", job.Priority, sqlmock.AnyArg(), job.ScheduledAt,
			nil, nil, 3, 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Update(context.Background(), job))
}

func TestJobRepo_ListDue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &JobRepo{db: db}

	now := time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC)
	stuckBefore := now.Add(-5 * time.Minute)
	startedAt := now.Add(-time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "source_id", "user_id", "status", "priority", "settings",
		"scheduled_at", "started_at", "completed_at", "retry_count",
		"max_retries", "error_message",
	}).
		AddRow(int64(1), int64(7), int64(42), "pending", 2,
			[]byte(`{"max_articles_per_source":5,"ai_language":"ja"}`),
			now.Add(-time.Minute), nil, nil, 0, 3, "").
		AddRow(int64(2), int64(8), int64(42), "running", 0,
			[]byte(`{"max_articles_per_source":3,"ai_language":"auto"}`),
			now.Add(-2*time.Hour), startedAt, nil, 1, 3, "")

	mock.ExpectQuery(`SELECT .+ FROM jobs`).
		WithArgs(now, stuckBefore, 5).
		WillReturnRows(rows)

	jobs, err := repo.ListDue(context.Background(), now, stuckBefore, 5)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, entity.JobStatusPending, jobs[0].Status)
	assert.Equal(t, entity.JobSettings{MaxArticlesPerSource: 5, AILanguage: "ja"}, jobs[0].Settings,
		"settings JSON decoded into the snapshot")

	assert.Equal(t, entity.JobStatusRunning, jobs[1].Status)
	require.NotNil(t, jobs[1].StartedAt)
	assert.True(t, jobs[1].StuckSince(stuckBefore))
}

func TestJobRepo_ListDue_BadSettingsJSON(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &JobRepo{db: db}

	rows := sqlmock.NewRows([]string{
		"id", "source_id", "user_id", "status", "priority", "settings",
		"scheduled_at", "started_at", "completed_at", "retry_count",
		"max_retries", "error_message",
	}).AddRow(int64(1), int64(7), int64(42), "pending", 0, []byte(`{broken`),
		time.Now(), nil, nil, 0, 3, "")

	mock.ExpectQuery(`SELECT .+ FROM jobs`).WillReturnRows(rows)

	_, err := repo.ListDue(context.Background(), time.Now(), time.Now(), 5)
	assert.Error(t, err)
}

func TestJobRepo_StatsByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &JobRepo{db: db}

	mock.ExpectQuery(`SELECT .+ FROM jobs`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"pending", "running", "completed", "failed"}).
			AddRow(int64(2), int64(1), int64(10), int64(3)))

	stats, err := repo.StatsByUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(10), stats.Completed)
}

func TestJobRepo_DeleteCompletedBefore(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &JobRepo{db: db}

	cutoff := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM jobs`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := repo.DeleteCompletedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
}
