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

func sourceRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "url", "is_active", "crawl_interval_minutes",
		"last_run_at", "status",
	})
}

func TestSourceRepo_Get(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &SourceRepo{db: db}

	lastRun := time.Date(2025, 6, 14, 5, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM sources`).
		WithArgs(int64(7)).
		WillReturnRows(sourceRows().
			AddRow(int64(7), int64(42), "https://example.com/feed", true, 1440, lastRun, "completed"))

	got, err := repo.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, got.CrawlInterval, "interval minutes converted to a duration")
	assert.Equal(t, entity.SourceStatusCompleted, got.Status)
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, lastRun, got.LastRunAt.UTC())
}

func TestSourceRepo_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &SourceRepo{db: db}

	mock.ExpectQuery(`SELECT .+ FROM sources`).WithArgs(int64(404)).
		WillReturnRows(sourceRows())

	_, err := repo.Get(context.Background(), 404)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestSourceRepo_ListActiveDueForCrawl(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &SourceRepo{db: db}

	now := time.Date(2025, 6, 15, 5, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM sources`).
		WithArgs(int64(42), now).
		WillReturnRows(sourceRows().
			AddRow(int64(1), int64(42), "https://example.com/a", true, 60, nil, "idle").
			AddRow(int64(2), int64(42), "https://example.com/b", true, 1440, now.Add(-48*time.Hour), "completed"))

	sources, err := repo.ListActiveDueForCrawl(context.Background(), 42, now)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Nil(t, sources[0].LastRunAt, "never-run source carries a nil last run")
	assert.Equal(t, time.Hour, sources[0].CrawlInterval)
}

func TestSourceRepo_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &SourceRepo{db: db}

	mock.ExpectExec(`UPDATE sources SET status`).
		WithArgs(int64(7), "running").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.UpdateStatus(context.Background(), 7, entity.SourceStatusRunning))
}

func TestSourceRepo_TouchLastRunAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &SourceRepo{db: db}

	at := time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE sources SET last_run_at`).
		WithArgs(int64(7), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.TouchLastRunAt(context.Background(), 7, at))
}
