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

func settingsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"user_id", "is_enabled", "max_articles_per_source", "default_ai_language", "updated_at",
	})
}

func TestSettingsRepo_Get(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &SettingsRepo{db: db}

	updated := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM crawler_settings`).
		WithArgs(int64(42)).
		WillReturnRows(settingsRows().AddRow(int64(42), true, 5, "ja", updated))

	got, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, got.IsEnabled)
	assert.Equal(t, 5, got.MaxArticlesPerSource)
	assert.Equal(t, "ja", got.DefaultAILanguage)
}

func TestSettingsRepo_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &SettingsRepo{db: db}

	mock.ExpectQuery(`SELECT .+ FROM crawler_settings`).WithArgs(int64(9)).
		WillReturnRows(settingsRows())

	_, err := repo.Get(context.Background(), 9)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestSettingsRepo_ListEnabled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &SettingsRepo{db: db}

	updated := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM crawler_settings`).
		WillReturnRows(settingsRows().
			AddRow(int64(1), true, 5, "ja", updated).
			AddRow(int64(2), true, 3, "auto", updated))

	got, err := repo.ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].UserID)
	assert.Equal(t, "auto", got[1].DefaultAILanguage)
}
