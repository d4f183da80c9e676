package db

import "database/sql"

// MigrateUp creates the pipeline schema if it does not exist.
// The worker is the only writer, so plain CREATE IF NOT EXISTS statements
// are sufficient; there is no versioned migration history.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS crawler_settings (
    user_id                 BIGINT PRIMARY KEY,
    is_enabled              BOOLEAN NOT NULL DEFAULT TRUE,
    max_articles_per_source INTEGER NOT NULL DEFAULT 5,
    default_ai_language     TEXT NOT NULL DEFAULT 'auto',
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sources (
    id                     SERIAL PRIMARY KEY,
    user_id                BIGINT NOT NULL,
    url                    TEXT NOT NULL,
    is_active              BOOLEAN NOT NULL DEFAULT TRUE,
    crawl_interval_minutes INTEGER NOT NULL DEFAULT 1440,
    last_run_at            TIMESTAMPTZ,
    status                 TEXT NOT NULL DEFAULT 'idle'
        CHECK (status IN ('idle', 'running', 'completed', 'failed'))
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
    id            SERIAL PRIMARY KEY,
    source_id     INTEGER NOT NULL REFERENCES sources(id),
    user_id       BIGINT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'running', 'completed', 'failed')),
    priority      INTEGER NOT NULL DEFAULT 0,
    settings      JSONB NOT NULL,
    scheduled_at  TIMESTAMPTZ NOT NULL,
    started_at    TIMESTAMPTZ,
    completed_at  TIMESTAMPTZ,
    retry_count   INTEGER NOT NULL DEFAULT 0,
    max_retries   INTEGER NOT NULL DEFAULT 3,
    error_message TEXT
)`); err != nil {
		return err
	}

	// url UNIQUE is the persistence-time half of the dedup invariant; the
	// application-level ExistsByURL check is only an optimization.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id                   SERIAL PRIMARY KEY,
    source_id            INTEGER NOT NULL REFERENCES sources(id),
    title                TEXT NOT NULL,
    original_content     TEXT NOT NULL,
    formatted_content    TEXT NOT NULL,
    summary              TEXT NOT NULL,
    url                  TEXT NOT NULL UNIQUE,
    image_url            TEXT,
    notification_content TEXT NOT NULL,
    published_at         TIMESTAMPTZ,
    is_deleted           BOOLEAN NOT NULL DEFAULT FALSE,
    notification_sent    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	indexes := []string{
		// poll loop: pending+due and stuck running jobs
		`CREATE INDEX IF NOT EXISTS idx_jobs_status_scheduled_at ON jobs(status, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_user_id ON jobs(user_id)`,
		// scheduler: active sources per user
		`CREATE INDEX IF NOT EXISTS idx_sources_user_active ON sources(user_id) WHERE is_active = TRUE`,
		`CREATE INDEX IF NOT EXISTS idx_articles_source_id ON articles(source_id)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}
