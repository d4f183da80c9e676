package worker

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMetrics is shared across the package's tests: promauto registers with
// the default registry, so WorkerMetrics may only be constructed once.
var testMetrics = NewWorkerMetrics()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "30 5 * * *", cfg.CronSchedule)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, 4, cfg.UserConcurrency)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.StuckThreshold)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention)
	assert.Equal(t, 30*time.Minute, cfg.CrawlTimeout)
	assert.Equal(t, 9091, cfg.HealthPort)

	assert.NoError(t, cfg.Validate())
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WorkerConfig)
	}{
		{"invalid cron schedule", func(c *WorkerConfig) { c.CronSchedule = "not a cron" }},
		{"empty cron schedule", func(c *WorkerConfig) { c.CronSchedule = "" }},
		{"invalid timezone", func(c *WorkerConfig) { c.Timezone = "Not/AZone" }},
		{"user concurrency too low", func(c *WorkerConfig) { c.UserConcurrency = 0 }},
		{"user concurrency too high", func(c *WorkerConfig) { c.UserConcurrency = 33 }},
		{"poll interval too short", func(c *WorkerConfig) { c.PollInterval = 100 * time.Millisecond }},
		{"batch size zero", func(c *WorkerConfig) { c.BatchSize = 0 }},
		{"stuck threshold too short", func(c *WorkerConfig) { c.StuckThreshold = time.Second }},
		{"negative max retries", func(c *WorkerConfig) { c.MaxRetries = -1 }},
		{"retention too short", func(c *WorkerConfig) { c.Retention = time.Minute }},
		{"crawl timeout zero", func(c *WorkerConfig) { c.CrawlTimeout = 0 }},
		{"privileged health port", func(c *WorkerConfig) { c.HealthPort = 80 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("collects multiple errors", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CronSchedule = "bad"
		cfg.BatchSize = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cron schedule")
		assert.Contains(t, err.Error(), "batch size")
	})
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Run("uses defaults when nothing is set", func(t *testing.T) {
		cfg, err := LoadConfigFromEnv(testLogger(), testMetrics)

		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), *cfg)
	})

	t.Run("applies valid env overrides", func(t *testing.T) {
		t.Setenv("CRON_SCHEDULE", "0 */6 * * *")
		t.Setenv("WORKER_TIMEZONE", "UTC")
		t.Setenv("USER_CONCURRENCY", "8")
		t.Setenv("QUEUE_POLL_INTERVAL", "10s")
		t.Setenv("QUEUE_BATCH_SIZE", "20")
		t.Setenv("QUEUE_MAX_RETRIES", "5")
		t.Setenv("CRAWL_TIMEOUT", "15m")
		t.Setenv("WORKER_HEALTH_PORT", "9191")

		cfg, err := LoadConfigFromEnv(testLogger(), testMetrics)

		require.NoError(t, err)
		assert.Equal(t, "0 */6 * * *", cfg.CronSchedule)
		assert.Equal(t, "UTC", cfg.Timezone)
		assert.Equal(t, 8, cfg.UserConcurrency)
		assert.Equal(t, 10*time.Second, cfg.PollInterval)
		assert.Equal(t, 20, cfg.BatchSize)
		assert.Equal(t, 5, cfg.MaxRetries)
		assert.Equal(t, 15*time.Minute, cfg.CrawlTimeout)
		assert.Equal(t, 9191, cfg.HealthPort)
	})

	t.Run("invalid values fall back to defaults", func(t *testing.T) {
		t.Setenv("CRON_SCHEDULE", "not a cron")
		t.Setenv("USER_CONCURRENCY", "999")
		t.Setenv("CRAWL_TIMEOUT", "10h")

		cfg, err := LoadConfigFromEnv(testLogger(), testMetrics)

		require.NoError(t, err)
		assert.Equal(t, "30 5 * * *", cfg.CronSchedule)
		assert.Equal(t, 4, cfg.UserConcurrency)
		assert.Equal(t, 30*time.Minute, cfg.CrawlTimeout)
	})

	t.Run("loaded config always validates", func(t *testing.T) {
		t.Setenv("QUEUE_BATCH_SIZE", "garbage")
		t.Setenv("WORKER_HEALTH_PORT", "22")

		cfg, err := LoadConfigFromEnv(testLogger(), testMetrics)

		require.NoError(t, err)
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoadConfigFromEnv_ConfigFile(t *testing.T) {
	t.Run("file values overlay defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "worker.yaml")
		content := []byte("cron_schedule: \"0 7 * * *\"\npoll_interval: 45s\nbatch_size: 10\n")
		require.NoError(t, os.WriteFile(path, content, 0o600))
		t.Setenv("WORKER_CONFIG_FILE", path)

		cfg, err := LoadConfigFromEnv(testLogger(), testMetrics)

		require.NoError(t, err)
		assert.Equal(t, "0 7 * * *", cfg.CronSchedule)
		assert.Equal(t, 45*time.Second, cfg.PollInterval)
		assert.Equal(t, 10, cfg.BatchSize)
		// Untouched fields keep their defaults
		assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "worker.yaml")
		require.NoError(t, os.WriteFile(path, []byte("batch_size: 10\n"), 0o600))
		t.Setenv("WORKER_CONFIG_FILE", path)
		t.Setenv("QUEUE_BATCH_SIZE", "25")

		cfg, err := LoadConfigFromEnv(testLogger(), testMetrics)

		require.NoError(t, err)
		assert.Equal(t, 25, cfg.BatchSize)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		t.Setenv("WORKER_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

		_, err := LoadConfigFromEnv(testLogger(), testMetrics)

		assert.Error(t, err)
	})

	t.Run("invalid duration in file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "worker.yaml")
		require.NoError(t, os.WriteFile(path, []byte("poll_interval: soon\n"), 0o600))
		t.Setenv("WORKER_CONFIG_FILE", path)

		_, err := LoadConfigFromEnv(testLogger(), testMetrics)

		assert.Error(t, err)
	})
}

func TestWorkerConfig_Conversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CronSchedule = "0 6 * * *"
	cfg.PollInterval = 10 * time.Second
	cfg.MaxRetries = 7

	sched := cfg.SchedulerConfig()
	assert.Equal(t, "0 6 * * *", sched.CronSchedule)
	assert.Equal(t, cfg.Timezone, sched.Timezone)
	assert.Equal(t, cfg.UserConcurrency, sched.UserConcurrency)

	q := cfg.QueueConfig()
	assert.Equal(t, 10*time.Second, q.PollInterval)
	assert.Equal(t, 7, q.MaxRetries)
	assert.Equal(t, cfg.Retention, q.Retention)
}
