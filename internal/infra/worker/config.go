package worker

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"readflow/internal/pkg/config"
	"readflow/internal/usecase/queue"
	"readflow/internal/usecase/scheduler"
)

// WorkerConfig holds the operational configuration for the worker service:
// the scheduler's cron settings, the job queue's polling parameters, and the
// ports of its HTTP surfaces.
//
// Configuration sources, in ascending precedence:
//  1. Default values (DefaultConfig)
//  2. Optional YAML file (WORKER_CONFIG_FILE)
//  3. Environment variables
//
// Loading is fail-open: an invalid value falls back to the default with a
// warning, so the worker always starts with a usable configuration.
type WorkerConfig struct {
	// CronSchedule is the cron expression for the daily scheduling tick.
	// Format: "minute hour day month weekday", e.g. "30 5 * * *".
	CronSchedule string

	// Timezone is the IANA timezone name the cron schedule is evaluated in.
	Timezone string

	// UserConcurrency bounds how many users the scheduler enqueues in
	// parallel during one tick. Range: 1-32.
	UserConcurrency int

	// PollInterval is how often the queue looks for due jobs.
	PollInterval time.Duration

	// BatchSize is the maximum number of jobs claimed per poll cycle.
	BatchSize int

	// StuckThreshold is how long a job may sit in running state before the
	// queue reclaims it as stuck.
	StuckThreshold time.Duration

	// MaxRetries is how many times a failed job is rescheduled before it is
	// marked failed for good.
	MaxRetries int

	// Retention is how long completed and failed jobs are kept before
	// cleanup deletes them.
	Retention time.Duration

	// CrawlTimeout bounds a single source crawl, AI calls included.
	CrawlTimeout time.Duration

	// HealthPort is the port of the health check HTTP server.
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with production defaults: a daily
// 5:30 JST tick, 30-second queue polling, and a 30-minute crawl budget.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule:    "30 5 * * *",
		Timezone:        "Asia/Tokyo",
		UserConcurrency: 4,
		PollInterval:    30 * time.Second,
		BatchSize:       5,
		StuckThreshold:  5 * time.Minute,
		MaxRetries:      3,
		Retention:       7 * 24 * time.Hour,
		CrawlTimeout:    30 * time.Minute,
		HealthPort:      9091,
	}
}

// Validate checks all configuration values, collecting every violation
// instead of stopping at the first one.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.UserConcurrency, 1, 32); err != nil {
		errs = append(errs, fmt.Errorf("user concurrency: %w", err))
	}
	if err := config.ValidateDuration(c.PollInterval, time.Second, 10*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("poll interval: %w", err))
	}
	if err := config.ValidateIntRange(c.BatchSize, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("batch size: %w", err))
	}
	if err := config.ValidateDuration(c.StuckThreshold, time.Minute, time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("stuck threshold: %w", err))
	}
	if err := config.ValidateIntRange(c.MaxRetries, 0, 10); err != nil {
		errs = append(errs, fmt.Errorf("max retries: %w", err))
	}
	if err := config.ValidateDuration(c.Retention, time.Hour, 90*24*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("retention: %w", err))
	}
	if err := config.ValidateDuration(c.CrawlTimeout, time.Minute, 4*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("crawl timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// SchedulerConfig maps the worker configuration onto the scheduler's own
// config type.
func (c *WorkerConfig) SchedulerConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	cfg.CronSchedule = c.CronSchedule
	cfg.Timezone = c.Timezone
	cfg.UserConcurrency = c.UserConcurrency
	return cfg
}

// QueueConfig maps the worker configuration onto the job queue's own config
// type. Backoff parameters keep the queue defaults.
func (c *WorkerConfig) QueueConfig() queue.Config {
	cfg := queue.DefaultConfig()
	cfg.PollInterval = c.PollInterval
	cfg.BatchSize = c.BatchSize
	cfg.StuckThreshold = c.StuckThreshold
	cfg.MaxRetries = c.MaxRetries
	cfg.Retention = c.Retention
	return cfg
}

// fileConfig is the YAML shape of the optional worker configuration file.
// Every field is optional; only set fields overlay the defaults. Durations
// are Go duration strings ("30s", "5m").
type fileConfig struct {
	CronSchedule    *string `yaml:"cron_schedule"`
	Timezone        *string `yaml:"timezone"`
	UserConcurrency *int    `yaml:"user_concurrency"`
	PollInterval    *string `yaml:"poll_interval"`
	BatchSize       *int    `yaml:"batch_size"`
	StuckThreshold  *string `yaml:"stuck_threshold"`
	MaxRetries      *int    `yaml:"max_retries"`
	Retention       *string `yaml:"retention"`
	CrawlTimeout    *string `yaml:"crawl_timeout"`
	HealthPort      *int    `yaml:"health_port"`
}

// applyConfigFile overlays values from a YAML file onto cfg. A missing file
// path is not an error; an unreadable or invalid file is.
func applyConfigFile(cfg *WorkerConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.CronSchedule != nil {
		cfg.CronSchedule = *fc.CronSchedule
	}
	if fc.Timezone != nil {
		cfg.Timezone = *fc.Timezone
	}
	if fc.UserConcurrency != nil {
		cfg.UserConcurrency = *fc.UserConcurrency
	}
	if fc.BatchSize != nil {
		cfg.BatchSize = *fc.BatchSize
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.HealthPort != nil {
		cfg.HealthPort = *fc.HealthPort
	}

	durations := []struct {
		field string
		raw   *string
		dst   *time.Duration
	}{
		{"poll_interval", fc.PollInterval, &cfg.PollInterval},
		{"stuck_threshold", fc.StuckThreshold, &cfg.StuckThreshold},
		{"retention", fc.Retention, &cfg.Retention},
		{"crawl_timeout", fc.CrawlTimeout, &cfg.CrawlTimeout},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: invalid %s '%s': %w", path, d.field, *d.raw, err)
		}
		*d.dst = parsed
	}

	return nil
}

// envLoader applies one environment override at a time, funneling every
// fallback through the same logging and metrics path.
type envLoader struct {
	logger          *slog.Logger
	metrics         *WorkerMetrics
	fallbackApplied bool
}

func (l *envLoader) apply(field string, result config.ConfigLoadResult) config.ConfigLoadResult {
	if result.FallbackApplied {
		l.fallbackApplied = true
		l.metrics.RecordValidationError(field)
		l.metrics.RecordFallback(field)
		for _, warning := range result.Warnings {
			l.logger.Warn("configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}
	return result
}

// LoadConfigFromEnv builds the worker configuration from defaults, the
// optional WORKER_CONFIG_FILE YAML overlay, and environment variables.
//
// Environment variables:
//   - CRON_SCHEDULE: Cron expression (default: "30 5 * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default: "Asia/Tokyo")
//   - USER_CONCURRENCY: Integer 1-32 (default: 4)
//   - QUEUE_POLL_INTERVAL: Duration 1s-10m (default: 30s)
//   - QUEUE_BATCH_SIZE: Integer 1-100 (default: 5)
//   - QUEUE_STUCK_THRESHOLD: Duration 1m-1h (default: 5m)
//   - QUEUE_MAX_RETRIES: Integer 0-10 (default: 3)
//   - QUEUE_RETENTION: Duration 1h-2160h (default: 168h)
//   - CRAWL_TIMEOUT: Duration 1m-4h (default: 30m)
//   - WORKER_HEALTH_PORT: Integer 1024-65535 (default: 9091)
//
// The only hard failure is a present but unreadable WORKER_CONFIG_FILE; env
// values fail open to their defaults with warnings and metrics.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("WORKER_CONFIG_FILE"); path != "" {
		if err := applyConfigFile(&cfg, path); err != nil {
			return nil, err
		}
		logger.Info("configuration file applied", slog.String("path", path))
	}

	l := &envLoader{logger: logger, metrics: metrics}

	cfg.CronSchedule = l.apply("cron_schedule",
		config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)).Value.(string)

	cfg.Timezone = l.apply("timezone",
		config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)).Value.(string)

	cfg.UserConcurrency = l.apply("user_concurrency",
		config.LoadEnvInt("USER_CONCURRENCY", cfg.UserConcurrency, func(v int) error {
			return config.ValidateIntRange(v, 1, 32)
		})).Value.(int)

	cfg.PollInterval = l.apply("poll_interval",
		config.LoadEnvDuration("QUEUE_POLL_INTERVAL", cfg.PollInterval, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Second, 10*time.Minute)
		})).Value.(time.Duration)

	cfg.BatchSize = l.apply("batch_size",
		config.LoadEnvInt("QUEUE_BATCH_SIZE", cfg.BatchSize, func(v int) error {
			return config.ValidateIntRange(v, 1, 100)
		})).Value.(int)

	cfg.StuckThreshold = l.apply("stuck_threshold",
		config.LoadEnvDuration("QUEUE_STUCK_THRESHOLD", cfg.StuckThreshold, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Minute, time.Hour)
		})).Value.(time.Duration)

	cfg.MaxRetries = l.apply("max_retries",
		config.LoadEnvInt("QUEUE_MAX_RETRIES", cfg.MaxRetries, func(v int) error {
			return config.ValidateIntRange(v, 0, 10)
		})).Value.(int)

	cfg.Retention = l.apply("retention",
		config.LoadEnvDuration("QUEUE_RETENTION", cfg.Retention, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Hour, 90*24*time.Hour)
		})).Value.(time.Duration)

	cfg.CrawlTimeout = l.apply("crawl_timeout",
		config.LoadEnvDuration("CRAWL_TIMEOUT", cfg.CrawlTimeout, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Minute, 4*time.Hour)
		})).Value.(time.Duration)

	cfg.HealthPort = l.apply("health_port",
		config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
			return config.ValidateIntRange(v, 1024, 65535)
		})).Value.(int)

	metrics.SetFallbackActive(l.fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
