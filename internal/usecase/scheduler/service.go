// Package scheduler implements the cron-driven tick that finds sources due
// for crawling and enqueues jobs for them.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"readflow/internal/domain/entity"
	"readflow/internal/repository"
)

// JobCreator is the queue contract the scheduler enqueues through.
type JobCreator interface {
	CreateJob(ctx context.Context, sourceID, userID int64, priority int) (*entity.Job, error)
}

// TickRecorder receives tick outcomes for monitoring. All methods must be
// safe for concurrent use.
type TickRecorder interface {
	RecordTick(status string)
	RecordTickDuration(seconds float64)
	RecordJobsEnqueued(count int)
	RecordLastSuccess()
}

// Config controls the scheduler tick.
type Config struct {
	// CronSchedule is the tick expression, five fields.
	CronSchedule string
	// Timezone is the IANA zone the schedule is evaluated in.
	Timezone string
	// UserConcurrency caps how many users one tick fans out across.
	UserConcurrency int
}

// DefaultConfig returns the scheduler configuration used in production:
// a daily tick at 05:30 JST.
func DefaultConfig() Config {
	return Config{
		CronSchedule:    "30 5 * * *",
		Timezone:        "Asia/Tokyo",
		UserConcurrency: 4,
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.CronSchedule); err != nil {
		return fmt.Errorf("cron schedule %q: %w", c.CronSchedule, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.UserConcurrency <= 0 {
		return fmt.Errorf("user concurrency must be positive, got %d", c.UserConcurrency)
	}
	return nil
}

// Service owns the cron runner. On each tick it loads the enabled crawler
// settings, finds each user's due sources and enqueues one job per source.
type Service struct {
	settings repository.SettingsRepository
	sources  repository.SourceRepository
	jobs     JobCreator
	cfg      Config
	now      func() time.Time
	recorder TickRecorder // nil disables tick metrics

	// ticking guards against overlapping ticks process-wide. A tick that
	// arrives while the previous one is in flight is skipped entirely.
	ticking atomic.Bool

	cron *cron.Cron
}

// NewService creates the scheduler Service.
func NewService(
	settings repository.SettingsRepository,
	sources repository.SourceRepository,
	jobs JobCreator,
	cfg Config,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("NewService: %w", err)
	}
	return &Service{
		settings: settings,
		sources:  sources,
		jobs:     jobs,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// SetRecorder installs a tick metrics recorder. Must be called before Start.
func (s *Service) SetRecorder(r TickRecorder) {
	s.recorder = r
}

// Start registers the cron entry and begins ticking.
func (s *Service) Start(ctx context.Context) error {
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("Start: load timezone: %w", err)
	}

	s.cron = cron.New(cron.WithLocation(loc))
	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("Start: register schedule: %w", err)
	}
	s.cron.Start()

	slog.Info("scheduler started",
		slog.String("schedule", s.cfg.CronSchedule),
		slog.String("timezone", s.cfg.Timezone))
	return nil
}

// Stop halts the cron runner and waits for a running tick's cron goroutine
// to return.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	slog.Info("scheduler stopped")
}

// TriggerNow runs one tick immediately, outside the cron schedule.
func (s *Service) TriggerNow(ctx context.Context) {
	s.Tick(ctx)
}

// Tick enqueues jobs for every due source of every enabled user. Per-source
// failures are logged and do not abort the tick; a tick overlapping a
// previous one is skipped.
func (s *Service) Tick(ctx context.Context) {
	if !s.ticking.CompareAndSwap(false, true) {
		slog.Warn("scheduler tick skipped, previous tick still running")
		s.recordTick("skipped")
		return
	}
	defer s.ticking.Store(false)

	started := s.now()
	enabled, err := s.settings.ListEnabled(ctx)
	if err != nil {
		slog.Error("scheduler tick failed to list enabled settings", slog.Any("error", err))
		s.recordTick("failure")
		return
	}
	if len(enabled) == 0 {
		slog.Debug("scheduler tick found no enabled users")
		s.recordTickSuccess(started, 0)
		return
	}

	var enqueued atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.UserConcurrency)
	for _, settings := range enabled {
		userID := settings.UserID
		g.Go(func() error {
			enqueued.Add(s.enqueueUserSources(gctx, userID))
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("scheduler tick completed",
		slog.Int("users", len(enabled)),
		slog.Int64("jobs_enqueued", enqueued.Load()),
		slog.Duration("duration", s.now().Sub(started)))
	s.recordTickSuccess(started, int(enqueued.Load()))
}

func (s *Service) recordTick(status string) {
	if s.recorder != nil {
		s.recorder.RecordTick(status)
	}
}

func (s *Service) recordTickSuccess(started time.Time, enqueued int) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordTick("success")
	s.recorder.RecordTickDuration(s.now().Sub(started).Seconds())
	s.recorder.RecordJobsEnqueued(enqueued)
	s.recorder.RecordLastSuccess()
}

// enqueueUserSources creates one job per due source for the user and
// returns how many were enqueued. Failures are isolated per source.
func (s *Service) enqueueUserSources(ctx context.Context, userID int64) int64 {
	due, err := s.sources.ListActiveDueForCrawl(ctx, userID, s.now())
	if err != nil {
		slog.Error("failed to list due sources",
			slog.Int64("user_id", userID), slog.Any("error", err))
		return 0
	}

	var enqueued int64
	for _, source := range due {
		if _, err := s.jobs.CreateJob(ctx, source.ID, userID, 0); err != nil {
			slog.Error("failed to enqueue job for source",
				slog.Int64("user_id", userID),
				slog.Int64("source_id", source.ID),
				slog.Any("error", err))
			continue
		}
		enqueued++
	}
	return enqueued
}
