// Package queue implements the background job queue: job creation, the
// polling worker loop, retry with exponential backoff, stuck-job
// reclamation and housekeeping.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"readflow/internal/domain/entity"
	"readflow/internal/observability/logging"
	"readflow/internal/observability/metrics"
	"readflow/internal/observability/slo"
	"readflow/internal/observability/tracing"
	"readflow/internal/repository"
)

// Pipeline is the orchestrator contract the queue drives.
type Pipeline interface {
	ProcessSingleFeed(ctx context.Context, source *entity.Source, settings entity.JobSettings) error
}

// Config controls the poll loop and retry policy.
type Config struct {
	// PollInterval is the fixed delay between poll cycles.
	PollInterval time.Duration
	// BatchSize caps how many due jobs one cycle picks up.
	BatchSize int
	// StuckThreshold is how long a job may sit in running before the
	// poll loop reclaims it as abandoned.
	StuckThreshold time.Duration
	// MaxRetries is the retry budget assigned to new jobs.
	MaxRetries int
	// BackoffBase is the wait after the first failure; each further
	// failure doubles it.
	BackoffBase time.Duration
	// BackoffCap bounds the retry wait.
	BackoffCap time.Duration
	// Retention is how long completed jobs are kept before cleanup.
	Retention time.Duration
}

// DefaultConfig returns the queue configuration used in production.
func DefaultConfig() Config {
	return Config{
		PollInterval:   30 * time.Second,
		BatchSize:      5,
		StuckThreshold: 5 * time.Minute,
		MaxRetries:     3,
		BackoffBase:    time.Minute,
		BackoffCap:     time.Hour,
		Retention:      7 * 24 * time.Hour,
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.StuckThreshold <= 0 {
		return fmt.Errorf("stuck threshold must be positive, got %v", c.StuckThreshold)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff range invalid: base %v cap %v", c.BackoffBase, c.BackoffCap)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive, got %v", c.Retention)
	}
	return nil
}

// Service is the job queue. It is constructed once at process start and
// owns the poll loop goroutine between Start and Stop.
type Service struct {
	jobs     repository.JobRepository
	sources  repository.SourceRepository
	settings repository.SettingsRepository
	pipeline Pipeline
	cfg      Config
	now      func() time.Time

	// polling is the per-cycle single-flight guard: a tick that finds a
	// previous cycle still in flight is skipped, not queued.
	polling atomic.Bool

	trigger  chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewService creates the queue Service with the given configuration.
func NewService(
	jobs repository.JobRepository,
	sources repository.SourceRepository,
	settings repository.SettingsRepository,
	pipeline Pipeline,
	cfg Config,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("NewService: %w", err)
	}
	return &Service{
		jobs:     jobs,
		sources:  sources,
		settings: settings,
		pipeline: pipeline,
		cfg:      cfg,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// CreateJob validates that crawler settings exist for the user, snapshots
// them into an immutable per-job copy and inserts a pending job scheduled
// for now. Returns ErrSettingsNotFound when the user has no settings.
func (s *Service) CreateJob(ctx context.Context, sourceID, userID int64, priority int) (*entity.Job, error) {
	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrSettingsNotFound, userID)
		}
		return nil, fmt.Errorf("CreateJob: load settings: %w", err)
	}

	job := &entity.Job{
		SourceID:    sourceID,
		UserID:      userID,
		Status:      entity.JobStatusPending,
		Priority:    priority,
		Settings:    settings.Snapshot(""),
		ScheduledAt: s.now(),
		MaxRetries:  s.cfg.MaxRetries,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("CreateJob: %w", err)
	}

	slog.Info("job created",
		slog.Int64("job_id", job.ID),
		slog.Int64("source_id", sourceID),
		slog.Int64("user_id", userID),
		slog.Int("priority", priority))
	return job, nil
}

// Start launches the poll loop. It is safe to call once; subsequent calls
// are no-ops.
func (s *Service) Start(ctx context.Context) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true

	go s.pollLoop(ctx)
	slog.Info("job queue started",
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Int("batch_size", s.cfg.BatchSize))
}

// Stop shuts the poll loop down and waits for an in-flight cycle to finish.
func (s *Service) Stop() {
	s.startMu.Lock()
	started := s.started
	s.startMu.Unlock()
	if !started {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.done
		slog.Info("job queue stopped")
	})
}

// TriggerNow requests an immediate poll cycle outside the fixed interval.
// The request is dropped if a trigger is already queued.
func (s *Service) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Service) pollLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollCycle(ctx)
		case <-s.trigger:
			s.pollCycle(ctx)
		}
	}
}

// pollCycle picks up one batch of due jobs and processes them sequentially.
// Overlapping cycles are skipped via the single-flight guard, which also
// guarantees the same job is never processed by two cycles at once.
func (s *Service) pollCycle(ctx context.Context) {
	if !s.polling.CompareAndSwap(false, true) {
		slog.Debug("poll cycle skipped, previous cycle still running")
		return
	}
	defer s.polling.Store(false)

	now := s.now()
	stuckBefore := now.Add(-s.cfg.StuckThreshold)
	due, err := s.jobs.ListDue(ctx, now, stuckBefore, s.cfg.BatchSize)
	if err != nil {
		slog.Error("failed to list due jobs", slog.Any("error", err))
		return
	}
	metrics.UpdateJobsPending(len(due))
	if len(due) == 0 {
		return
	}

	for _, job := range due {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if job.StuckSince(stuckBefore) {
			s.reclaimStuckJob(ctx, job)
			continue
		}
		s.runJob(ctx, job)
	}
}

// reclaimStuckJob handles a job abandoned mid-run, typically by a crashed
// worker. Reclamation consumes a retry: the job either goes back to pending
// with backoff or reaches terminal failure.
func (s *Service) reclaimStuckJob(ctx context.Context, job *entity.Job) {
	logger := logging.WithJob(slog.Default(), job.ID, job.SourceID)
	logger.Warn("reclaiming stuck job",
		slog.Time("started_at", derefTime(job.StartedAt)),
		slog.Int("retry_count", job.RetryCount))

	metrics.RecordJobReclaimed()
	s.failOrReschedule(ctx, job, fmt.Errorf("job stuck in running state since %v", derefTime(job.StartedAt)))
}

// runJob executes one job end to end and applies the retry policy on
// failure.
func (s *Service) runJob(ctx context.Context, job *entity.Job) {
	logger := logging.WithJob(slog.Default(), job.ID, job.SourceID)
	ctx, span := tracing.StartJobSpan(ctx, job.ID, job.SourceID)

	started := s.now()
	job.Status = entity.JobStatusRunning
	job.StartedAt = &started
	if err := s.jobs.Update(ctx, job); err != nil {
		logger.Error("failed to mark job running", slog.Any("error", err))
		tracing.EndJobSpan(span, "error", err)
		return
	}

	runErr := s.execute(ctx, job)
	if runErr == nil {
		completed := s.now()
		job.Status = entity.JobStatusCompleted
		job.CompletedAt = &completed
		job.ErrorMessage = ""
		if err := s.jobs.Update(ctx, job); err != nil {
			logger.Error("failed to mark job completed", slog.Any("error", err))
		}
		metrics.RecordJobProcessed("completed", s.now().Sub(started))
		slo.RecordJob(true, s.now().Sub(started))
		tracing.EndJobSpan(span, string(entity.JobStatusCompleted), nil)
		logger.Info("job completed", slog.Duration("duration", s.now().Sub(started)))
		return
	}

	logger.Warn("job execution failed",
		slog.Int("retry_count", job.RetryCount),
		slog.Any("error", runErr))
	s.failOrReschedule(ctx, job, runErr)
	tracing.EndJobSpan(span, string(job.Status), runErr)
}

// execute loads the job's source and hands it to the pipeline.
func (s *Service) execute(ctx context.Context, job *entity.Job) error {
	source, err := s.sources.Get(ctx, job.SourceID)
	if err != nil {
		return fmt.Errorf("load source %d: %w", job.SourceID, err)
	}
	return s.pipeline.ProcessSingleFeed(ctx, source, job.Settings)
}

// failOrReschedule applies the retry policy after a failed attempt. The
// retry counter is incremented; an exhausted job becomes terminal and its
// source is marked failed, otherwise the job goes back to pending with
// exponential backoff.
func (s *Service) failOrReschedule(ctx context.Context, job *entity.Job, cause error) {
	job.RetryCount++
	job.StartedAt = nil
	job.ErrorMessage = truncateError(cause)

	if job.RetryCount >= job.MaxRetries {
		completed := s.now()
		job.Status = entity.JobStatusFailed
		job.CompletedAt = &completed
		job.ErrorMessage = truncateError(fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, job.RetryCount, cause))
		if err := s.sources.UpdateStatus(ctx, job.SourceID, entity.SourceStatusFailed); err != nil {
			slog.Error("failed to mark source failed",
				slog.Int64("source_id", job.SourceID), slog.Any("error", err))
		}
		metrics.RecordJobProcessed("failed", 0)
		slo.RecordJob(false, 0)
	} else {
		job.Status = entity.JobStatusPending
		job.ScheduledAt = s.now().Add(s.backoff(job.RetryCount))
		metrics.RecordJobProcessed("retried", 0)
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		slog.Error("failed to persist job retry state",
			slog.Int64("job_id", job.ID), slog.Any("error", err))
	}
}

// backoff returns the wait before retry n (1-based): base, 2*base, 4*base,
// bounded by the cap.
func (s *Service) backoff(n int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= s.cfg.BackoffCap {
			return s.cfg.BackoffCap
		}
	}
	if d > s.cfg.BackoffCap {
		return s.cfg.BackoffCap
	}
	return d
}

// CleanupOldJobs deletes completed jobs older than the retention period and
// returns how many were removed.
func (s *Service) CleanupOldJobs(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.Retention)
	deleted, err := s.jobs.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("CleanupOldJobs: %w", err)
	}
	if deleted > 0 {
		slog.Info("old jobs cleaned up",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff))
	}
	return deleted, nil
}

// GetUserJobs returns the user's jobs, newest first.
func (s *Service) GetUserJobs(ctx context.Context, userID int64) ([]*entity.Job, error) {
	jobs, err := s.jobs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetUserJobs: %w", err)
	}
	return jobs, nil
}

// GetJobStats returns per-status job counts for the user.
func (s *Service) GetJobStats(ctx context.Context, userID int64) (*repository.JobStats, error) {
	stats, err := s.jobs.StatsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetJobStats: %w", err)
	}
	return stats, nil
}

func truncateError(err error) string {
	const limit = 500
	msg := err.Error()
	if len(msg) > limit {
		return msg[:limit]
	}
	return msg
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
