package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readflow/internal/domain/entity"
	"readflow/internal/repository"
)

type fakeJobRepo struct {
	jobs      map[int64]*entity.Job
	nextID    int64
	due       []*entity.Job
	deleted   int64
	createErr error
	listErr   error
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[int64]*entity.Job{}, nextID: 1}
}

func (f *fakeJobRepo) Create(_ context.Context, job *entity.Job) error {
	if f.createErr != nil {
		return f.createErr
	}
	job.ID = f.nextID
	f.nextID++
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobRepo) Update(_ context.Context, job *entity.Job) error {
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobRepo) ListDue(_ context.Context, _, _ time.Time, limit int) ([]*entity.Job, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeJobRepo) ListByUser(_ context.Context, _ int64) ([]*entity.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) StatsByUser(_ context.Context, _ int64) (*repository.JobStats, error) {
	return &repository.JobStats{}, nil
}

func (f *fakeJobRepo) DeleteCompletedBefore(_ context.Context, _ time.Time) (int64, error) {
	return f.deleted, nil
}

type fakeSourceRepo struct {
	source       *entity.Source
	getErr       error
	failedMarked []int64
}

func (f *fakeSourceRepo) Get(_ context.Context, id int64) (*entity.Source, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.source, nil
}

func (f *fakeSourceRepo) ListActiveDueForCrawl(_ context.Context, _ int64, _ time.Time) ([]*entity.Source, error) {
	return nil, nil
}

func (f *fakeSourceRepo) UpdateStatus(_ context.Context, id int64, status entity.SourceStatus) error {
	if status == entity.SourceStatusFailed {
		f.failedMarked = append(f.failedMarked, id)
	}
	return nil
}

func (f *fakeSourceRepo) TouchLastRunAt(_ context.Context, _ int64, _ time.Time) error {
	return nil
}

type fakeSettingsRepo struct {
	settings *entity.CrawlerSettings
	err      error
}

func (f *fakeSettingsRepo) Get(_ context.Context, _ int64) (*entity.CrawlerSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.settings, nil
}

func (f *fakeSettingsRepo) ListEnabled(_ context.Context) ([]*entity.CrawlerSettings, error) {
	return nil, nil
}

type fakePipeline struct {
	err   error
	calls int
}

func (f *fakePipeline) ProcessSingleFeed(_ context.Context, _ *entity.Source, _ entity.JobSettings) error {
	f.calls++
	return f.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func newTestQueue(t *testing.T, jobs *fakeJobRepo, sources *fakeSourceRepo, settings *fakeSettingsRepo, pipeline Pipeline) *Service {
	t.Helper()
	svc, err := NewService(jobs, sources, settings, pipeline, testConfig())
	require.NoError(t, err)
	return svc
}

func enabledSettings() *entity.CrawlerSettings {
	return &entity.CrawlerSettings{
		UserID:               42,
		IsEnabled:            true,
		MaxArticlesPerSource: 5,
		DefaultAILanguage:    "ja",
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 0
	_, err := NewService(newFakeJobRepo(), &fakeSourceRepo{}, &fakeSettingsRepo{}, &fakePipeline{}, cfg)
	assert.Error(t, err)
}

func TestCreateJob(t *testing.T) {
	jobs := newFakeJobRepo()
	svc := newTestQueue(t, jobs, &fakeSourceRepo{}, &fakeSettingsRepo{settings: enabledSettings()}, &fakePipeline{})

	job, err := svc.CreateJob(context.Background(), 7, 42, 3)
	require.NoError(t, err)

	assert.Equal(t, entity.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.Priority)
	assert.Equal(t, svc.cfg.MaxRetries, job.MaxRetries)
	assert.Equal(t, entity.JobSettings{MaxArticlesPerSource: 5, AILanguage: "ja"}, job.Settings,
		"settings snapshotted at creation time")
	assert.Contains(t, jobs.jobs, job.ID)
}

func TestCreateJob_SettingsNotFound(t *testing.T) {
	svc := newTestQueue(t, newFakeJobRepo(), &fakeSourceRepo{}, &fakeSettingsRepo{err: entity.ErrNotFound}, &fakePipeline{})

	_, err := svc.CreateJob(context.Background(), 7, 42, 0)
	assert.ErrorIs(t, err, ErrSettingsNotFound)
}

func pendingJob(id int64, scheduledAt time.Time) *entity.Job {
	return &entity.Job{
		ID:          id,
		SourceID:    7,
		UserID:      42,
		Status:      entity.JobStatusPending,
		Settings:    entity.JobSettings{MaxArticlesPerSource: 5, AILanguage: "auto"},
		ScheduledAt: scheduledAt,
		MaxRetries:  3,
	}
}

func TestPollCycle_CompletesJob(t *testing.T) {
	jobs := newFakeJobRepo()
	pipeline := &fakePipeline{}
	job := pendingJob(1, time.Now().Add(-time.Minute))
	jobs.due = []*entity.Job{job}
	sources := &fakeSourceRepo{source: &entity.Source{ID: 7, UserID: 42, URL: "https://example.com/feed"}}

	svc := newTestQueue(t, jobs, sources, &fakeSettingsRepo{settings: enabledSettings()}, pipeline)
	svc.pollCycle(context.Background())

	assert.Equal(t, 1, pipeline.calls)
	stored := jobs.jobs[1]
	require.NotNil(t, stored)
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Empty(t, stored.ErrorMessage)
}

func TestPollCycle_FailureReschedulesWithBackoff(t *testing.T) {
	jobs := newFakeJobRepo()
	pipeline := &fakePipeline{err: errors.New("fetch blew up")}
	job := pendingJob(1, time.Now().Add(-time.Minute))
	jobs.due = []*entity.Job{job}
	sources := &fakeSourceRepo{source: &entity.Source{ID: 7, UserID: 42}}

	svc := newTestQueue(t, jobs, sources, &fakeSettingsRepo{settings: enabledSettings()}, pipeline)
	base := time.Now()
	svc.now = func() time.Time { return base }
	svc.pollCycle(context.Background())

	stored := jobs.jobs[1]
	require.NotNil(t, stored)
	assert.Equal(t, entity.JobStatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Nil(t, stored.StartedAt)
	assert.Contains(t, stored.ErrorMessage, "fetch blew up")
	assert.Equal(t, base.Add(time.Minute), stored.ScheduledAt, "first retry waits the base backoff")
}

func TestPollCycle_RetryExhaustionIsTerminal(t *testing.T) {
	jobs := newFakeJobRepo()
	pipeline := &fakePipeline{err: errors.New("still broken")}
	job := pendingJob(1, time.Now().Add(-time.Minute))
	job.RetryCount = 2
	jobs.due = []*entity.Job{job}
	sources := &fakeSourceRepo{source: &entity.Source{ID: 7, UserID: 42}}

	svc := newTestQueue(t, jobs, sources, &fakeSettingsRepo{settings: enabledSettings()}, pipeline)
	svc.pollCycle(context.Background())

	stored := jobs.jobs[1]
	require.NotNil(t, stored)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Contains(t, stored.ErrorMessage, "retry limit exhausted")
	assert.Equal(t, []int64{7}, sources.failedMarked, "source marked failed on terminal job failure")
}

func TestPollCycle_ReclaimsStuckJob(t *testing.T) {
	jobs := newFakeJobRepo()
	pipeline := &fakePipeline{}
	startedLongAgo := time.Now().Add(-time.Hour)
	job := pendingJob(1, startedLongAgo)
	job.Status = entity.JobStatusRunning
	job.StartedAt = &startedLongAgo
	jobs.due = []*entity.Job{job}
	sources := &fakeSourceRepo{source: &entity.Source{ID: 7, UserID: 42}}

	svc := newTestQueue(t, jobs, sources, &fakeSettingsRepo{settings: enabledSettings()}, pipeline)
	svc.pollCycle(context.Background())

	assert.Zero(t, pipeline.calls, "reclaimed jobs are rescheduled, not re-run in the same cycle")
	stored := jobs.jobs[1]
	require.NotNil(t, stored)
	assert.Equal(t, entity.JobStatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount, "reclamation consumes a retry")
	assert.Contains(t, stored.ErrorMessage, "stuck")
}

func TestPollCycle_SingleFlight(t *testing.T) {
	jobs := newFakeJobRepo()
	pipeline := &fakePipeline{}
	jobs.due = []*entity.Job{pendingJob(1, time.Now().Add(-time.Minute))}
	sources := &fakeSourceRepo{source: &entity.Source{ID: 7, UserID: 42}}

	svc := newTestQueue(t, jobs, sources, &fakeSettingsRepo{settings: enabledSettings()}, pipeline)
	svc.polling.Store(true)
	svc.pollCycle(context.Background())

	assert.Zero(t, pipeline.calls, "overlapping cycle skipped")
}

func TestBackoff(t *testing.T) {
	svc := newTestQueue(t, newFakeJobRepo(), &fakeSourceRepo{}, &fakeSettingsRepo{}, &fakePipeline{})

	assert.Equal(t, time.Minute, svc.backoff(1))
	assert.Equal(t, 2*time.Minute, svc.backoff(2))
	assert.Equal(t, 4*time.Minute, svc.backoff(3))
	assert.Equal(t, time.Hour, svc.backoff(10), "backoff bounded by the cap")
}

func TestStartStop(t *testing.T) {
	jobs := newFakeJobRepo()
	sources := &fakeSourceRepo{source: &entity.Source{ID: 7, UserID: 42}}
	svc := newTestQueue(t, jobs, sources, &fakeSettingsRepo{settings: enabledSettings()}, &fakePipeline{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	svc.Start(ctx) // second call is a no-op
	svc.TriggerNow()
	time.Sleep(30 * time.Millisecond)
	svc.Stop()
	svc.Stop() // idempotent
}

func TestCleanupOldJobs(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.deleted = 12
	svc := newTestQueue(t, jobs, &fakeSourceRepo{}, &fakeSettingsRepo{}, &fakePipeline{})

	deleted, err := svc.CleanupOldJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
}
