package entity

import "time"

// JobStatus describes the lifecycle state of a queued ingestion job.
// completed and failed are terminal; a job may cycle running -> pending
// (retry) before reaching a terminal state.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobSettings is the per-job snapshot of crawler settings, taken at job
// creation time. Later edits to a user's preferences do not retroactively
// change in-flight jobs.
type JobSettings struct {
	MaxArticlesPerSource int    `json:"max_articles_per_source"`
	AILanguage           string `json:"ai_language"`
}

// Job represents one unit of queued work: "crawl this source now".
// Jobs are exclusively owned and mutated by the queue service.
type Job struct {
	ID           int64
	SourceID     int64
	UserID       int64
	Status       JobStatus
	Priority     int
	Settings     JobSettings
	ScheduledAt  time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	RetryCount   int
	MaxRetries   int
	ErrorMessage string
}

// Terminal reports whether the job has reached a terminal status.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// StuckSince reports whether the job has been running since before the given
// cutoff and should be treated as abandoned by a crashed worker.
func (j *Job) StuckSince(cutoff time.Time) bool {
	return j.Status == JobStatusRunning && j.StartedAt != nil && j.StartedAt.Before(cutoff)
}
