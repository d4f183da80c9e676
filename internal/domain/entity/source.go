package entity

import (
	"fmt"
	"net/url"
	"time"
)

// SourceStatus describes the crawl state of a feed source.
type SourceStatus string

const (
	SourceStatusIdle      SourceStatus = "idle"
	SourceStatusRunning   SourceStatus = "running"
	SourceStatusCompleted SourceStatus = "completed"
	SourceStatusFailed    SourceStatus = "failed"
)

// Source represents a user-configured URL that is periodically crawled for
// new articles. Status and LastRunAt are mutated by the scheduler and the
// pipeline; the source itself is never deleted by this subsystem.
type Source struct {
	ID            int64
	UserID        int64
	URL           string
	IsActive      bool
	CrawlInterval time.Duration
	LastRunAt     *time.Time
	Status        SourceStatus
}

// DueForCrawl reports whether the source should be crawled at the given time.
// A source that has never run is always due.
func (s *Source) DueForCrawl(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.LastRunAt == nil {
		return true
	}
	return now.After(s.LastRunAt.Add(s.CrawlInterval))
}

// Validate validates the Source entity fields.
func (s *Source) Validate() error {
	if s.UserID <= 0 {
		return &ValidationError{Field: "user_id", Message: "must be positive"}
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Message: fmt.Sprintf("not an absolute http(s) URL: %q", s.URL)}
	}
	if s.CrawlInterval <= 0 {
		return &ValidationError{Field: "crawl_interval", Message: "must be positive"}
	}
	return nil
}
