// Package entity defines the core domain entities and validation logic for the
// ingestion pipeline. It contains the fundamental business objects such as
// Article, Source and Job, along with their validation rules and
// domain-specific errors.
package entity

import "time"

// Article represents a single ingested and AI-normalized article.
// Articles are created exactly once per distinct URL; after creation only
// IsDeleted and NotificationSent may change.
type Article struct {
	ID                  int64
	SourceID            int64
	Title               string
	OriginalContent     string
	FormattedContent    string
	Summary             string
	URL                 string
	ImageURL            string
	NotificationContent string
	PublishedAt         *time.Time
	IsDeleted           bool
	NotificationSent    bool
	CreatedAt           time.Time
}
