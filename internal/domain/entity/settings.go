package entity

import "time"

// CrawlerSettings is the per-user crawler configuration. It is a read-only
// input to the pipeline; the queue snapshots it into JobSettings when a job
// is created.
type CrawlerSettings struct {
	UserID               int64
	IsEnabled            bool
	MaxArticlesPerSource int
	DefaultAILanguage    string
	UpdatedAt            time.Time
}

// Snapshot merges the settings with an optional language preference override
// and returns the immutable per-job settings.
func (s *CrawlerSettings) Snapshot(languageOverride string) JobSettings {
	lang := s.DefaultAILanguage
	if languageOverride != "" {
		lang = languageOverride
	}
	if lang == "" {
		lang = "auto"
	}
	max := s.MaxArticlesPerSource
	if max <= 0 {
		max = 5
	}
	return JobSettings{
		MaxArticlesPerSource: max,
		AILanguage:           lang,
	}
}
