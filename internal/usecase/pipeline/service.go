// Package pipeline implements the ingestion pipeline: fetching a source
// page, classifying it, discovering article links, extracting and
// AI-normalizing article content, and persisting the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"readflow/internal/domain/entity"
	"readflow/internal/observability/metrics"
	"readflow/internal/observability/slo"
	"readflow/internal/observability/tracing"
	"readflow/internal/repository"
)

// Fetcher retrieves the raw body of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Notifier delivers a new-article notification. Delivery is best-effort;
// the returned bool reports whether it went out.
type Notifier interface {
	NotifyNewArticle(ctx context.Context, userID int64, article *entity.Article) bool
}

// Service orchestrates the per-source pipeline run.
type Service struct {
	articles   repository.ArticleRepository
	sources    repository.SourceRepository
	fetcher    Fetcher
	classifier *Classifier
	extractor  *Extractor
	normalizer *Normalizer
	notifier   Notifier // nil disables notifications
	now        func() time.Time
}

// NewService creates the pipeline Service. notifier may be nil.
func NewService(
	articles repository.ArticleRepository,
	sources repository.SourceRepository,
	fetcher Fetcher,
	classifier *Classifier,
	extractor *Extractor,
	normalizer *Normalizer,
	notifier Notifier,
) *Service {
	return &Service{
		articles:   articles,
		sources:    sources,
		fetcher:    fetcher,
		classifier: classifier,
		extractor:  extractor,
		normalizer: normalizer,
		notifier:   notifier,
		now:        time.Now,
	}
}

/// ProcessSingleFeed runs the full pipeline for one source: fetch, classify,
// then extract, normalize and persist candidate articles until the per-source
// quota is reached. On success the source is marked completed and its last
// run time updated; on failure it is marked failed and the error propagates
// to the queue, which applies the retry policy.
func (s *Service) ProcessSingleFeed(ctx context.Context, source *entity.Source, settings entity.JobSettings) error {
	ctx, span := tracing.GetTracer().Start(ctx, "pipeline.process_single_feed")
	defer span.End()

	started := s.now()
	if err := s.sources.UpdateStatus(ctx, source.ID, entity.SourceStatusRunning); err != nil {
		return fmt.Errorf("ProcessSingleFeed: mark running: %w", err)
	}

	accepted, err := s.run(ctx, source, settings)
	metrics.RecordSourceCrawl(source.ID, s.now().Sub(started), err == nil)
	if err != nil {
		if statusErr := s.sources.UpdateStatus(ctx, source.ID, entity.SourceStatusFailed); statusErr != nil {
			slog.Error("failed to mark source failed",
				slog.Int64("source_id", source.ID), slog.Any("error", statusErr))
		}
		return fmt.Errorf("ProcessSingleFeed: source %d: %w", source.ID, err)
	}

	if err := s.sources.UpdateStatus(ctx, source.ID, entity.SourceStatusCompleted); err != nil {
		return fmt.Errorf("ProcessSingleFeed: mark completed: %w", err)
	}
	if err := s.sources.TouchLastRunAt(ctx, source.ID, s.now()); err != nil {
		return fmt.Errorf("ProcessSingleFeed: touch last run: %w", err)
	}

	slog.Info("source crawl completed",
		slog.Int64("source_id", source.ID),
		slog.Int("articles_accepted", accepted),
		slog.Duration("duration", s.now().Sub(started)))
	return nil
}

// run does the fetch/classify/process sequence and returns the number of
// accepted articles.
func (s *Service) run(ctx context.Context, source *entity.Source, settings entity.JobSettings) (int, error) {
	html, err := s.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		metrics.RecordCrawlError(source.ID, "fetch")
		return 0, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	classification := s.classifier.Classify(ctx, html, source.URL)
	slog.Debug("source classified",
		slog.Int64("source_id", source.ID),
		slog.String("page_type", string(classification.PageType)),
		slog.Int("candidates", len(classification.ArticleURLs)))

	singleArticle := classification.PageType == PageTypeArticle ||
		(classification.PageType == PageTypeUnknown && looksLikeArticleURL(source.URL))

	if singleArticle {
		// The source page itself is the article. Reuse the body already
		// fetched; if extraction rejects it, fall through and treat the page
		// as a listing of its discovered links.
		ok, err := s.processCandidate(ctx, source, settings, source.URL, html)
		if err != nil {
			return 0, err
		}
		if ok {
			return 1, nil
		}
		slog.Debug("single-article extraction rejected page, retrying as listing",
			slog.Int64("source_id", source.ID))
	}

	accepted := 0
	for _, candidateURL := range classification.ArticleURLs {
		if accepted >= settings.MaxArticlesPerSource {
			break
		}
		if candidateURL == source.URL && singleArticle {
			continue
		}
		ok, err := s.processCandidate(ctx, source, settings, candidateURL, "")
		if err != nil {
			return accepted, err
		}
		if ok {
			accepted++
		}
	}
	return accepted, nil
}

// processCandidate takes one candidate URL through dedup, fetch, extract,
// normalize, persist and notify. prefetched carries the page body when the
// caller already holds it. The bool result reports whether an article was
// accepted; skips return (false, nil) and only persistence-layer failures
// propagate as errors.
func (s *Service) processCandidate(ctx context.Context, source *entity.Source, settings entity.JobSettings, candidateURL, prefetched string) (bool, error) {
	exists, err := s.articles.ExistsByURL(ctx, candidateURL)
	if err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		metrics.RecordArticleSkipped(source.ID, "duplicate")
		return false, nil
	}

	html := prefetched
	if html == "" {
		html, err = s.fetcher.Fetch(ctx, candidateURL)
		if err != nil {
			slog.Warn("candidate fetch failed, skipping",
				slog.Int64("source_id", source.ID),
				slog.String("url", candidateURL),
				slog.Any("error", err))
			metrics.RecordArticleSkipped(source.ID, "fetch")
			return false, nil
		}
	}

	extraction, err := s.extractor.Extract(html, candidateURL)
	if err != nil {
		slog.Debug("extraction rejected candidate",
			slog.Int64("source_id", source.ID),
			slog.String("url", candidateURL),
			slog.Any("error", err))
		metrics.RecordArticleSkipped(source.ID, "extract")
		return false, nil
	}

	normStart := s.now()
	normalized, aiOK := s.normalizer.Normalize(ctx, extraction.Content, extraction.Title, settings.AILanguage)
	metrics.RecordNormalization(s.now().Sub(normStart), aiOK)

	article := &entity.Article{
		SourceID:            source.ID,
		Title:               normalized.TranslatedTitle,
		OriginalContent:     extraction.Content,
		FormattedContent:    normalized.FormattedContent,
		Summary:             normalized.Summary,
		URL:                 candidateURL,
		ImageURL:            extraction.ImageURL,
		NotificationContent: normalized.NotificationContent,
		PublishedAt:         extraction.PublishedAt,
	}

	if err := s.articles.Create(ctx, article); err != nil {
		if errors.Is(err, entity.ErrDuplicateURL) {
			// Lost a race with a concurrent job; the article exists, so this
			// candidate is just a duplicate.
			metrics.RecordArticleSkipped(source.ID, "duplicate")
			return false, nil
		}
		return false, fmt.Errorf("persist article: %w", err)
	}
	metrics.RecordArticleCreated(source.ID)

	s.notify(ctx, source.UserID, article)
	return true, nil
}

// notify sends the new-article notification and records the outcome on the
// article. Every failure here is logged and swallowed.
func (s *Service) notify(ctx context.Context, userID int64, article *entity.Article) {
	if s.notifier == nil {
		return
	}
	sent := s.notifier.NotifyNewArticle(ctx, userID, article)
	slo.RecordNotification(sent)
	if !sent {
		slog.Warn("article notification not delivered",
			slog.Int64("article_id", article.ID),
			slog.Int64("user_id", userID))
	}
	if err := s.articles.MarkNotificationSent(ctx, article.ID, sent); err != nil {
		slog.Error("failed to record notification state",
			slog.Int64("article_id", article.ID), slog.Any("error", err))
	}
}
