package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"readflow/internal/infra/llm"
	"readflow/internal/pkg/jsonfix"
	"readflow/internal/resilience/retry"
	"readflow/internal/utils/text"
)

// NormalizedContent is the model's structured rendition of an article.
type NormalizedContent struct {
	FormattedContent    string `json:"formattedContent"`
	Summary             string `json:"summary"`
	NotificationContent string `json:"notificationContent"`
	TranslatedTitle     string `json:"translatedTitle"`
}

const (
	normalizerInputBudget = 12000 // characters of article text sent to the model
	maxTitleRunes         = 120
	maxNotificationRunes  = 200
	transientRetries      = 2
)

// Normalizer asks the model to reformat, summarize and optionally translate
// an article. Normalize never fails: rate limits are waited out, transient
// errors retried, malformed responses repaired, and as a last resort a
// deterministic local rendition is produced.
type Normalizer struct {
	completer llm.Completer
	sleep     func(context.Context, time.Duration) error // overridable in tests
}

func NewNormalizer(completer llm.Completer) *Normalizer {
	return &Normalizer{completer: completer, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const normalizerSystemPrompt = `You reformat web articles for a reading app.
Respond with strict JSON only, no prose, no code fences:
{"formattedContent": "...", "summary": "...", "notificationContent": "...", "translatedTitle": "..."}
formattedContent: the full article as markdown with thematic emoji section headings, bullet lists, bold emphasis on key points, and blank lines between sections.
summary: 2-3 short paragraphs capturing the article.
notificationContent: a single sentence under 200 characters announcing the article.
translatedTitle: the title in the target language, under 120 characters. When the target language is "auto", keep the original language.`

// Normalize produces normalized content for the article, falling back to a
// deterministic local rendition when the model cannot be used. The returned
// bool reports whether the AI path succeeded.
func (n *Normalizer) Normalize(ctx context.Context, rawContent, title, language string) (*NormalizedContent, bool) {
	if n.completer != nil {
		result, err := n.normalizeWithAI(ctx, rawContent, title, language)
		if err == nil {
			return result, true
		}
		slog.Warn("normalization degraded to deterministic fallback",
			slog.String("title", text.TruncateRunes(title, 80)),
			slog.Any("error", fmt.Errorf("%w: %v", ErrNormalization, err)))
	}
	return n.fallback(rawContent, title), false
}

// normalizeWithAI runs the completion with two layers of retry: an inner
// loop that waits out rate limits with capped exponential backoff honoring
// Retry-After, and an outer loop that retries transient failures.
func (n *Normalizer) normalizeWithAI(ctx context.Context, rawContent, title, language string) (*NormalizedContent, error) {
	prompt := buildNormalizerPrompt(rawContent, title, language)

	var lastErr error
	for attempt := 0; attempt <= transientRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<attempt) * time.Second
			if err := n.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		raw, err := n.completeWithRateLimitRetry(ctx, prompt)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			continue
		}

		result, err := parseNormalizedContent(raw, rawContent, title)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", transientRetries+1, lastErr)
}

// completeWithRateLimitRetry issues the completion, retrying only on rate
// limit responses. The server's Retry-After hint takes precedence over the
// computed backoff when present.
func (n *Normalizer) completeWithRateLimitRetry(ctx context.Context, prompt string) (string, error) {
	cfg := retry.LLMRateLimitConfig()

	var lastErr error
	wait := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		raw, err := n.completer.Complete(ctx, normalizerSystemPrompt, prompt, 0.3)
		if err == nil {
			return raw, nil
		}

		rl, ok := llm.AsRateLimit(err)
		if !ok {
			return "", err
		}
		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := wait
		if rl.RetryAfter > 0 {
			delay = rl.RetryAfter
		}
		if err := n.sleep(ctx, delay); err != nil {
			return "", err
		}
		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
	}
	return "", fmt.Errorf("rate limited after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func buildNormalizerPrompt(rawContent, title, language string) string {
	body := rawContent
	if len(body) > normalizerInputBudget {
		body = body[:normalizerInputBudget]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Target language: %s\nTitle: %s\n\nArticle:\n%s", language, title, body)
	return b.String()
}

// parseNormalizedContent decodes the model response and applies the quality
// gate plus field fixups. A response whose formatted content is too short in
// absolute terms or relative to the input is rejected on the formatted field
// only; the other fields survive.
func parseNormalizedContent(raw, inputContent, title string) (*NormalizedContent, error) {
	var result NormalizedContent
	if err := jsonfix.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	result.FormattedContent = strings.TrimSpace(result.FormattedContent)
	result.Summary = strings.TrimSpace(result.Summary)
	result.NotificationContent = strings.TrimSpace(result.NotificationContent)
	result.TranslatedTitle = strings.TrimSpace(result.TranslatedTitle)

	if result.Summary == "" {
		return nil, fmt.Errorf("empty summary in response")
	}

	if text.CountRunes(result.FormattedContent) < 200 ||
		text.CountRunes(result.FormattedContent)*10 < text.CountRunes(inputContent) {
		// Keep the AI summary but distrust the truncated body.
		result.FormattedContent = text.CollapseWhitespace(text.StripTags(inputContent))
	}

	if result.TranslatedTitle == "" {
		result.TranslatedTitle = title
	}
	result.TranslatedTitle = text.TruncateRunes(result.TranslatedTitle, maxTitleRunes)

	if result.NotificationContent == "" {
		result.NotificationContent = result.Summary
	}
	result.NotificationContent = text.TruncateRunes(result.NotificationContent, maxNotificationRunes)

	return &result, nil
}

// fallback builds a deterministic rendition from the raw content alone.
func (n *Normalizer) fallback(rawContent, title string) *NormalizedContent {
	clean := text.CollapseWhitespace(text.StripTags(rawContent))
	summary := text.FirstSentences(clean, 3)
	if summary == "" {
		summary = text.TruncateRunes(clean, 300)
	}
	return &NormalizedContent{
		FormattedContent:    clean,
		Summary:             summary,
		NotificationContent: text.TruncateRunes(title, maxNotificationRunes),
		TranslatedTitle:     text.TruncateRunes(title, maxTitleRunes),
	}
}
