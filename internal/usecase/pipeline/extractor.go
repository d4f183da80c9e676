package pipeline

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"

	"readflow/internal/utils/text"
)

// minContentLength is the floor below which extracted content is considered
// unusable and the article is skipped.
const minContentLength = 150

// Extraction holds the fields pulled out of a raw article page.
type Extraction struct {
	Title       string
	Content     string
	PublishedAt *time.Time
	ImageURL    string
}

// Extractor turns raw article HTML into clean text plus metadata. Extraction
// is pure: no network, no AI. It runs a chain of strategies from readability
// down to whole-body tag stripping and reports failure only when every
// strategy produces too little content or no title can be found.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract runs the strategy chain against the page. It returns
// ErrContentTooShort when no strategy yields enough text and ErrNoTitle when
// content was found but no usable title.
func (e *Extractor) Extract(html, pageURL string) (*Extraction, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		parsedURL = nil
	}

	var readabilityTitle string
	content := ""

	article, rerr := readability.FromReader(strings.NewReader(html), parsedURL)
	if rerr == nil {
		readabilityTitle = strings.TrimSpace(article.Title)
		if c := text.CollapseWhitespace(article.TextContent); len(c) >= minContentLength {
			content = c
		} else if c := text.CollapseWhitespace(text.StripTags(article.Content)); len(c) >= minContentLength {
			content = c
		}
	} else {
		slog.Debug("readability failed, falling back to selectors",
			slog.String("url", pageURL), slog.Any("error", rerr))
	}

	doc, derr := goquery.NewDocumentFromReader(strings.NewReader(html))

	if content == "" && derr == nil {
		content = extractBySelectors(doc)
	}
	if content == "" && derr == nil {
		content = extractByParagraphs(doc)
	}
	if content == "" {
		if c := text.CollapseWhitespace(text.StripTags(text.StripNoise(html))); len(c) >= minContentLength {
			content = c
		}
	}
	if content == "" {
		return nil, fmt.Errorf("%w: all extraction strategies below %d characters", ErrContentTooShort, minContentLength)
	}

	title := pickTitle(readabilityTitle, doc, derr)
	if title == "" {
		return nil, ErrNoTitle
	}

	result := &Extraction{
		Title:       title,
		Content:     content,
		PublishedAt: extractPublishedAt(html),
		ImageURL:    extractImageURL(html, parsedURL),
	}
	return result, nil
}

// contentSelectors are tried in order, most specific first.
var contentSelectors = []string{
	"article",
	".article-content",
	".post-content",
	".entry-content",
	"#content",
	".content",
	"main",
}

// extractBySelectors tries well-known content containers and returns the
// first whose cleaned text clears the minimum length.
func extractBySelectors(doc *goquery.Document) string {
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		c := text.CollapseWhitespace(sel.Text())
		if len(c) >= minContentLength {
			return c
		}
	}
	return ""
}

// extractByParagraphs joins all paragraphs of meaningful length. At least
// three are required so that scattered one-liners do not pass as content.
func extractByParagraphs(doc *goquery.Document) string {
	var paragraphs []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		p := text.CollapseWhitespace(sel.Text())
		if len([]rune(p)) >= 20 {
			paragraphs = append(paragraphs, p)
		}
	})
	if len(paragraphs) < 3 {
		return ""
	}
	joined := strings.Join(paragraphs, "\n\n")
	if len(joined) < minContentLength {
		return ""
	}
	return joined
}

// pickTitle prefers the readability title, then walks h1, <title>, h2, h3
// looking for the first heading longer than 10 characters.
func pickTitle(readabilityTitle string, doc *goquery.Document, docErr error) string {
	if len([]rune(readabilityTitle)) > 10 {
		return readabilityTitle
	}
	if docErr != nil || doc == nil {
		return readabilityTitle
	}

	candidates := []string{readabilityTitle}
	for _, selector := range []string{"h1", "title", "h2", "h3"} {
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			candidates = append(candidates, text.CollapseWhitespace(sel.Text()))
			return len(candidates) < 12
		})
	}
	for _, c := range candidates {
		if len([]rune(c)) > 10 {
			return c
		}
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

var publishedAtRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<meta[^>]+property=["']article:published_time["'][^>]+content=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<meta[^>]+content=["']([^"']+)["'][^>]+property=["']article:published_time["']`),
	regexp.MustCompile(`(?i)<time[^>]+datetime=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)datetime=["']([^"']+)["']`),
}

// extractPublishedAt pulls a publication timestamp from meta tags or time
// elements. Unparseable or future-dated values are discarded in favor of a
// nil timestamp.
func extractPublishedAt(html string) *time.Time {
	for _, re := range publishedAtRes {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		ts, err := dateparse.ParseAny(strings.TrimSpace(m[1]))
		if err != nil {
			continue
		}
		if ts.After(time.Now().Add(24 * time.Hour)) {
			continue
		}
		return &ts
	}
	return nil
}

var imageURLRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<meta[^>]+property=["']og:image["'][^>]+content=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<meta[^>]+content=["']([^"']+)["'][^>]+property=["']og:image["']`),
	regexp.MustCompile(`(?i)<img[^>]+class=["'][^"']*featured[^"']*["'][^>]+src=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<img[^>]+class=["'][^"']*main[^"']*["'][^>]+src=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<img[^>]+alt=["'][^"']*article[^"']*["'][^>]+src=["']([^"']+)["']`),
}

// extractImageURL finds a lead image, preferring og:image, and resolves
// relative references against the page URL.
func extractImageURL(html string, base *url.URL) string {
	for _, re := range imageURLRes {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		raw := strings.TrimSpace(m[1])
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if ref.Scheme != "http" && ref.Scheme != "https" {
			continue
		}
		return ref.String()
	}
	return ""
}
