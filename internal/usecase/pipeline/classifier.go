package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"readflow/internal/infra/llm"
	"readflow/internal/pkg/jsonfix"
	"readflow/internal/utils/text"
)

// PageType is the classifier's verdict for a fetched page.
type PageType string

const (
	PageTypeArticle PageType = "article"
	PageTypeListing PageType = "listing"
	PageTypeUnknown PageType = "unknown"
)

// Classification is the result of classifying one page: a verdict plus an
// ordered, deduplicated list of candidate article URLs when the page links
// to articles.
type Classification struct {
	PageType    PageType
	ArticleURLs []string
}

const (
	classifierBodyBudget = 8000 // characters of page text sent to the model
	classifierMaxAnchors = 200  // anchor tags sampled separately
	classifierMaxURLs    = 25
)

// Classifier decides whether a page is a single article or a listing and
// discovers candidate article links. The AI path is best-effort: a DOM
// heuristic is always computed and merged in, so classification degrades
// rather than fails.
type Classifier struct {
	completer llm.Completer // nil disables the AI path
}

// NewClassifier creates a Classifier. Passing a nil completer yields a
// heuristic-only classifier.
func NewClassifier(completer llm.Completer) *Classifier {
	return &Classifier{completer: completer}
}

// Classify inspects the page and returns a verdict with candidate article
// URLs. It never returns an error: AI or parse failures degrade to the
// heuristic result with PageTypeUnknown.
func (c *Classifier) Classify(ctx context.Context, html, baseURL string) Classification {
	// Feed bodies short-circuit everything: the entries are the candidates.
	if urls, ok := feedItemLinks(html, baseURL); ok {
		return Classification{PageType: PageTypeListing, ArticleURLs: urls}
	}

	heuristic := discoverLinks(html, baseURL)

	aiResult, err := c.classifyWithAI(ctx, html, baseURL)
	if err != nil {
		slog.Warn("AI classification degraded to heuristics",
			slog.String("base_url", baseURL),
			slog.Any("error", fmt.Errorf("%w: %v", ErrClassification, err)))
		pageType := PageTypeUnknown
		if looksLikeArticleURL(baseURL) {
			pageType = PageTypeArticle
		}
		return Classification{PageType: pageType, ArticleURLs: heuristic}
	}

	merged := mergeCandidates(baseURL, aiResult.ArticleURLs, heuristic)
	return Classification{PageType: aiResult.PageType, ArticleURLs: merged}
}

// aiClassification mirrors the strict JSON shape the model is asked for.
type aiClassification struct {
	PageType    string   `json:"pageType"`
	ArticleURLs []string `json:"articleUrls"`
}

const classifierSystemPrompt = `You analyze a web page and decide whether it is a single article or a listing of links to articles.
Respond with strict JSON only, no prose, no code fences:
{"pageType": "article" | "listing" | "unknown", "articleUrls": ["..."]}
When the page is a listing, return between 10 and 25 article URLs in reading order, absolute or page-relative. When it is a single article or unknown, return an empty array.`

type classifiedResult struct {
	PageType    PageType
	ArticleURLs []string
}

// classifyWithAI builds a size-bounded prompt and asks the model for a
// verdict. Any failure (nil completer, call error, unparseable or invalid
// response) is returned to the caller for degradation.
func (c *Classifier) classifyWithAI(ctx context.Context, html, baseURL string) (*classifiedResult, error) {
	if c.completer == nil {
		return nil, fmt.Errorf("no completer configured")
	}

	prompt := buildClassifierPrompt(html, baseURL)
	raw, err := c.completer.Complete(ctx, classifierSystemPrompt, prompt, 0.0)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	var parsed aiClassification
	if err := jsonfix.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	pageType := PageType(parsed.PageType)
	switch pageType {
	case PageTypeArticle, PageTypeListing, PageTypeUnknown:
	default:
		return nil, fmt.Errorf("unexpected pageType %q", parsed.PageType)
	}

	urls := parsed.ArticleURLs
	if len(urls) > classifierMaxURLs {
		urls = urls[:classifierMaxURLs]
	}
	return &classifiedResult{PageType: pageType, ArticleURLs: urls}, nil
}

// buildClassifierPrompt renders the page for the model: noise-stripped,
// whitespace-collapsed body text truncated to a fixed budget, followed by a
// separately sampled slice of anchor tags so link targets survive the
// truncation.
func buildClassifierPrompt(html, baseURL string) string {
	body := text.StripTags(html)
	if len(body) > classifierBodyBudget {
		body = body[:classifierBodyBudget]
	}

	var anchors strings.Builder
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		count := 0
		doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, _ := sel.Attr("href")
			label := text.CollapseWhitespace(sel.Text())
			if label == "" {
				label = "(no text)"
			}
			fmt.Fprintf(&anchors, "<a href=%q>%s</a>\n", href, text.TruncateRunes(label, 120))
			count++
			return count < classifierMaxAnchors
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Page URL: %s\n\nPage text (truncated):\n%s\n\nAnchor tags (up to %d):\n%s",
		baseURL, body, classifierMaxAnchors, anchors.String())
	return b.String()
}

var (
	// URL path shapes typical of individual articles.
	datePathRe    = regexp.MustCompile(`/\d{4}[/-]\d{1,2}([/-]\d{1,2})?(/|-)`)
	articlePathRe = regexp.MustCompile(`(?i)/(article|news|post|story|blog)s?[/-]|\.html?($|\?)`)
	numericIDRe   = regexp.MustCompile(`/(\d{4,})(/|$|\?)|[-_](\d{4,})($|\?)`)

	// Link-text boilerplate that marks navigation rather than content.
	navTextRe = regexp.MustCompile(`(?i)^(home|about( us)?|contact( us)?|log ?in|log ?out|sign ?(in|up)|register|privacy( policy)?|terms|faq|help|menu|search|subscribe|newsletter|careers|advertис|advertise|rss|next|previous|prev|older|newer|more|read more|page ?\d*|\d{1,3}|»|«|categor(y|ies)|tags?|archive)$`)

	// Content-indicative words and year digits in link text.
	contentTextRe = regexp.MustCompile(`(?i)\b(19|20)\d{2}\b|\b(guide|report|launch|review|analysis|interview|announc|introduc|how to|why|what)`)
)

// looksLikeArticleURL reports whether a URL path matches date-segmented or
// numeric-ID patterns commonly used for individual articles. Used as a
// fallback classification signal independent of the AI call.
func looksLikeArticleURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	path := u.Path
	return datePathRe.MatchString(path) ||
		(articlePathRe.MatchString(path) && numericIDRe.MatchString(path)) ||
		datePathRe.MatchString(path+"/")
}

// discoverLinks scans every anchor in document order and keeps the ones
// whose href or visible text suggests an article link. Returned URLs are
// normalized absolute http(s) URLs with duplicates removed.
func discoverLinks(html, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var ordered []string
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		label := text.CollapseWhitespace(sel.Text())
		if !acceptAnchor(href, label) {
			return
		}
		normalized, ok := normalizeCandidateURL(baseURL, href)
		if !ok {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		ordered = append(ordered, normalized)
	})

	return ordered
}

// acceptAnchor applies the two-stage heuristic: href path patterns first,
// then a visible-text test for links whose URLs are uninformative.
func acceptAnchor(href, label string) bool {
	if datePathRe.MatchString(href) || articlePathRe.MatchString(href) {
		return true
	}
	if len([]rune(label)) < 8 {
		return false
	}
	if navTextRe.MatchString(label) {
		return false
	}
	return contentTextRe.MatchString(label)
}

// mergeCandidates combines AI-suggested and heuristic links, AI first,
// preserving order and removing duplicates by normalized absolute URL.
func mergeCandidates(baseURL string, aiURLs, heuristicURLs []string) []string {
	var merged []string
	seen := make(map[string]struct{})

	appendAll := func(urls []string) {
		for _, raw := range urls {
			normalized, ok := normalizeCandidateURL(baseURL, raw)
			if !ok {
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			merged = append(merged, normalized)
		}
	}

	appendAll(aiURLs)
	appendAll(heuristicURLs)
	return merged
}

// normalizeCandidateURL resolves raw against the base URL and returns a
// canonical absolute form. Only http and https URLs survive; fragments are
// dropped so that #section duplicates collapse.
func normalizeCandidateURL(baseURL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") ||
		strings.HasPrefix(raw, "javascript:") || strings.HasPrefix(raw, "mailto:") {
		return "", false
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if resolved.Host == "" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

// feedItemLinks detects RSS/Atom bodies and returns their entry links.
// Sources configured with a feed URL skip HTML classification entirely.
func feedItemLinks(body, baseURL string) ([]string, bool) {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !strings.Contains(head, "<rss") && !strings.Contains(head, "<feed") &&
		!strings.Contains(head, "<rdf:RDF") {
		return nil, false
	}

	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil || len(feed.Items) == 0 {
		return nil, false
	}

	var urls []string
	seen := make(map[string]struct{})
	for _, item := range feed.Items {
		normalized, ok := normalizeCandidateURL(baseURL, item.Link)
		if !ok {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		urls = append(urls, normalized)
	}
	return urls, len(urls) > 0
}
