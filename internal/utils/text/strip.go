package text

import (
	"regexp"
	"strings"
)

var (
	scriptRe  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	svgRe     = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	iframeRe  = regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	spaceRe   = regexp.MustCompile(`\s+`)

	// CJK terminators end a sentence without a trailing space
	sentenceEndRe = regexp.MustCompile(`[.!?](\s|$)|[。！？]`)
)

// StripNoise removes non-content HTML regions (scripts, styles, SVG,
// iframes, comments) while keeping the markup structure intact.
func StripNoise(html string) string {
	html = scriptRe.ReplaceAllString(html, " ")
	html = styleRe.ReplaceAllString(html, " ")
	html = svgRe.ReplaceAllString(html, " ")
	html = iframeRe.ReplaceAllString(html, " ")
	html = commentRe.ReplaceAllString(html, " ")
	return html
}

// StripTags removes noise regions and all remaining HTML tags, then collapses
// runs of whitespace into single spaces. The result is plain text suitable as
// a deterministic fallback for AI-formatted content.
func StripTags(html string) string {
	html = StripNoise(html)
	html = tagRe.ReplaceAllString(html, " ")
	return CollapseWhitespace(html)
}

// CollapseWhitespace squeezes any run of whitespace into a single space and
// trims the ends.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// FirstSentences returns up to n leading sentences of the text. Sentence
// boundaries are punctuation marks followed by whitespace or end of input,
// covering both Latin and CJK terminators.
func FirstSentences(text string, n int) string {
	if n <= 0 {
		return ""
	}
	remaining := text
	var b strings.Builder
	for i := 0; i < n; i++ {
		loc := sentenceEndRe.FindStringIndex(remaining)
		if loc == nil {
			b.WriteString(remaining)
			break
		}
		b.WriteString(remaining[:loc[1]])
		remaining = remaining[loc[1]:]
		if remaining == "" {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// TruncateRunes shortens the text to at most limit Unicode characters,
// appending an ellipsis when truncation happened.
func TruncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}
