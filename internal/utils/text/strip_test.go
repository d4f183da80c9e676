package text_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"readflow/internal/utils/text"
)

func TestStripTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain tags",
			input:    "<p>Hello <b>world</b></p>",
			expected: "Hello world",
		},
		{
			name:     "script content removed",
			input:    "<p>Before</p><script>var x = 1;</script><p>After</p>",
			expected: "Before After",
		},
		{
			name:     "style and comments removed",
			input:    "<style>.a{color:red}</style><!-- nav --><p>Body</p>",
			expected: "Body",
		},
		{
			name:     "whitespace collapsed",
			input:    "<div>  a \n\n  b  </div>",
			expected: "a b",
		},
		{
			name:     "no markup",
			input:    "already plain",
			expected: "already plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, text.StripTags(tt.input))
		})
	}
}

func TestFirstSentences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		n        int
		expected string
	}{
		{
			name:     "fewer sentences than requested",
			input:    "Only one sentence.",
			n:        3,
			expected: "Only one sentence.",
		},
		{
			name:     "takes leading sentences",
			input:    "First. Second! Third? Fourth.",
			n:        2,
			expected: "First. Second!",
		},
		{
			name:     "japanese terminators",
			input:    "最初の文。二番目の文。三番目。",
			n:        2,
			expected: "最初の文。二番目の文。",
		},
		{
			name:     "zero sentences",
			input:    "Anything.",
			n:        0,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, text.FirstSentences(tt.input, tt.n))
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{
			name:     "under limit unchanged",
			input:    "short",
			limit:    10,
			expected: "short",
		},
		{
			name:     "exactly at limit unchanged",
			input:    "12345",
			limit:    5,
			expected: "12345",
		},
		{
			name:     "truncated with ellipsis",
			input:    "abcdefgh",
			limit:    5,
			expected: "abcd…",
		},
		{
			name:     "multibyte runes",
			input:    "こんにちは世界",
			limit:    4,
			expected: "こんに…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, text.TruncateRunes(tt.input, tt.limit))
		})
	}
}
