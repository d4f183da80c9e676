package text_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"readflow/internal/utils/text"
)

// TestCountRunes tests the CountRunes function with various character types
func TestCountRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "ASCII text",
			input:    "hello",
			expected: 5,
		},
		{
			name:     "ASCII with spaces",
			input:    "hello world",
			expected: 11,
		},
		{
			name:     "Japanese text",
			input:    "こんにちは",
			expected: 5,
		},
		{
			name:     "mixed ASCII and Japanese",
			input:    "hello世界",
			expected: 7,
		},
		{
			name:     "emoji",
			input:    "Hello👋",
			expected: 6,
		},
		{
			name:     "empty string",
			input:    "",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, text.CountRunes(tt.input))
		})
	}
}
