package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateAbstract(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty yields placeholder",
			input:    "",
			expected: "No summary available",
		},
		{
			name:     "whitespace-only yields placeholder",
			input:    "  \n\t ",
			expected: "No summary available",
		},
		{
			name:     "short text passes through",
			input:    "A note on sorting networks.",
			expected: "A note on sorting networks.",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  A note on sorting networks.  ",
			expected: "A note on sorting networks.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TruncateAbstract(tt.input))
		})
	}

	t.Run("long text truncated with ellipsis", func(t *testing.T) {
		long := strings.Repeat("a", 600)
		got := TruncateAbstract(long)
		assert.Len(t, got, 503)
		assert.True(t, strings.HasSuffix(got, "..."))
	})

	t.Run("exactly at limit untouched", func(t *testing.T) {
		exact := strings.Repeat("b", 500)
		assert.Equal(t, exact, TruncateAbstract(exact))
	})

	t.Run("multi-byte rune straddling the cut stays valid", func(t *testing.T) {
		long := strings.Repeat("a", 499) + "é and more beyond the limit"
		got := TruncateAbstract(long)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, strings.Repeat("a", 499)+"...", got)
	})
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "embedded newlines collapsed",
			input:    "Attention Is\n  All You Need",
			expected: "Attention Is All You Need",
		},
		{
			name:     "tabs and runs of spaces",
			input:    "deep\t\tlearning   survey",
			expected: "deep learning survey",
		},
		{
			name:     "already normalized",
			input:    "plain title",
			expected: "plain title",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeWhitespace(tt.input))
		})
	}
}
