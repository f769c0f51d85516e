package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// abstractLimit caps the abstract length shown in chat bubbles.
const abstractLimit = 500

// Paper is a normalized search result from the paper index.
type Paper struct {
	// Title is the paper title with whitespace collapsed.
	Title string

	// CanonicalLink is the abstract page URL (e.g. "http://arxiv.org/abs/2301.12345").
	CanonicalLink string

	// PDFURL is the direct document URL derived from the canonical link.
	PDFURL string

	// Authors lists author names in publication order.
	Authors []string

	// PublishedDate is the submission date, zero when the feed omitted it.
	PublishedDate time.Time

	// Categories lists subject classification tags.
	Categories []string

	// Abstract is the summary, truncated to a display-friendly length.
	Abstract string
}

// TruncateAbstract shortens s for presentation, appending an ellipsis when
// content was cut. Empty input yields a placeholder.
func TruncateAbstract(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "No summary available"
	}
	if len(s) <= abstractLimit {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := abstractLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// NormalizeWhitespace trims and collapses runs of whitespace, including the
// newlines the arXiv feed embeds mid-title.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
