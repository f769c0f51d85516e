package bot

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxQueryLen bounds accepted search input. Longer text is truncated, not
// rejected, so a pasted paragraph still yields a usable query.
const maxQueryLen = 256

// sanitizeQuery prepares free text for use as a search query: strips
// control characters and markup-injection characters, collapses runs of
// whitespace, and bounds the length. Returns the empty string when nothing
// searchable remains.
func sanitizeQuery(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch {
		case unicode.IsControl(r):
			b.WriteRune(' ')
		case r == '<' || r == '>' || r == '`' || r == '*' || r == '_' || r == '[' || r == ']':
			// Markup characters would leak into rendered replies.
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	if len(cleaned) > maxQueryLen {
		// Never split a multi-byte character at the length cap.
		end := maxQueryLen
		for end > 0 && !utf8.RuneStart(cleaned[end]) {
			end--
		}
		cut := cleaned[:end]
		if i := strings.LastIndexByte(cut, ' '); i > 0 {
			cut = cut[:i]
		}
		cleaned = cut
	}

	return cleaned
}
