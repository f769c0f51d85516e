package bot

import (
	"fmt"
	"strings"

	"github.com/scholarpost/paperbot/internal/domain"
)

// Reply keyboard labels. Presses of these arrive as plain text messages and
// are matched verbatim before free text is treated as a search query.
const (
	LabelSearch = "🔍 Search"
	LabelHelp   = "📖 Help"
)

// Inline button ids.
const (
	// ButtonLoadMore requests the next results page.
	ButtonLoadMore = "load_more"

	// ButtonDownloadPrefix precedes the one-based item number of a
	// requested paper, e.g. "download:3".
	ButtonDownloadPrefix = "download:"
)

// User-facing replies.
const (
	msgWelcome         = "📚 Welcome to Research Paper Bot! Choose an option:"
	msgHelp            = "Use the 🔍 Search button or type a topic directly to find academic papers from arXiv."
	msgPromptQuery     = "Please enter your search keywords (e.g., deep learning):"
	msgSearching       = "🔍 Searching for papers... Please wait."
	msgNoResults       = "No papers found. Please try a different search term."
	msgNoMorePapers    = "No more papers for this search. Send a new topic to start over."
	msgEndOfResults    = "That's everything for this search. Send a new topic anytime."
	msgRateLimited     = "You are searching too quickly. Please wait a minute and try again."
	msgSessionExpired  = "This search session has expired. Please start a new search."
	msgQuotaExceeded   = "You have reached your daily download limit. Please try again tomorrow."
	msgGenericFailure  = "Sorry, an error occurred while processing your message. Please try again."
	msgEmptyQuery      = "Please send a non-empty search topic."
	msgLoadMoreLabel   = "⬇️ Load More"
	msgDownloadCaption = "📄 %s"
)

// reminderText prompts the user after the load-more affordance sat idle.
func reminderText() string {
	return "⏰ Still interested? Tap Load More on your last results, or send a new topic to search again."
}

// foundText announces how many papers the current page shows.
func foundText(count int) string {
	if count == 1 {
		return "📚 Found 1 paper matching your search."
	}
	return fmt.Sprintf("📚 Found %d papers matching your search.", count)
}

// fileTooLargeText explains a single-file ceiling rejection.
func fileTooLargeText(limitMB int64) string {
	return fmt.Sprintf("This paper is larger than the %d MB download limit.", limitMB)
}

// transferCeilingText directs the user to the canonical link when the
// platform itself cannot carry the file.
func transferCeilingText(link string) string {
	return fmt.Sprintf("This paper is too large to send here. You can read it directly:\n%s", link)
}

// paperText renders one paper in the results list. numbering is one-based
// within the full result sequence so download buttons line up with what the
// user sees.
func paperText(index int, p *domain.Paper) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📄 %d. %s\n", index, p.Title)
	if len(p.Authors) > 0 {
		authors := p.Authors
		if len(authors) > 3 {
			authors = append(append([]string{}, authors[:3]...), "et al.")
		}
		fmt.Fprintf(&b, "👥 %s\n", strings.Join(authors, ", "))
	}
	if !p.PublishedDate.IsZero() {
		fmt.Fprintf(&b, "📅 %s\n", p.PublishedDate.Format("2006-01-02"))
	}
	if len(p.Categories) > 0 {
		fmt.Fprintf(&b, "🏷 %s\n", strings.Join(p.Categories, ", "))
	}

	b.WriteString("\n")
	b.WriteString(domain.TruncateAbstract(p.Abstract))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "🔗 %s", p.CanonicalLink)

	return b.String()
}

// mainKeyboard is the persistent reply keyboard with Search and Help.
func mainKeyboard() *Keyboard {
	return &Keyboard{
		Rows: [][]Button{
			{{Label: LabelSearch}},
			{{Label: LabelHelp}},
		},
	}
}

// removeKeyboard clears the reply keyboard while awaiting query input.
func removeKeyboard() *Keyboard {
	return &Keyboard{Remove: true}
}

// resultsKeyboard attaches download buttons for the visible slice and,
// when more pages exist, a Load More control. firstIndex is the one-based
// number of the first visible item.
func resultsKeyboard(firstIndex, visible int, hasMore bool) *Keyboard {
	kb := &Keyboard{Inline: true}

	var row []Button
	for i := 0; i < visible; i++ {
		n := firstIndex + i
		row = append(row, Button{
			Label: fmt.Sprintf("📥 %d", n),
			Data:  fmt.Sprintf("%s%d", ButtonDownloadPrefix, n),
		})
	}
	if len(row) > 0 {
		kb.Rows = append(kb.Rows, row)
	}
	if hasMore {
		kb.Rows = append(kb.Rows, []Button{{Label: msgLoadMoreLabel, Data: ButtonLoadMore}})
	}

	return kb
}
