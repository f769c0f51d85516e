// Package bot contains the per-user conversational engine: the event types
// delivered by the messaging platform, the outbound gateway contract, and
// the orchestrator that drives session state for search, pagination,
// reminders, and downloads.
package bot

import "context"

// Button is one pressable control on a keyboard.
type Button struct {
	// Label is the visible text.
	Label string

	// Data is the callback payload for inline buttons. Empty for reply
	// keyboard buttons, whose press arrives as a plain text message.
	Data string
}

// Keyboard is a grid of buttons attached to an outbound message.
type Keyboard struct {
	Rows [][]Button

	// Inline keyboards attach to a single message and report presses as
	// ButtonPress events. Reply keyboards replace the user's input panel.
	Inline bool

	// Remove clears any visible reply keyboard instead of showing one.
	Remove bool
}

// Gateway is the outbound half of the messaging platform. Every operation
// is fallible; callers decide whether a failure is worth retrying. Message
// ids returned by send operations are platform-scoped and opaque.
type Gateway interface {
	// SendText delivers a text message, optionally with a keyboard, and
	// returns the platform message id.
	SendText(ctx context.Context, chatID int64, text string, keyboard *Keyboard) (int64, error)

	// EditText rewrites a previously sent message in place.
	EditText(ctx context.Context, chatID, messageID int64, text string) error

	// DeleteMessage removes a previously sent message. Best-effort cleanup:
	// callers log failures and move on.
	DeleteMessage(ctx context.Context, chatID, messageID int64) error

	// SendDocument delivers a document by URL with a filename and caption,
	// returning the platform message id.
	SendDocument(ctx context.Context, chatID int64, url, filename, caption string) (int64, error)
}
