package bot

// TextMessage is an inbound free-text or command message.
type TextMessage struct {
	UserID int64
	ChatID int64
	Text   string
}

// ButtonPress is an inbound press of an inline button. MessageID identifies
// the message carrying the pressed control, which load-more validation
// checks against the session's recorded affordance reference.
type ButtonPress struct {
	UserID    int64
	ChatID    int64
	MessageID int64
	ButtonID  string
}

// MembershipChange reports the user blocking or unblocking the bot.
type MembershipChange struct {
	UserID    int64
	NewStatus string
}
