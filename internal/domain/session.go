package domain

import "time"

// ConversationState identifies where a user is in the search dialogue.
type ConversationState string

// Conversation states.
const (
	// StateIdle means the bot is waiting for a command or free-text query.
	StateIdle ConversationState = "idle"

	// StateAwaitingQuery means the user pressed Search and the next text
	// message is treated as the query.
	StateAwaitingQuery ConversationState = "awaiting_query"
)

// Valid reports whether s is a known conversation state.
func (s ConversationState) Valid() bool {
	return s == StateIdle || s == StateAwaitingQuery
}

// Session is the durable per-user conversational state. One row per user.
//
// Invariants: CurrentPage is meaningful only while ActiveQuery is non-empty,
// and LoadMoreArmedAt/LoadMoreMessageRef are both nil or both set. Mutation
// goes through ArmLoadMore/ClearLoadMore so the pairing cannot drift.
type Session struct {
	// UserID is the messaging platform's user identifier (primary key).
	UserID int64

	// State is the current conversation state.
	State ConversationState

	// ActiveQuery is the last submitted search string, empty when none.
	ActiveQuery string

	// CurrentPage is the zero-based page of the active query.
	CurrentPage int

	// TotalResultsKnown is the last observed total for the active query.
	TotalResultsKnown int

	// LoadMoreArmedAt is when a Load More affordance was last presented.
	LoadMoreArmedAt *time.Time

	// LoadMoreMessageRef is the message id carrying that affordance.
	LoadMoreMessageRef *int64

	// LastSearchAt is when the user last ran a search.
	LastSearchAt *time.Time

	// CreatedAt is when the session row was first written.
	CreatedAt time.Time

	// UpdatedAt is when the session row was last written.
	UpdatedAt time.Time
}

// NewSession returns a fresh Idle session for the given user.
func NewSession(userID int64) *Session {
	now := time.Now().UTC()
	return &Session{
		UserID:    userID,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ArmLoadMore records the affordance message and its presentation time.
func (s *Session) ArmLoadMore(messageRef int64, at time.Time) {
	s.LoadMoreArmedAt = &at
	s.LoadMoreMessageRef = &messageRef
}

// ClearLoadMore drops the armed affordance state.
func (s *Session) ClearLoadMore() {
	s.LoadMoreArmedAt = nil
	s.LoadMoreMessageRef = nil
}

// LoadMoreArmed reports whether a Load More affordance is outstanding.
func (s *Session) LoadMoreArmed() bool {
	return s.LoadMoreArmedAt != nil && s.LoadMoreMessageRef != nil
}

// MatchesLoadMoreRef reports whether messageRef is the affordance message
// currently recorded on the session.
func (s *Session) MatchesLoadMoreRef(messageRef int64) bool {
	return s.LoadMoreMessageRef != nil && *s.LoadMoreMessageRef == messageRef
}

// BeginQuery resets pagination state for a newly submitted query.
func (s *Session) BeginQuery(query string, at time.Time) {
	s.State = StateIdle
	s.ActiveQuery = query
	s.CurrentPage = 0
	s.TotalResultsKnown = 0
	s.LastSearchAt = &at
	s.ClearLoadMore()
}

// Invariant reports whether the session satisfies its structural invariants.
// Checked by tests after every orchestrator operation.
func (s *Session) Invariant() bool {
	if (s.LoadMoreArmedAt == nil) != (s.LoadMoreMessageRef == nil) {
		return false
	}
	if s.CurrentPage < 0 || s.TotalResultsKnown < 0 {
		return false
	}
	if s.ActiveQuery == "" && s.CurrentPage != 0 {
		return false
	}
	return s.State.Valid()
}
