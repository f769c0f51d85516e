package repository

import (
	"context"

	"github.com/scholarpost/paperbot/internal/domain"
)

// SessionRepository handles durable per-user conversational state.
type SessionRepository interface {
	// Load retrieves the session for userID, creating and persisting a
	// default Idle session when none exists yet.
	Load(ctx context.Context, userID int64) (*domain.Session, error)

	// Save upserts the full session row. A failure must propagate so the
	// caller can answer with a generic failure instead of carrying
	// inconsistent in-memory state forward.
	Save(ctx context.Context, session *domain.Session) error
}
