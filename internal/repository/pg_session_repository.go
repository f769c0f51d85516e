package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/scholarpost/paperbot/internal/domain"
)

// Compile-time interface verification.
var _ SessionRepository = (*PgSessionRepository)(nil)

// PgSessionRepository is a PostgreSQL implementation of SessionRepository.
type PgSessionRepository struct {
	db DBTX
}

// NewPgSessionRepository creates a new PostgreSQL session repository.
func NewPgSessionRepository(db DBTX) *PgSessionRepository {
	return &PgSessionRepository{db: db}
}

// Load retrieves the session for userID, lazily creating a default Idle
// session on first contact. Creation uses INSERT...ON CONFLICT so two
// concurrent first contacts cannot race into duplicate rows.
func (r *PgSessionRepository) Load(ctx context.Context, userID int64) (*domain.Session, error) {
	query := `
		SELECT user_id, conversation_state, active_query, current_page,
			total_results_known, load_more_armed_at, load_more_message_ref,
			last_search_at, created_at, updated_at
		FROM sessions
		WHERE user_id = $1`

	session, err := scanSession(r.db.QueryRow(ctx, query, userID))
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: load session: %w", domain.ErrStoreUnavailable, err)
	}

	fresh := domain.NewSession(userID)
	insert := `
		INSERT INTO sessions (
			user_id, conversation_state, active_query, current_page,
			total_results_known, load_more_armed_at, load_more_message_ref,
			last_search_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET user_id = sessions.user_id
		RETURNING user_id, conversation_state, active_query, current_page,
			total_results_known, load_more_armed_at, load_more_message_ref,
			last_search_at, created_at, updated_at`

	session, err = scanSession(r.db.QueryRow(ctx, insert,
		fresh.UserID,
		fresh.State,
		fresh.ActiveQuery,
		fresh.CurrentPage,
		fresh.TotalResultsKnown,
		fresh.LoadMoreArmedAt,
		fresh.LoadMoreMessageRef,
		fresh.LastSearchAt,
		fresh.CreatedAt,
		fresh.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %w", domain.ErrStoreUnavailable, err)
	}

	return session, nil
}

// Save upserts the full session row.
func (r *PgSessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return domain.NewValidationError("session", "session cannot be nil")
	}
	if !session.State.Valid() {
		return domain.NewValidationError("conversation_state", fmt.Sprintf("unknown state %q", session.State))
	}

	session.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO sessions (
			user_id, conversation_state, active_query, current_page,
			total_results_known, load_more_armed_at, load_more_message_ref,
			last_search_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			conversation_state = EXCLUDED.conversation_state,
			active_query = EXCLUDED.active_query,
			current_page = EXCLUDED.current_page,
			total_results_known = EXCLUDED.total_results_known,
			load_more_armed_at = EXCLUDED.load_more_armed_at,
			load_more_message_ref = EXCLUDED.load_more_message_ref,
			last_search_at = EXCLUDED.last_search_at,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		session.UserID,
		session.State,
		session.ActiveQuery,
		session.CurrentPage,
		session.TotalResultsKnown,
		session.LoadMoreArmedAt,
		session.LoadMoreMessageRef,
		session.LastSearchAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: save session: %w", domain.ErrStoreUnavailable, err)
	}

	return nil
}

// sessionScanDest holds the destination pointers for scanning a session row.
type sessionScanDest struct {
	session domain.Session
}

// destinations returns the slice of pointers for Scan operations.
func (d *sessionScanDest) destinations() []interface{} {
	return []interface{}{
		&d.session.UserID, &d.session.State, &d.session.ActiveQuery,
		&d.session.CurrentPage, &d.session.TotalResultsKnown,
		&d.session.LoadMoreArmedAt, &d.session.LoadMoreMessageRef,
		&d.session.LastSearchAt, &d.session.CreatedAt, &d.session.UpdatedAt,
	}
}

// scanSession scans a single row into a Session.
func scanSession(row pgx.Row) (*domain.Session, error) {
	var dest sessionScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.session, nil
}
