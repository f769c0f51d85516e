package repository

import (
	"context"
	"sync"
	"time"

	"github.com/scholarpost/paperbot/internal/domain"
)

// Compile-time interface verification.
var (
	_ SessionRepository = (*MemorySessionRepository)(nil)
	_ UsageRepository   = (*MemoryUsageRepository)(nil)
)

// MemorySessionRepository is a mutex-guarded in-memory SessionRepository.
// It backs tests and single-process deployments that run without Postgres.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[int64]*domain.Session
}

// NewMemorySessionRepository creates an empty in-memory session store.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[int64]*domain.Session)}
}

// Load returns a copy of the stored session, creating a default one on
// first contact.
func (r *MemorySessionRepository) Load(_ context.Context, userID int64) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[userID]
	if !ok {
		stored = domain.NewSession(userID)
		r.sessions[userID] = stored
	}

	clone := *stored
	return &clone, nil
}

// Save stores a copy of the session.
func (r *MemorySessionRepository) Save(_ context.Context, session *domain.Session) error {
	if session == nil {
		return domain.NewValidationError("session", "session cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *session
	clone.UpdatedAt = time.Now().UTC()
	r.sessions[session.UserID] = &clone
	return nil
}

// MemoryUsageRepository is a mutex-guarded in-memory UsageRepository.
type MemoryUsageRepository struct {
	mu      sync.RWMutex
	records []*domain.UsageRecord
}

// NewMemoryUsageRepository creates an empty in-memory ledger.
func NewMemoryUsageRepository() *MemoryUsageRepository {
	return &MemoryUsageRepository{}
}

// Record appends a copy of the record to the ledger.
func (r *MemoryUsageRepository) Record(_ context.Context, record *domain.UsageRecord) error {
	if record == nil {
		return domain.NewValidationError("record", "record cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *record
	r.records = append(r.records, &clone)
	return nil
}

// BytesUsedSince sums download bytes for the user from the given instant.
func (r *MemoryUsageRepository) BytesUsedSince(_ context.Context, userID int64, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, rec := range r.records {
		if rec.UserID == userID && rec.Kind == domain.UsageKindDownload && !rec.OccurredAt.Before(since) {
			total += rec.SizeBytes
		}
	}
	return total, nil
}

// DownloadsInWindow reports the download count and total bytes across all
// users within [start, end).
func (r *MemoryUsageRepository) DownloadsInWindow(_ context.Context, start, end time.Time) (int64, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count, total int64
	for _, rec := range r.records {
		if rec.Kind == domain.UsageKindDownload && !rec.OccurredAt.Before(start) && rec.OccurredAt.Before(end) {
			count++
			total += rec.SizeBytes
		}
	}
	return count, total, nil
}

// CountSince counts ledger entries of the given kind since the given instant.
func (r *MemoryUsageRepository) CountSince(_ context.Context, userID int64, kind domain.UsageKind, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, rec := range r.records {
		if rec.UserID == userID && rec.Kind == kind && !rec.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}
