package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/scholarpost/paperbot/internal/domain"
)

// Compile-time interface verification.
var _ UsageRepository = (*PgUsageRepository)(nil)

// PgUsageRepository is a PostgreSQL implementation of UsageRepository.
type PgUsageRepository struct {
	db DBTX
}

// NewPgUsageRepository creates a new PostgreSQL usage repository.
func NewPgUsageRepository(db DBTX) *PgUsageRepository {
	return &PgUsageRepository{db: db}
}

// Record appends a usage record. The ledger is insert-only: there is no
// corresponding update or delete path.
func (r *PgUsageRepository) Record(ctx context.Context, record *domain.UsageRecord) error {
	if record == nil {
		return domain.NewValidationError("record", "record cannot be nil")
	}
	if record.Kind != domain.UsageKindSearch && record.Kind != domain.UsageKindDownload {
		return domain.NewValidationError("kind", fmt.Sprintf("unknown usage kind %q", record.Kind))
	}
	if record.SizeBytes < 0 {
		return domain.NewValidationError("size_bytes", "size cannot be negative")
	}

	query := `
		INSERT INTO usage_records (id, user_id, kind, occurred_at, source_url, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.Kind,
		record.OccurredAt,
		record.SourceURL,
		record.SizeBytes,
	)
	if err != nil {
		return fmt.Errorf("%w: record usage: %w", domain.ErrStoreUnavailable, err)
	}

	return nil
}

// BytesUsedSince sums download bytes for the user from the given instant.
func (r *PgUsageRepository) BytesUsedSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(size_bytes), 0)
		FROM usage_records
		WHERE user_id = $1 AND kind = $2 AND occurred_at >= $3`

	var total int64
	err := r.db.QueryRow(ctx, query, userID, domain.UsageKindDownload, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%w: sum usage: %w", domain.ErrStoreUnavailable, err)
	}

	return total, nil
}

// DownloadsInWindow reports the download count and total bytes across all
// users within [start, end).
func (r *PgUsageRepository) DownloadsInWindow(ctx context.Context, start, end time.Time) (int64, int64, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM usage_records
		WHERE kind = $1 AND occurred_at >= $2 AND occurred_at < $3`

	var count, total int64
	err := r.db.QueryRow(ctx, query, domain.UsageKindDownload, start, end).Scan(&count, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: window report: %w", domain.ErrStoreUnavailable, err)
	}

	return count, total, nil
}

// CountSince counts ledger entries of the given kind since the given instant.
func (r *PgUsageRepository) CountSince(ctx context.Context, userID int64, kind domain.UsageKind, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM usage_records
		WHERE user_id = $1 AND kind = $2 AND occurred_at >= $3`

	var count int64
	err := r.db.QueryRow(ctx, query, userID, kind, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count usage: %w", domain.ErrStoreUnavailable, err)
	}

	return count, nil
}
