package repository

import (
	"context"
	"time"

	"github.com/scholarpost/paperbot/internal/domain"
)

// UsageRepository is the append-only traffic ledger. Records are never
// updated or deleted; quota checks are recomputed from the stored rows.
type UsageRepository interface {
	// Record appends a usage record to the ledger.
	Record(ctx context.Context, record *domain.UsageRecord) error

	// BytesUsedSince sums the download bytes the user has consumed at or
	// after the given instant.
	BytesUsedSince(ctx context.Context, userID int64, since time.Time) (int64, error)

	// CountSince returns the number of ledger entries of the given kind
	// for the user at or after the given instant.
	CountSince(ctx context.Context, userID int64, kind domain.UsageKind, since time.Time) (int64, error)

	// DownloadsInWindow reports the download count and total bytes across
	// all users within [start, end).
	DownloadsInWindow(ctx context.Context, start, end time.Time) (count int64, totalBytes int64, err error)
}
