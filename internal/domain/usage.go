package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsageKind distinguishes ledger entry types.
type UsageKind string

// Usage kinds.
const (
	// UsageKindSearch records one executed search.
	UsageKindSearch UsageKind = "search"

	// UsageKindDownload records one delivered document.
	UsageKindDownload UsageKind = "download"
)

// UsageRecord is an append-only ledger entry. Rows are never mutated after
// insert; quotas are always recomputed by summing them.
type UsageRecord struct {
	// ID is the record's primary key.
	ID uuid.UUID

	// UserID is the messaging platform's user identifier.
	UserID int64

	// Kind is the entry type.
	Kind UsageKind

	// OccurredAt is when the event happened.
	OccurredAt time.Time

	// SourceURL is the document URL for download entries, empty for searches.
	SourceURL string

	// SizeBytes is the transferred byte count for download entries.
	SizeBytes int64
}

// NewSearchRecord builds a search ledger entry for userID.
func NewSearchRecord(userID int64) *UsageRecord {
	return &UsageRecord{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       UsageKindSearch,
		OccurredAt: time.Now().UTC(),
	}
}

// NewDownloadRecord builds a download ledger entry for userID.
func NewDownloadRecord(userID int64, sourceURL string, sizeBytes int64) *UsageRecord {
	return &UsageRecord{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       UsageKindDownload,
		OccurredAt: time.Now().UTC(),
		SourceURL:  sourceURL,
		SizeBytes:  sizeBytes,
	}
}

// StartOfDay returns midnight UTC of t's calendar day, the lower bound of
// the daily quota window.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
