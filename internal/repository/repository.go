// Package repository provides data access interfaces and implementations
// for the paper bot.
//
// Two stores exist: SessionRepository holds one durable conversational
// state row per user, and UsageRepository is the append-only traffic
// ledger behind quota enforcement. Both follow the repository pattern so
// the orchestrator can run against PostgreSQL in production and in-memory
// doubles in tests.
//
// All implementations are safe for concurrent use; the underlying pgxpool
// handles connection pooling and synchronization. Methods return
// domain-specific errors (domain.ErrNotFound, domain.ErrStoreUnavailable)
// and wrap database errors with fmt.Errorf %w.
package repository

import (
	"github.com/scholarpost/paperbot/internal/database"
)

// DBTX is the database interface supporting both pool and transaction
// contexts. Repositories accept it in their constructors so the same code
// runs against a pool, a transaction, or pgxmock.
type DBTX = database.DBTX
