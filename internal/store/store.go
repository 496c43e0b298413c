// Package store defines the ledger persistence contract used by the import
// pipeline. A Store hands out one RunTx per import run; every read and write
// the run performs goes through that RunTx so the whole run either commits or
// leaves no trace.
package store

import (
	"context"

	"github.com/tkrause/balance-up/internal/domain"
)

// Store opens run-scoped transactions against the ledger tables.
type Store interface {
	BeginRun(ctx context.Context) (RunTx, error)
}

// RunTx is the single transaction owned by one import run. Identity lookups,
// truncation and batch inserts all execute inside it; nothing is visible to
// other connections until Commit.
type RunTx interface {
	// Users returns a name → id snapshot of all existing user rows.
	Users(ctx context.Context) (map[string]int64, error)

	// Teams returns an id → name snapshot of all existing team rows.
	Teams(ctx context.Context) (map[int64]string, error)

	// EnsureTeam inserts the team if its id is not present yet.
	EnsureTeam(ctx context.Context, id int64, name string) error

	// FindUser looks a user up by name. The second return is false when no
	// row exists.
	FindUser(ctx context.Context, name string) (int64, bool, error)

	// CreateUser inserts a user row and returns its assigned id.
	CreateUser(ctx context.Context, name string, teamID int64) (int64, error)

	// Truncate removes all rows of the kind's table. Each import run calls
	// this once per kind before loading, making the run a full replacement.
	Truncate(ctx context.Context, kind domain.Kind) error

	// InsertEntries bulk-inserts one batch of normalized entries.
	InsertEntries(ctx context.Context, kind domain.Kind, entries []*domain.LedgerEntry) error

	Commit() error
	Rollback() error
}
