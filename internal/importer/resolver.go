package importer

import (
	"context"
	"fmt"

	"github.com/tkrause/balance-up/internal/store"
)

// identityResolver maps team and user references to stable ids. Its caches
// are scoped to one run transaction and die with it; nothing survives across
// runs.
type identityResolver struct {
	tx    store.RunTx
	users map[string]int64 // user name → id
	teams map[int64]string // team id → name
}

// newIdentityResolver snapshots the existing users and teams into run-scoped
// caches.
func newIdentityResolver(ctx context.Context, tx store.RunTx) (*identityResolver, error) {
	users, err := tx.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("newIdentityResolver: loading users: %w", err)
	}
	teams, err := tx.Teams(ctx)
	if err != nil {
		return nil, fmt.Errorf("newIdentityResolver: loading teams: %w", err)
	}
	return &identityResolver{tx: tx, users: users, teams: teams}, nil
}

// resolveTeam inserts the team on first sighting and records it in the cache.
func (r *identityResolver) resolveTeam(ctx context.Context, id int64, name string) error {
	if _, seen := r.teams[id]; seen {
		return nil
	}
	if err := r.tx.EnsureTeam(ctx, id, name); err != nil {
		return fmt.Errorf("resolveTeam %d: %w", id, err)
	}
	r.teams[id] = name
	return nil
}

// resolveUser returns the id for a user name, creating the user row on first
// sighting. Cache → store lookup → insert, so at most one row is created per
// distinct name per run.
func (r *identityResolver) resolveUser(ctx context.Context, name string, teamID int64) (int64, error) {
	if id, ok := r.users[name]; ok {
		return id, nil
	}

	id, found, err := r.tx.FindUser(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("resolveUser %q: %w", name, err)
	}
	if !found {
		id, err = r.tx.CreateUser(ctx, name, teamID)
		if err != nil {
			return 0, fmt.Errorf("resolveUser %q: creating: %w", name, err)
		}
	}
	r.users[name] = id
	return id, nil
}
