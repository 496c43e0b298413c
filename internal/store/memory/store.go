// Package memory is an in-memory implementation of store.Store. Writes are
// staged per run and only become visible on Commit, which is what lets the
// importer tests exercise the all-or-nothing run semantics without postgres.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/tkrause/balance-up/internal/domain"
	"github.com/tkrause/balance-up/internal/store"
)

// LedgerStore holds the committed ledger state.
type LedgerStore struct {
	mu         sync.Mutex
	users      map[string]int64
	teams      map[int64]string
	entries    map[domain.Kind][]*domain.LedgerEntry
	nextUserID int64
}

// NewLedgerStore creates an empty in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		users:      make(map[string]int64),
		teams:      make(map[int64]string),
		entries:    make(map[domain.Kind][]*domain.LedgerEntry),
		nextUserID: 1,
	}
}

// BeginRun snapshots the committed state into a staged view.
func (s *LedgerStore) BeginRun(ctx context.Context) (store.RunTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &runTx{
		store:      s,
		users:      make(map[string]int64, len(s.users)),
		teams:      make(map[int64]string, len(s.teams)),
		entries:    make(map[domain.Kind][]*domain.LedgerEntry, len(s.entries)),
		nextUserID: s.nextUserID,
	}
	for name, id := range s.users {
		tx.users[name] = id
	}
	for id, name := range s.teams {
		tx.teams[id] = name
	}
	for kind, rows := range s.entries {
		tx.entries[kind] = append([]*domain.LedgerEntry(nil), rows...)
	}
	return tx, nil
}

// Entries returns the committed rows of one kind.
func (s *LedgerStore) Entries(kind domain.Kind) []*domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.LedgerEntry(nil), s.entries[kind]...)
}

// Users returns a copy of the committed name → id map.
func (s *LedgerStore) Users() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make(map[string]int64, len(s.users))
	for name, id := range s.users {
		users[name] = id
	}
	return users
}

// Teams returns a copy of the committed id → name map.
func (s *LedgerStore) Teams() map[int64]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams := make(map[int64]string, len(s.teams))
	for id, name := range s.teams {
		teams[id] = name
	}
	return teams
}

type runTx struct {
	store      *LedgerStore
	users      map[string]int64
	teams      map[int64]string
	entries    map[domain.Kind][]*domain.LedgerEntry
	nextUserID int64
	done       bool
}

func (r *runTx) Users(ctx context.Context) (map[string]int64, error) {
	users := make(map[string]int64, len(r.users))
	for name, id := range r.users {
		users[name] = id
	}
	return users, nil
}

func (r *runTx) Teams(ctx context.Context) (map[int64]string, error) {
	teams := make(map[int64]string, len(r.teams))
	for id, name := range r.teams {
		teams[id] = name
	}
	return teams, nil
}

func (r *runTx) EnsureTeam(ctx context.Context, id int64, name string) error {
	if _, exists := r.teams[id]; !exists {
		r.teams[id] = name
	}
	return nil
}

func (r *runTx) FindUser(ctx context.Context, name string) (int64, bool, error) {
	id, ok := r.users[name]
	return id, ok, nil
}

func (r *runTx) CreateUser(ctx context.Context, name string, teamID int64) (int64, error) {
	id := r.nextUserID
	r.nextUserID++
	r.users[name] = id
	return id, nil
}

func (r *runTx) Truncate(ctx context.Context, kind domain.Kind) error {
	r.entries[kind] = nil
	return nil
}

func (r *runTx) InsertEntries(ctx context.Context, kind domain.Kind, entries []*domain.LedgerEntry) error {
	r.entries[kind] = append(r.entries[kind], entries...)
	return nil
}

// Commit publishes the staged state into the store.
func (r *runTx) Commit() error {
	if r.done {
		return errors.New("memory: transaction already finished")
	}
	r.done = true

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.users = r.users
	r.store.teams = r.teams
	r.store.entries = r.entries
	r.store.nextUserID = r.nextUserID
	return nil
}

// Rollback discards the staged state.
func (r *runTx) Rollback() error {
	if r.done {
		return nil
	}
	r.done = true
	return nil
}

// Compile-time check: LedgerStore implements store.Store.
var _ store.Store = (*LedgerStore)(nil)
