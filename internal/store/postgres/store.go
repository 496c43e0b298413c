// Package postgres implements the ledger store on PostgreSQL via database/sql
// and lib/pq. One import run maps to one *sql.Tx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/tkrause/balance-up/internal/domain"
	"github.com/tkrause/balance-up/internal/store"
)

// LedgerStore is the PostgreSQL-backed implementation of store.Store.
type LedgerStore struct {
	db *sql.DB
}

// Open connects to postgres using the given connection string and verifies
// the connection.
func Open(ctx context.Context, databaseURL string) (*LedgerStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres.Open: ping: %w", err)
	}
	return &LedgerStore{db: db}, nil
}

// NewLedgerStore wraps an existing connection pool.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Close releases the underlying connection pool.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}

// BeginRun opens the transaction that will own an entire import run.
func (s *LedgerStore) BeginRun(ctx context.Context) (store.RunTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("BeginRun: %w", err)
	}
	return &runTx{tx: tx}, nil
}

type runTx struct {
	tx *sql.Tx
}

func (r *runTx) Users(ctx context.Context) (map[string]int64, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT user_id, user_name FROM users`)
	if err != nil {
		return nil, fmt.Errorf("Users: query: %w", err)
	}
	defer rows.Close()

	users := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("Users: scan: %w", err)
		}
		users[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Users: rows: %w", err)
	}
	return users, nil
}

func (r *runTx) Teams(ctx context.Context) (map[int64]string, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT team_id, team_name FROM teams`)
	if err != nil {
		return nil, fmt.Errorf("Teams: query: %w", err)
	}
	defer rows.Close()

	teams := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("Teams: scan: %w", err)
		}
		teams[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Teams: rows: %w", err)
	}
	return teams, nil
}

func (r *runTx) EnsureTeam(ctx context.Context, id int64, name string) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO teams (team_id, team_name) VALUES ($1, $2)
		 ON CONFLICT (team_id) DO NOTHING`, id, name)
	if err != nil {
		return fmt.Errorf("EnsureTeam: %w", err)
	}
	return nil
}

func (r *runTx) FindUser(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := r.tx.QueryRowContext(ctx,
		`SELECT user_id FROM users WHERE user_name = $1`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("FindUser: %w", err)
	}
	return id, true, nil
}

func (r *runTx) CreateUser(ctx context.Context, name string, teamID int64) (int64, error) {
	var id int64
	err := r.tx.QueryRowContext(ctx,
		`INSERT INTO users (user_name, team_id) VALUES ($1, $2) RETURNING user_id`,
		name, teamID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreateUser: %w", err)
	}
	return id, nil
}

func (r *runTx) Truncate(ctx context.Context, kind domain.Kind) error {
	table, err := tableFor(kind)
	if err != nil {
		return fmt.Errorf("Truncate: %w", err)
	}
	if _, err := r.tx.ExecContext(ctx, "TRUNCATE "+table+" RESTART IDENTITY"); err != nil {
		return fmt.Errorf("Truncate %s: %w", table, err)
	}
	return nil
}

func (r *runTx) InsertEntries(ctx context.Context, kind domain.Kind, entries []*domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	cols, err := columnsFor(kind)
	if err != nil {
		return fmt.Errorf("InsertEntries: %w", err)
	}
	table, _ := tableFor(kind)

	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString("INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES ")
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		vals := valuesFor(kind, e)
		for j, v := range vals {
			if j > 0 {
				sb.WriteString(", ")
			}
			args = append(args, v)
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteByte(')')
	}

	if _, err := r.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("InsertEntries %s: %w", table, err)
	}
	return nil
}

func (r *runTx) Commit() error {
	return r.tx.Commit()
}

func (r *runTx) Rollback() error {
	return r.tx.Rollback()
}

// tableFor validates the kind against the fixed table set; kinds never reach
// SQL as raw user input.
func tableFor(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindPunishment:
		return "punishments", nil
	case domain.KindDue:
		return "dues", nil
	case domain.KindTransaction:
		return "transactions", nil
	}
	return "", fmt.Errorf("invalid table for kind %q", kind)
}

func columnsFor(kind domain.Kind) ([]string, error) {
	switch kind {
	case domain.KindPunishment:
		return []string{
			"user_id", "team_id", "penalty_created", "penalty_reason",
			"penalty_archived", "penalty_amount", "penalty_currency",
			"penalty_subject", "search_params", "penalty_paid_date",
		}, nil
	case domain.KindDue:
		return []string{
			"user_id", "team_id", "due_created", "due_reason",
			"due_archived", "due_amount", "due_currency",
			"due_subject", "search_params", "due_paid_date", "user_paid",
		}, nil
	case domain.KindTransaction:
		return []string{
			"user_id", "team_id", "transaction_created", "transaction_reason",
			"transaction_amount", "transaction_currency", "transaction_subject",
			"search_params",
		}, nil
	}
	return nil, fmt.Errorf("invalid columns for kind %q", kind)
}

func valuesFor(kind domain.Kind, e *domain.LedgerEntry) []interface{} {
	var paid interface{}
	if e.PaidDate != nil {
		paid = e.PaidDate.In(time.UTC)
	}

	switch kind {
	case domain.KindPunishment:
		return []interface{}{
			e.UserID, e.TeamID, e.CreatedDate.In(time.UTC), e.Reason,
			e.Archived, e.Amount, e.Currency, e.Subject, e.SearchParams, paid,
		}
	case domain.KindDue:
		return []interface{}{
			e.UserID, e.TeamID, e.CreatedDate.In(time.UTC), e.Reason,
			e.Archived, e.Amount, e.Currency, e.Subject, e.SearchParams, paid,
			e.PaidStatus,
		}
	default: // transactions
		return []interface{}{
			e.UserID, e.TeamID, e.CreatedDate.In(time.UTC), e.Reason,
			e.Amount, e.Currency, e.Subject, e.SearchParams,
		}
	}
}

// Compile-time check: LedgerStore implements store.Store.
var _ store.Store = (*LedgerStore)(nil)
