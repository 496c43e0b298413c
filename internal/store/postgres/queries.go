package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// UserAccount is the read model behind "cli users": one user with unpaid and
// paid punishment totals. Exempt dues count as paid.
type UserAccount struct {
	UserID int64
	Name   string
	TeamID int64
	Unpaid decimal.Decimal
	Paid   decimal.Decimal
}

// UnpaidTotal aggregates open punishments for one user.
type UnpaidTotal struct {
	Name   string
	Count  int64
	Amount decimal.Decimal
}

// ListUsers returns all users with their punishment balance, highest unpaid
// total first.
func (s *LedgerStore) ListUsers(ctx context.Context) ([]UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			u.user_id,
			u.user_name,
			u.team_id,
			COALESCE(SUM(p.penalty_amount) FILTER (WHERE p.penalty_paid_date IS NULL), 0),
			COALESCE(SUM(p.penalty_amount) FILTER (WHERE p.penalty_paid_date IS NOT NULL), 0)
		FROM users u
		LEFT JOIN punishments p ON p.user_id = u.user_id AND NOT p.penalty_archived
		GROUP BY u.user_id, u.user_name, u.team_id
		ORDER BY 4 DESC, u.user_name
	`)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: query: %w", err)
	}
	defer rows.Close()

	var accounts []UserAccount
	for rows.Next() {
		var a UserAccount
		if err := rows.Scan(&a.UserID, &a.Name, &a.TeamID, &a.Unpaid, &a.Paid); err != nil {
			return nil, fmt.Errorf("ListUsers: scan: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListUsers: rows: %w", err)
	}
	return accounts, nil
}

// UnpaidPunishments summarizes open, non-archived punishments per user.
func (s *LedgerStore) UnpaidPunishments(ctx context.Context) ([]UnpaidTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.user_name, COUNT(*), SUM(p.penalty_amount)
		FROM punishments p
		JOIN users u ON u.user_id = p.user_id
		WHERE p.penalty_paid_date IS NULL
		  AND NOT p.penalty_archived
		GROUP BY u.user_name
		ORDER BY SUM(p.penalty_amount) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("UnpaidPunishments: query: %w", err)
	}
	defer rows.Close()

	var totals []UnpaidTotal
	for rows.Next() {
		var t UnpaidTotal
		if err := rows.Scan(&t.Name, &t.Count, &t.Amount); err != nil {
			return nil, fmt.Errorf("UnpaidPunishments: scan: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("UnpaidPunishments: rows: %w", err)
	}
	return totals, nil
}
