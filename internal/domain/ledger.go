package domain

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Kind identifies one of the three ledger record categories produced by a
// cashbox export.
type Kind string

const (
	KindPunishment  Kind = "punishments"
	KindDue         Kind = "dues"
	KindTransaction Kind = "transactions"
)

// ParseKind maps the kind token used in cashbox filenames to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "punishments":
		return KindPunishment, nil
	case "dues":
		return KindDue, nil
	case "transactions":
		return KindTransaction, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// Kinds lists all ledger kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindPunishment, KindDue, KindTransaction}
}

// Payment status tokens carried by due exports. STATUS_EXEMPT is treated as
// effectively paid by downstream consumers.
const (
	StatusPaid   = "STATUS_PAID"
	StatusUnpaid = "STATUS_UNPAID"
	StatusExempt = "STATUS_EXEMPT"
)

// DefaultCurrency is used when an export row leaves the currency column blank.
const DefaultCurrency = "EUR"

// Team is a reference row created on first sighting in an import.
type Team struct {
	ID   int64
	Name string
}

// User is resolved by name; the persisted key is a surrogate id but name is
// the natural key for resolution.
type User struct {
	ID     int64
	Name   string
	TeamID int64
}

// LedgerEntry is the normalized record produced by import. Amount is in major
// currency units (source cents divided by 100). PaidDate and PaidStatus are
// only meaningful for punishments and dues; PaidStatus only for dues.
type LedgerEntry struct {
	Kind     Kind
	UserID   int64
	UserName string // resolved to UserID by the identity resolver
	TeamID   int64
	TeamName string

	CreatedDate  civil.Date
	Reason       string
	Archived     bool
	Amount       decimal.Decimal
	Currency     string
	Subject      string
	SearchParams string

	PaidDate   *civil.Date
	PaidStatus string
}

// ImportSummary reports what one run loaded, per kind plus skipped files.
type ImportSummary struct {
	RunID      string
	Files      int
	Skipped    int
	RowsByKind map[Kind]int
}

// TotalRows sums the per-kind row counts.
func (s *ImportSummary) TotalRows() int {
	n := 0
	for _, c := range s.RowsByKind {
		n += c
	}
	return n
}
