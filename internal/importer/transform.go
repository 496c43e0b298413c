package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/tkrause/balance-up/internal/domain"
)

const (
	// Export dates arrive as DD-MM-YYYY; the dues payment date is the one
	// column already in ISO form.
	dateFormatExport = "02-01-2006"
	dateFormatISO    = "2006-01-02"

	// systemUser is the placeholder for transactions whose subject does not
	// name a user.
	systemUser = "SYSTEM"

	maxSearchParams = 500
)

// FieldWarning is a recoverable per-field problem: the field got a safe
// default and the row was kept.
type FieldWarning struct {
	Field   string
	Message string
}

// RowOutcome is the result of transforming one canonical row. Err is fatal
// for the entire run; Warnings are logged and processing continues. Exactly
// one of Entry and Err is set.
type RowOutcome struct {
	Entry    *domain.LedgerEntry
	Warnings []FieldWarning
	Err      error
}

// Transformer converts canonical rows into typed ledger entries. The clock is
// injectable because exempt dues without a payment date are stamped with
// today's date.
type Transformer struct {
	today func() civil.Date
}

// NewTransformer returns a Transformer using the real clock.
func NewTransformer() *Transformer {
	return &Transformer{today: func() civil.Date { return civil.DateOf(time.Now()) }}
}

// NewTransformerAt returns a Transformer with a fixed notion of "today".
func NewTransformerAt(today civil.Date) *Transformer {
	return &Transformer{today: func() civil.Date { return today }}
}

// Row applies the kind-specific typing and business rules to one canonical
// row.
func (t *Transformer) Row(kind domain.Kind, row map[string]string) RowOutcome {
	var warnings []FieldWarning
	warn := func(field, format string, args ...interface{}) {
		warnings = append(warnings, FieldWarning{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	entry := &domain.LedgerEntry{Kind: kind, Currency: domain.DefaultCurrency}

	teamID, err := strconv.ParseInt(strings.TrimSpace(row[fieldTeamID]), 10, 64)
	if err != nil {
		return fatal(fieldTeamID, "unparsable team id %q", row[fieldTeamID])
	}
	entry.TeamID = teamID
	entry.TeamName = strings.TrimSpace(row[fieldTeamName])

	created, err := parseDate(row[fieldCreated], dateFormatExport)
	if err != nil {
		return fatal(fieldCreated, "unparsable created date %q", row[fieldCreated])
	}
	entry.CreatedDate = created

	if kind == domain.KindTransaction {
		// Transactions carry no user column; the name hides in the subject.
		subject := row[fieldSubject]
		if name := userFromSubject(subject); name != "" {
			entry.UserName = name
		} else {
			entry.UserName = systemUser
		}
		if reason := strings.TrimSpace(row[fieldReason]); reason != "" {
			entry.Reason = reason
		} else {
			entry.Reason = strings.TrimSpace(subject)
		}
	} else {
		name := strings.TrimSpace(row[fieldUser])
		if name == "" {
			return fatal(fieldUser, "missing user name")
		}
		entry.UserName = name
		entry.Reason = strings.TrimSpace(row[fieldReason])
	}

	if raw := strings.TrimSpace(row[fieldAmount]); raw != "" {
		cents, err := decimal.NewFromString(raw)
		if err != nil {
			warn(fieldAmount, "unparsable amount %q, defaulting to 0", raw)
		} else {
			// Source amounts are integer minor units.
			entry.Amount = cents.Shift(-2)
		}
	}

	if currency := strings.TrimSpace(row[fieldCurrency]); currency != "" {
		entry.Currency = currency
	}
	entry.Subject = strings.TrimSpace(row[fieldSubject])

	if params := row[fieldSearch]; len([]rune(params)) > maxSearchParams {
		warn(fieldSearch, "search params longer than %d characters, truncated", maxSearchParams)
		entry.SearchParams = string([]rune(params)[:maxSearchParams])
	} else {
		entry.SearchParams = params
	}

	switch kind {
	case domain.KindPunishment:
		entry.Archived = isArchived(row[fieldArchived])
		if raw := strings.TrimSpace(row[fieldPaidDate]); raw != "" {
			paid, err := parseDate(raw, dateFormatExport)
			if err != nil {
				warn(fieldPaidDate, "unparsable paid date %q, treating as unpaid", raw)
			} else {
				entry.PaidDate = &paid
			}
		}

	case domain.KindDue:
		entry.Archived = isArchived(row[fieldArchived])
		entry.PaidDate = t.duePaidDate(row, warn)
		if status := strings.TrimSpace(row[fieldUserPaid]); status != "" {
			entry.PaidStatus = status
		} else {
			entry.PaidStatus = domain.StatusUnpaid
		}
	}

	if entry.PaidDate != nil && entry.PaidDate.Before(entry.CreatedDate) {
		warn(fieldPaidDate, "paid date %s before created date %s, treating as unpaid",
			entry.PaidDate, entry.CreatedDate)
		entry.PaidDate = nil
	}

	return RowOutcome{Entry: entry, Warnings: warnings}
}

// duePaidDate combines the dues status token with the payment date column:
// exempt members count as paid from the payment date (or today), paid members
// from the recorded payment date, everyone else stays open.
func (t *Transformer) duePaidDate(row map[string]string, warn func(string, string, ...interface{})) *civil.Date {
	var payment *civil.Date
	if raw := strings.TrimSpace(row[fieldPaymentDate]); raw != "" {
		d, err := parseDate(raw, dateFormatISO)
		if err != nil {
			warn(fieldPaymentDate, "unparsable payment date %q, ignoring", raw)
		} else {
			payment = &d
		}
	}

	switch strings.TrimSpace(row[fieldUserPaid]) {
	case domain.StatusExempt:
		if payment != nil {
			return payment
		}
		today := t.today()
		return &today
	case domain.StatusPaid:
		return payment
	}
	return nil
}

func fatal(field, format string, args ...interface{}) RowOutcome {
	return RowOutcome{Err: fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...))}
}

func parseDate(value, layout string) (civil.Date, error) {
	parsed, err := time.Parse(layout, strings.TrimSpace(value))
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(parsed), nil
}

// isArchived reports whether the archived column holds the literal YES token;
// anything else, including blanks and typos, means not archived.
func isArchived(value string) bool {
	return strings.ToUpper(strings.TrimSpace(value)) == "YES"
}

// userFromSubject extracts a user name from a transaction subject of the form
// "...: <name> (...". Returns "" when the subject does not match.
func userFromSubject(subject string) string {
	parts := strings.Split(subject, ": ")
	if len(parts) < 2 {
		return ""
	}
	name, _, found := strings.Cut(parts[1], " (")
	if !found {
		return ""
	}
	return strings.TrimSpace(name)
}
