package importer

import "github.com/tkrause/balance-up/internal/domain"

// Canonical field names after alias resolution. Source columns not listed in
// a kind's alias table pass through unchanged (team_id, team_name,
// search_params, user_paid).
const (
	fieldCreated     = "created"
	fieldUser        = "user"
	fieldReason      = "reason"
	fieldArchived    = "archived"
	fieldAmount      = "amount"
	fieldCurrency    = "currency"
	fieldSubject     = "subject"
	fieldPaidDate    = "paid_date"
	fieldPaymentDate = "payment_date"
	fieldUserPaid    = "user_paid"
	fieldTeamID      = "team_id"
	fieldTeamName    = "team_name"
	fieldSearch      = "search_params"
)

// canonicalFields maps each kind's canonical field to every source spelling
// the club-management tool has been seen to export, including the "penatly"
// misspelling and legacy names like "username". Declared canonical-first for
// readability; lookup happens through the inverted tables below.
var canonicalFields = map[domain.Kind]map[string][]string{
	domain.KindPunishment: {
		fieldCreated:  {"penalty_created", "penatly_created"},
		fieldUser:     {"penalty_user", "penatly_user", "username"},
		fieldReason:   {"penalty_reason", "penatly_reason", "penalty_name"},
		fieldArchived: {"penalty_archived", "penatly_archived"},
		fieldPaidDate: {"penalty_paid", "penatly_paid", "user_payment_date"},
		fieldAmount:   {"penalty_amount", "penatly_amount"},
		fieldCurrency: {"penalty_currency", "penatly_currency"},
		fieldSubject:  {"penalty_subject", "penatly_subject"},
	},
	domain.KindDue: {
		fieldCreated:     {"due_created"},
		fieldUser:        {"due_user", "username"},
		fieldReason:      {"due_reason", "due_name"},
		fieldArchived:    {"due_archived"},
		fieldPaidDate:    {"due_paid"},
		fieldPaymentDate: {"user_payment_date"},
		fieldAmount:      {"due_amount"},
		fieldCurrency:    {"due_currency"},
		fieldSubject:     {"due_subject"},
	},
	domain.KindTransaction: {
		fieldCreated:  {"transaction_created", "transaction_date"},
		fieldUser:     {"transaction_user", "username"},
		fieldReason:   {"transaction_reason", "transaction_name"},
		fieldAmount:   {"transaction_amount"},
		fieldCurrency: {"transaction_currency"},
		fieldSubject:  {"transaction_subject"},
	},
}

// aliasTables is the inverted lookup (source column → canonical field),
// built once at package init rather than per row.
var aliasTables = func() map[domain.Kind]map[string]string {
	tables := make(map[domain.Kind]map[string]string, len(canonicalFields))
	for kind, fields := range canonicalFields {
		table := make(map[string]string)
		for canonical, aliases := range fields {
			for _, alias := range aliases {
				table[alias] = canonical
			}
		}
		tables[kind] = table
	}
	return tables
}()

// aliasTable returns the source → canonical column table for a kind.
func aliasTable(kind domain.Kind) map[string]string {
	return aliasTables[kind]
}

// normalizeRow maps a raw CSV row to canonical field names using the kind's
// alias table. Unknown columns are kept under their original name. The
// transform is pure; the input map is not modified.
func normalizeRow(aliases map[string]string, raw map[string]string) map[string]string {
	row := make(map[string]string, len(raw))
	for key, value := range raw {
		if canonical, ok := aliases[key]; ok {
			key = canonical
		}
		row[key] = value
	}
	return row
}
