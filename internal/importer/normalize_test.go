package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrause/balance-up/internal/domain"
)

func TestNormalizeRowAliasEquivalence(t *testing.T) {
	aliases := aliasTable(domain.KindPunishment)

	correct := normalizeRow(aliases, map[string]string{
		"penalty_created": "26-11-2024",
		"penalty_user":    "Alice",
		"penalty_amount":  "15000",
		"team_id":         "7",
	})
	misspelled := normalizeRow(aliases, map[string]string{
		"penatly_created": "26-11-2024",
		"penatly_user":    "Alice",
		"penatly_amount":  "15000",
		"team_id":         "7",
	})

	assert.Equal(t, correct, misspelled)
	assert.Equal(t, "Alice", correct[fieldUser])
	assert.Equal(t, "26-11-2024", correct[fieldCreated])
}

func TestNormalizeRowLegacyNames(t *testing.T) {
	tests := []struct {
		name   string
		kind   domain.Kind
		source string
		field  string
	}{
		{"username maps to user", domain.KindPunishment, "username", fieldUser},
		{"penalty_name maps to reason", domain.KindPunishment, "penalty_name", fieldReason},
		{"user_payment_date maps to paid date", domain.KindPunishment, "user_payment_date", fieldPaidDate},
		{"due_name maps to reason", domain.KindDue, "due_name", fieldReason},
		{"dues user_payment_date maps to payment date", domain.KindDue, "user_payment_date", fieldPaymentDate},
		{"transaction_date maps to created", domain.KindTransaction, "transaction_date", fieldCreated},
		{"transaction_name maps to reason", domain.KindTransaction, "transaction_name", fieldReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := normalizeRow(aliasTable(tt.kind), map[string]string{tt.source: "value"})
			assert.Equal(t, "value", row[tt.field])
		})
	}
}

func TestNormalizeRowPassthrough(t *testing.T) {
	row := normalizeRow(aliasTable(domain.KindDue), map[string]string{
		"team_id":       "3",
		"team_name":     "Seniors",
		"search_params": "q=x",
		"user_paid":     "STATUS_PAID",
		"oddball":       "kept",
	})

	assert.Equal(t, "3", row[fieldTeamID])
	assert.Equal(t, "Seniors", row[fieldTeamName])
	assert.Equal(t, "q=x", row[fieldSearch])
	assert.Equal(t, "STATUS_PAID", row[fieldUserPaid])
	assert.Equal(t, "kept", row["oddball"])
}

func TestNormalizeRowDoesNotModifyInput(t *testing.T) {
	raw := map[string]string{"penalty_user": "Bob"}
	_ = normalizeRow(aliasTable(domain.KindPunishment), raw)

	require.Len(t, raw, 1)
	assert.Equal(t, "Bob", raw["penalty_user"])
}
