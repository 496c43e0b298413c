package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrause/balance-up/internal/domain"
)

func TestRunTxCommitPublishesStagedState(t *testing.T) {
	st := NewLedgerStore()
	ctx := context.Background()

	tx, err := st.BeginRun(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.EnsureTeam(ctx, 7, "First Team"))
	id, err := tx.CreateUser(ctx, "Alice", 7)
	require.NoError(t, err)
	require.NoError(t, tx.InsertEntries(ctx, domain.KindPunishment, []*domain.LedgerEntry{
		{Kind: domain.KindPunishment, UserID: id, UserName: "Alice", TeamID: 7},
	}))

	// Nothing is visible before commit.
	assert.Empty(t, st.Entries(domain.KindPunishment))
	assert.Empty(t, st.Users())

	require.NoError(t, tx.Commit())
	assert.Len(t, st.Entries(domain.KindPunishment), 1)
	assert.Equal(t, map[string]int64{"Alice": id}, st.Users())
}

func TestRunTxRollbackDiscardsStagedState(t *testing.T) {
	st := NewLedgerStore()
	ctx := context.Background()

	tx, err := st.BeginRun(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Truncate(ctx, domain.KindDue))
	_, err = tx.CreateUser(ctx, "Bob", 3)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Empty(t, st.Users())

	// Commit after rollback is rejected.
	assert.Error(t, tx.Commit())
}

func TestRunTxSnapshotsExistingState(t *testing.T) {
	st := NewLedgerStore()
	ctx := context.Background()

	setup, err := st.BeginRun(ctx)
	require.NoError(t, err)
	require.NoError(t, setup.EnsureTeam(ctx, 1, "Board"))
	aliceID, err := setup.CreateUser(ctx, "Alice", 1)
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	tx, err := st.BeginRun(ctx)
	require.NoError(t, err)

	id, found, err := tx.FindUser(ctx, "Alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, aliceID, id)

	users, err := tx.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Alice": aliceID}, users)

	teams, err := tx.Teams(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "Board"}, teams)

	require.NoError(t, tx.Rollback())
}
