package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrause/balance-up/internal/domain"
	"github.com/tkrause/balance-up/internal/events"
	"github.com/tkrause/balance-up/internal/logger"
	"github.com/tkrause/balance-up/internal/store/memory"
)

var runClock = time.Date(2024, time.December, 1, 10, 0, 0, 0, time.UTC)

func testContext() context.Context {
	return logger.WithContext(context.Background(), zerolog.Nop())
}

func newTestImporter(st *memory.LedgerStore, opts ...Option) *Importer {
	opts = append([]Option{WithClock(func() time.Time { return runClock })}, opts...)
	return New(st, opts...)
}

const punishmentsExport = "penalty_created;penalty_user;penalty_reason;penalty_archived;penalty_amount;penalty_subject;penalty_paid;team_id;team_name\n" +
	"26-11-2024;Alice;Late to training;NO;15000;Penalty: Alice (November);;7;First Team\n" +
	"27-11-2024;Bob;Forgot kit;YES;5000;Penalty: Bob (November);28-11-2024;7;First Team\n"

const duesExport = "due_created;due_user;due_reason;due_amount;user_paid;user_payment_date;team_id;team_name\n" +
	"01-10-2024;Alice;Membership 2024;12000;STATUS_PAID;2024-10-15;7;First Team\n" +
	"01-10-2024;Carol;Membership 2024;12000;STATUS_EXEMPT;;7;First Team\n"

func TestRunImportsPunishments(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "cashbox-punishments-26-11-2024-120000.csv", punishmentsExport)

	st := memory.NewLedgerStore()
	imp := newTestImporter(st)

	summary, err := imp.RunDir(testContext(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 2, summary.RowsByKind[domain.KindPunishment])
	assert.NotEmpty(t, summary.RunID)

	entries := st.Entries(domain.KindPunishment)
	require.Len(t, entries, 2)

	alice := entries[0]
	assert.Equal(t, "Alice", alice.UserName)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.November, Day: 26}, alice.CreatedDate)
	assert.True(t, alice.Amount.Equal(decimal.RequireFromString("150.00")))
	assert.False(t, alice.Archived)
	assert.Nil(t, alice.PaidDate)

	bob := entries[1]
	assert.True(t, bob.Archived)
	require.NotNil(t, bob.PaidDate)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.November, Day: 28}, *bob.PaidDate)

	// Both users landed on team 7, which was created on first sight.
	users := st.Users()
	assert.Len(t, users, 2)
	assert.Equal(t, map[int64]string{7: "First Team"}, st.Teams())

	// The processed file was archived under the date-stamped name.
	assert.NoFileExists(t, filepath.Join(dir, "cashbox-punishments-26-11-2024-120000.csv"))
	assert.FileExists(t, filepath.Join(dir, "20241201_punishments.csv"))
}

func TestRunExemptDueIsPaidToday(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "cashbox-dues-01-10-2024-090000.csv", duesExport)

	st := memory.NewLedgerStore()
	imp := newTestImporter(st)

	_, err := imp.RunDir(testContext(), dir)
	require.NoError(t, err)

	entries := st.Entries(domain.KindDue)
	require.Len(t, entries, 2)

	paid := entries[0]
	require.NotNil(t, paid.PaidDate)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.October, Day: 15}, *paid.PaidDate)
	assert.Equal(t, domain.StatusPaid, paid.PaidStatus)

	exempt := entries[1]
	require.NotNil(t, exempt.PaidDate)
	assert.Equal(t, civil.DateOf(runClock), *exempt.PaidDate)
	assert.Equal(t, domain.StatusExempt, exempt.PaidStatus)
}

func TestRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	st := memory.NewLedgerStore()
	imp := newTestImporter(st)

	writeTestFile(t, dir, "cashbox-punishments-26-11-2024-120000.csv", punishmentsExport)
	_, err := imp.RunDir(testContext(), dir)
	require.NoError(t, err)

	usersAfterFirst := st.Users()

	// The same export arrives again under a fresh timestamped name.
	writeTestFile(t, dir, "cashbox-punishments-26-11-2024-130000.csv", punishmentsExport)
	_, err = imp.RunDir(testContext(), dir)
	require.NoError(t, err)

	assert.Len(t, st.Entries(domain.KindPunishment), 2, "reload must not duplicate rows")
	assert.Equal(t, usersAfterFirst, st.Users(), "user identities must be stable across reloads")
}

func TestRunTruncateReplacesPreviousLoad(t *testing.T) {
	dir := t.TempDir()
	st := memory.NewLedgerStore()
	imp := newTestImporter(st)

	writeTestFile(t, dir, "cashbox-punishments-26-11-2024-120000.csv", punishmentsExport)
	_, err := imp.RunDir(testContext(), dir)
	require.NoError(t, err)
	require.Len(t, st.Entries(domain.KindPunishment), 2)

	smaller := "penalty_created;penalty_user;penalty_amount;team_id;team_name\n" +
		"30-11-2024;Alice;1000;7;First Team\n"
	writeTestFile(t, dir, "cashbox-punishments-30-11-2024-120000.csv", smaller)
	_, err = imp.RunDir(testContext(), dir)
	require.NoError(t, err)

	entries := st.Entries(domain.KindPunishment)
	require.Len(t, entries, 1)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.November, Day: 30}, entries[0].CreatedDate)
}

func TestRunAbortsAtomically(t *testing.T) {
	dir := t.TempDir()
	st := memory.NewLedgerStore()
	imp := newTestImporter(st)

	// A successful first run establishes committed state.
	writeTestFile(t, dir, "cashbox-dues-01-10-2024-090000.csv", duesExport)
	_, err := imp.RunDir(testContext(), dir)
	require.NoError(t, err)
	require.Len(t, st.Entries(domain.KindDue), 2)

	// The next run has a good dues file and a punishments file with an
	// unparsable created date; nothing from either may land.
	older := writeTestFile(t, dir, "cashbox-dues-02-10-2024-090000.csv", duesExport)
	bad := "penalty_created;penalty_user;penalty_amount;team_id;team_name\n" +
		"26-11-2024;Alice;15000;7;First Team\n" +
		"not-a-date;Bob;5000;7;First Team\n"
	newer := writeTestFile(t, dir, "cashbox-punishments-26-11-2024-120000.csv", bad)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, base, base))
	require.NoError(t, os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)))

	_, err = imp.RunDir(testContext(), dir)
	require.Error(t, err)

	// Prior committed state survives untouched, including the truncate of
	// the dues table that the failed run performed inside its transaction.
	assert.Len(t, st.Entries(domain.KindDue), 2)
	assert.Empty(t, st.Entries(domain.KindPunishment))

	// Neither input file was archived.
	assert.FileExists(t, older)
	assert.FileExists(t, newer)
}

func TestRunDeduplicatesUsersAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	st := memory.NewLedgerStore()
	imp := newTestImporter(st)

	writeTestFile(t, dir, "cashbox-punishments-26-11-2024-120000.csv", punishmentsExport)
	writeTestFile(t, dir, "cashbox-dues-01-10-2024-090000.csv", duesExport)

	_, err := imp.RunDir(testContext(), dir)
	require.NoError(t, err)

	// Alice appears in both files but exists exactly once.
	users := st.Users()
	assert.Len(t, users, 3) // Alice, Bob, Carol
	aliceID := users["Alice"]

	for _, kind := range []domain.Kind{domain.KindPunishment, domain.KindDue} {
		for _, e := range st.Entries(kind) {
			if e.UserName == "Alice" {
				assert.Equal(t, aliceID, e.UserID)
			}
		}
	}
}

func TestRunTransactionsUseSubjectOrSystemUser(t *testing.T) {
	dir := t.TempDir()
	st := memory.NewLedgerStore()
	imp := newTestImporter(st)

	export := "transaction_created;transaction_subject;transaction_amount;team_id;team_name\n" +
		"05-06-2024;Fine: Alice (March);500;1;Board\n" +
		"06-06-2024;Monthly settlement;-2000;1;Board\n"
	writeTestFile(t, dir, "cashbox-transactions-05-06-2024-120000.csv", export)

	_, err := imp.RunDir(testContext(), dir)
	require.NoError(t, err)

	entries := st.Entries(domain.KindTransaction)
	require.Len(t, entries, 2)
	assert.Equal(t, "Alice", entries[0].UserName)
	assert.Equal(t, systemUser, entries[1].UserName)
	assert.Equal(t, "Monthly settlement", entries[1].Reason)
}

func TestRunFileSkipsUnclassifiable(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "random.csv", "foo;bar\n1;2\n")

	st := memory.NewLedgerStore()
	imp := newTestImporter(st)

	summary, err := imp.RunFile(testContext(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Files)
	assert.Equal(t, 1, summary.Skipped)
	assert.FileExists(t, path)
}

func TestRunEmptyDirectory(t *testing.T) {
	st := memory.NewLedgerStore()
	imp := newTestImporter(st)

	summary, err := imp.RunDir(testContext(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Files)
	assert.Equal(t, 0, summary.TotalRows())
}

type publisherFunc func(ctx context.Context, event events.ImportCompleted) error

func (f publisherFunc) PublishImportCompleted(ctx context.Context, event events.ImportCompleted) error {
	return f(ctx, event)
}

func TestRunPublishesEventAfterCommit(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "cashbox-punishments-26-11-2024-120000.csv", punishmentsExport)

	var published []events.ImportCompleted
	pub := publisherFunc(func(ctx context.Context, event events.ImportCompleted) error {
		published = append(published, event)
		return nil
	})

	st := memory.NewLedgerStore()
	imp := newTestImporter(st, WithPublisher(pub))

	summary, err := imp.RunDir(testContext(), dir)
	require.NoError(t, err)

	require.Len(t, published, 1)
	assert.Equal(t, summary.RunID, published[0].RunID)
	assert.Equal(t, 1, published[0].Files)
	assert.Equal(t, map[string]int{"punishments": 2}, published[0].Rows)
}

func TestRunDoesNotPublishOnFailure(t *testing.T) {
	dir := t.TempDir()
	bad := "penalty_created;penalty_user;penalty_amount;team_id;team_name\n" +
		"not-a-date;Alice;15000;7;First Team\n"
	writeTestFile(t, dir, "cashbox-punishments-26-11-2024-120000.csv", bad)

	published := 0
	pub := publisherFunc(func(ctx context.Context, event events.ImportCompleted) error {
		published++
		return nil
	})

	imp := newTestImporter(memory.NewLedgerStore(), WithPublisher(pub))
	_, err := imp.RunDir(testContext(), dir)
	require.Error(t, err)
	assert.Zero(t, published)
}
