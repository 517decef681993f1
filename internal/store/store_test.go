package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tables := []string{
		"accounts",
		"account_tags",
		"journal_entries",
		"journal_entry_lines",
		"fiscal_years",
		"reconciliation_sessions",
		"reconciliation_statement_items",
		"cash_count_history",
		"daily_revenue",
	}
	for _, table := range tables {
		rs, err := db.Execute(ctx, `SELECT COUNT(*) AS n FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		require.NoError(t, err)
		assert.EqualValues(t, 1, rs.Value(0, "n"), "table %s should exist", table)
	}

	for _, view := range []string{"posted_journal_lines", "trial_balance_lines"} {
		rs, err := db.Execute(ctx, `SELECT COUNT(*) AS n FROM sqlite_master WHERE type = 'view' AND name = ?`, view)
		require.NoError(t, err)
		assert.EqualValues(t, 1, rs.Value(0, "n"), "view %s should exist", view)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, db.Path())
	require.NoError(t, db.Close())
}

func TestExecute_RejectsWrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Execute(ctx, `UPDATE accounts SET balance = 100`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledgererr.ErrInvalidStatement))
	assert.Equal(t, ledgererr.KindValidation, ledgererr.KindOf(err))
}

func TestIsReadStatement(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"SELECT * FROM accounts", true},
		{"  select code, update_time from accounts;", true},
		{"-- list\nSELECT 1", true},
		{"WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"VALUES (1)", true},
		{"DELETE FROM accounts", false},
		{"INSERT INTO accounts VALUES (1)", false},
		{"WITH t AS (SELECT 1) DELETE FROM accounts", false},
		{"SELECT 1; DELETE FROM accounts", false},
		{"PRAGMA foreign_keys = off", false},
		{"SELECT replace(name, 'a', 'b') FROM accounts", true},
		{"SELECT * FROM accounts WHERE name = 'Update'", true},
		{"SELECT * FROM accounts WHERE name = 'a;b'", true},
		{"SELECT * FROM accounts WHERE name = 'it''s; delete'", true},
		{`SELECT "delete" FROM t`, true},
		{"SELECT 1 /* ; drop table accounts */", true},
		{"SELECT 1 -- ; delete\n", true},
		{"WITH t AS (SELECT 1) REPLACE INTO accounts SELECT * FROM t", false},
		{"SELECT 'x'; DELETE FROM accounts", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsReadStatement(tt.stmt), "IsReadStatement(%q)", tt.stmt)
	}
}

func insertAccount(ctx context.Context, tx *Tx, code int) error {
	now := Millis(time.Now())
	_, err := tx.Exec(ctx, `INSERT INTO accounts (code, name, normal_balance, create_time, update_time) VALUES (?, 'Cash', 0, ?, ?)`, code, now, now)
	return err
}

func TestUpdate_CommitsAndRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Update(ctx, func(tx *Tx) error {
		return insertAccount(ctx, tx, 1000)
	}))

	boom := errors.New("boom")
	err := db.Update(ctx, func(tx *Tx) error {
		if err := insertAccount(ctx, tx, 1010); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rs, err := db.Execute(ctx, `SELECT code FROM accounts ORDER BY code`)
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.EqualValues(t, 1000, rs.Value(0, "code"))
}

func TestUpdate_RollsBackOnPanic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = db.Update(ctx, func(tx *Tx) error {
			require.NoError(t, insertAccount(ctx, tx, 1000))
			panic("boom")
		})
	})

	rs, err := db.Execute(ctx, `SELECT COUNT(*) AS n FROM accounts`)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rs.Value(0, "n"))
}

func TestReadTransaction_RejectsWrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.View(ctx, func(tx *Tx) error {
		assert.Equal(t, ModeRead, tx.Mode())
		return insertAccount(ctx, tx, 1000)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledgererr.ErrReadOnlyTransaction))
}

func TestBegin_ManualCommit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin(ctx, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, insertAccount(ctx, tx, 1000))

	rs, err := tx.Execute(ctx, `SELECT name FROM accounts WHERE code = ?`, 1000)
	require.NoError(t, err)
	assert.Equal(t, "Cash", rs.Value(0, "name"))

	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), ledgererr.ErrTransactionDone)
	assert.NoError(t, tx.Rollback())

	_, err = tx.Exec(ctx, `DELETE FROM accounts`)
	assert.ErrorIs(t, err, ledgererr.ErrTransactionDone)

	var n int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n)
	assert.ErrorIs(t, err, ledgererr.ErrTransactionDone)
}

// seedPostedEntry inserts account 1000 tagged as cash, a posted entry 1 and a
// draft entry 2, each with one line.
func seedPostedEntry(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.Update(ctx, func(tx *Tx) error {
		if err := insertAccount(ctx, tx, 1000); err != nil {
			return err
		}
		now := Millis(time.Now())
		stmts := []struct {
			stmt string
			args []any
		}{
			{`INSERT INTO account_tags (account_code, tag) VALUES (1000, 'Cash and cash equivalents')`, nil},
			{`INSERT INTO journal_entries (ref, entry_time, create_time) VALUES (1, ?, ?), (2, ?, ?)`, []any{now, now, now, now}},
			{`INSERT INTO journal_entry_lines (journal_entry_ref, line_number, account_code, debit) VALUES (1, 1, 1000, 500), (2, 1, 1000, 700)`, nil},
			{`UPDATE journal_entries SET post_time = ? WHERE ref = 1`, []any{now}},
		}
		for _, st := range stmts {
			if _, err := tx.Exec(ctx, st.stmt, st.args...); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestSchemaTriggers_GuardPostedEntries(t *testing.T) {
	db := openTestDB(t)
	seedPostedEntry(t, db)
	ctx := context.Background()

	rejected := []string{
		`UPDATE journal_entries SET note = 'edited' WHERE ref = 1`,
		`UPDATE journal_entries SET post_time = NULL WHERE ref = 1`,
		`DELETE FROM journal_entries WHERE ref = 1`,
		`INSERT INTO journal_entry_lines (journal_entry_ref, line_number, account_code, credit) VALUES (1, 2, 1000, 500)`,
		`UPDATE journal_entry_lines SET debit = 1 WHERE journal_entry_ref = 1`,
		`UPDATE journal_entry_lines SET journal_entry_ref = 1, line_number = 9 WHERE journal_entry_ref = 2`,
		`DELETE FROM journal_entry_lines WHERE journal_entry_ref = 1`,
	}
	for _, stmt := range rejected {
		err := db.Update(ctx, func(tx *Tx) error {
			_, err := tx.Exec(ctx, stmt)
			return err
		})
		assert.ErrorIs(t, err, ledgererr.ErrPostedEntryImmutable, stmt)
		assert.Equal(t, ledgererr.KindInvariant, ledgererr.KindOf(err), stmt)
	}

	// Drafts stay editable.
	allowed := []string{
		`UPDATE journal_entries SET note = 'edited' WHERE ref = 2`,
		`INSERT INTO journal_entry_lines (journal_entry_ref, line_number, account_code, credit) VALUES (2, 2, 1000, 700)`,
		`UPDATE journal_entry_lines SET debit = 800 WHERE journal_entry_ref = 2 AND line_number = 1`,
		`DELETE FROM journal_entry_lines WHERE journal_entry_ref = 2`,
		`DELETE FROM journal_entries WHERE ref = 2`,
	}
	for _, stmt := range allowed {
		err := db.Update(ctx, func(tx *Tx) error {
			_, err := tx.Exec(ctx, stmt)
			return err
		})
		assert.NoError(t, err, stmt)
	}

	rs, err := db.Execute(ctx, `SELECT debit FROM journal_entry_lines WHERE journal_entry_ref = 1`)
	require.NoError(t, err)
	assert.EqualValues(t, 500, rs.Value(0, "debit"))
}

func TestSchemaTriggers_TagsAreImmutable(t *testing.T) {
	db := openTestDB(t)
	seedPostedEntry(t, db)
	ctx := context.Background()

	err := db.Update(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, `UPDATE account_tags SET tag = 'Current Asset' WHERE account_code = 1000`)
		return err
	})
	assert.ErrorIs(t, err, ledgererr.ErrImmutableTag)

	require.NoError(t, db.Update(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM account_tags WHERE account_code = 1000`)
		return err
	}))
}

func TestReadSnapshot_DoesNotSeeUncommittedWrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	wtx, err := db.Begin(ctx, ModeWrite)
	require.NoError(t, err)
	defer wtx.Rollback()
	require.NoError(t, insertAccount(ctx, wtx, 1000))

	rs, err := db.Execute(ctx, `SELECT COUNT(*) AS n FROM accounts`)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rs.Value(0, "n"))
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 123456789, time.UTC)
	got := FromMillis(Millis(ts))
	assert.Equal(t, Truncate(ts), got)
	assert.Equal(t, time.UTC, got.Location())

	assert.Nil(t, TimePtr(NullMillis(nil)))
	p := TimePtr(NullMillis(&ts))
	require.NotNil(t, p)
	assert.True(t, p.Equal(Truncate(ts)))

	assert.False(t, NullInt(0).Valid)
	assert.True(t, NullInt(7).Valid)
}
