package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/accounts"
	"github.com/cleared-dev/tillbook/internal/journal"
	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

const (
	bank   = 1010
	equity = 3000
	sales  = 4000
	rent   = 5100
	adjust = 5910
)

func day(d int) time.Time { return time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC) }

var (
	marchBegin = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	marchEnd   = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	db        *store.DB
	accounts  *accounts.Service
	journal   *journal.Service
	reconcile *Service
}

// newFixture seeds the default chart and three posted entries on the bank
// account: JE-000001 opening deposit 100.00 in February, JE-000002 sales
// deposit 500.00 and JE-000003 rent 200.00 in March.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	accts := accounts.NewService(nil)
	j := journal.NewService(nil, accts)
	f := &fixture{db: db, accounts: accts, journal: j, reconcile: NewService(nil, accts, j)}

	require.NoError(t, db.Update(ctx, func(tx *store.Tx) error {
		if err := accts.SeedDefaults(ctx, tx, "pos_retail"); err != nil {
			return err
		}
		entries := []journal.RecordParams{
			{EntryTime: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), Lines: []journal.LineParams{{AccountCode: bank, Debit: 10000}, {AccountCode: equity, Credit: 10000}}},
			{EntryTime: day(3), Lines: []journal.LineParams{{AccountCode: bank, Debit: 50000}, {AccountCode: sales, Credit: 50000}}},
			{EntryTime: day(10), Lines: []journal.LineParams{{AccountCode: rent, Debit: 20000}, {AccountCode: bank, Credit: 20000}}},
		}
		for _, e := range entries {
			if _, err := j.Record(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	}))
	return f
}

func (f *fixture) update(fn func(ctx context.Context, tx *store.Tx) error) error {
	ctx := context.Background()
	return f.db.Update(ctx, func(tx *store.Tx) error { return fn(ctx, tx) })
}

func (f *fixture) session(t *testing.T, closing int64, items ...ItemParams) model.ReconciliationSession {
	t.Helper()
	var rs model.ReconciliationSession
	require.NoError(t, f.update(func(ctx context.Context, tx *store.Tx) error {
		var err error
		rs, err = f.reconcile.Create(ctx, tx, CreateParams{
			AccountCode:    bank,
			BeginTime:      marchBegin,
			EndTime:        marchEnd,
			OpeningBalance: 10000,
			ClosingBalance: closing,
			Reference:      "March statement",
		})
		if err != nil {
			return err
		}
		_, err = f.reconcile.AddItems(ctx, tx, rs.ID, items)
		return err
	}))
	return rs
}

func (f *fixture) complete(sessionID int64, p CompleteParams) (model.ReconciliationSession, error) {
	var rs model.ReconciliationSession
	err := f.update(func(ctx context.Context, tx *store.Tx) error {
		var err error
		rs, err = f.reconcile.Complete(ctx, tx, sessionID, p)
		return err
	})
	return rs, err
}

func (f *fixture) items(t *testing.T, sessionID int64) []model.StatementItem {
	t.Helper()
	var items []model.StatementItem
	ctx := context.Background()
	require.NoError(t, f.db.View(ctx, func(tx *store.Tx) error {
		var err error
		items, err = f.reconcile.Items(ctx, tx, sessionID)
		return err
	}))
	return items
}

func (f *fixture) balance(t *testing.T, code int) int64 {
	t.Helper()
	var bal int64
	ctx := context.Background()
	require.NoError(t, f.db.View(ctx, func(tx *store.Tx) error {
		a, err := f.accounts.Get(ctx, tx, code)
		bal = a.Balance
		return err
	}))
	return bal
}

func TestComplete_WithAdjustment(t *testing.T) {
	f := newFixture(t)
	rs := f.session(t, 39500,
		ItemParams{ItemTime: day(3), Description: "DEPOSIT", Amount: 50000},
		ItemParams{ItemTime: day(10), Description: "RENT", Reference: "JE-000003", Amount: -20000},
		ItemParams{ItemTime: day(31), Description: "MONTHLY FEE", Amount: -500},
	)

	done, err := f.complete(rs.ID, CompleteParams{PostAdjustment: true})
	require.NoError(t, err)

	assert.Equal(t, model.ReconciliationCompleted, done.State)
	require.NotNil(t, done.CompleteTime)
	assert.Equal(t, int64(10000), done.InternalOpeningBalance)
	assert.Equal(t, int64(40000), done.InternalClosingBalance)
	assert.Equal(t, int64(-500), done.Discrepancy)
	assert.Equal(t, int64(-500), done.UnmatchedTotal)
	require.NotZero(t, done.AdjustmentJournalEntryRef)

	items := f.items(t, rs.ID)
	require.Len(t, items, 3)
	assert.Equal(t, model.ItemMatched, items[0].Status)
	assert.Equal(t, int64(2), items[0].MatchedJournalEntryRef)
	assert.Equal(t, model.ItemMatched, items[1].Status)
	assert.Equal(t, int64(3), items[1].MatchedJournalEntryRef)
	assert.Equal(t, model.ItemUnmatched, items[2].Status)
	assert.Zero(t, items[2].MatchedJournalEntryRef)

	assert.Equal(t, int64(39500), f.balance(t, bank))
	assert.Equal(t, int64(500), f.balance(t, adjust))

	ctx := context.Background()
	require.NoError(t, f.db.View(ctx, func(tx *store.Tx) error {
		e, err := f.journal.Get(ctx, tx, done.AdjustmentJournalEntryRef)
		require.NoError(t, err)
		assert.Equal(t, model.SourceReconciliationAdjustment, e.Source)
		assert.Equal(t, marchEnd.Add(-time.Millisecond), e.EntryTime)
		return nil
	}))
}

func TestComplete_WithoutAdjustment(t *testing.T) {
	f := newFixture(t)
	rs := f.session(t, 39500)

	done, err := f.complete(rs.ID, CompleteParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(-500), done.Discrepancy)
	assert.Zero(t, done.AdjustmentJournalEntryRef)
	assert.Equal(t, int64(40000), f.balance(t, bank))
}

func TestComplete_ReferenceMustMatch(t *testing.T) {
	f := newFixture(t)
	rs := f.session(t, 40000,
		ItemParams{ItemTime: day(3), Reference: "JE-000099", Amount: 50000},
		ItemParams{ItemTime: day(10), Reference: "3", Amount: -20000},
	)

	_, err := f.complete(rs.ID, CompleteParams{})
	require.NoError(t, err)

	items := f.items(t, rs.ID)
	assert.Equal(t, model.ItemUnmatched, items[0].Status)
	assert.Equal(t, model.ItemMatched, items[1].Status)
}

func TestComplete_Tolerance(t *testing.T) {
	f := newFixture(t)
	rs := f.session(t, 40000, ItemParams{ItemTime: day(3), Amount: 50002})

	_, err := f.complete(rs.ID, CompleteParams{Tolerance: 5})
	require.NoError(t, err)
	assert.Equal(t, model.ItemMatched, f.items(t, rs.ID)[0].Status)
}

func TestCompletedSessionIsReadOnly(t *testing.T) {
	f := newFixture(t)
	rs := f.session(t, 40000, ItemParams{ItemTime: day(3), Amount: 50000})
	_, err := f.complete(rs.ID, CompleteParams{})
	require.NoError(t, err)
	itemID := f.items(t, rs.ID)[0].ID

	ops := map[string]func(ctx context.Context, tx *store.Tx) error{
		"complete": func(ctx context.Context, tx *store.Tx) error {
			_, err := f.reconcile.Complete(ctx, tx, rs.ID, CompleteParams{})
			return err
		},
		"update": func(ctx context.Context, tx *store.Tx) error {
			return f.reconcile.Update(ctx, tx, rs.ID, UpdateParams{BeginTime: marchBegin, EndTime: marchEnd})
		},
		"delete": func(ctx context.Context, tx *store.Tx) error {
			return f.reconcile.Delete(ctx, tx, rs.ID)
		},
		"add item": func(ctx context.Context, tx *store.Tx) error {
			_, err := f.reconcile.AddItem(ctx, tx, rs.ID, ItemParams{ItemTime: day(4), Amount: 1})
			return err
		},
		"update item": func(ctx context.Context, tx *store.Tx) error {
			return f.reconcile.UpdateItem(ctx, tx, itemID, ItemParams{ItemTime: day(4), Amount: 1})
		},
		"remove item": func(ctx context.Context, tx *store.Tx) error {
			return f.reconcile.RemoveItem(ctx, tx, itemID)
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, f.update(op), ledgererr.ErrReconciliationCompleted)
		})
	}
}

func TestCreate_OneDraftPerAccount(t *testing.T) {
	f := newFixture(t)
	rs := f.session(t, 40000)

	err := f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.reconcile.Create(ctx, tx, CreateParams{AccountCode: bank, BeginTime: marchBegin, EndTime: marchEnd})
		return err
	})
	assert.ErrorIs(t, err, ledgererr.ErrDraftReconciliationExists)

	// Another account is independent.
	require.NoError(t, f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.reconcile.Create(ctx, tx, CreateParams{AccountCode: 1000, BeginTime: marchBegin, EndTime: marchEnd})
		return err
	}))

	// Completing frees the account.
	_, err = f.complete(rs.ID, CompleteParams{})
	require.NoError(t, err)
	f.session(t, 40000)
}

func TestCreate_Invalid(t *testing.T) {
	f := newFixture(t)

	err := f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.reconcile.Create(ctx, tx, CreateParams{AccountCode: 9999, BeginTime: marchBegin, EndTime: marchEnd})
		return err
	})
	assert.ErrorIs(t, err, ledgererr.ErrAccountNotFound)

	err = f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.reconcile.Create(ctx, tx, CreateParams{AccountCode: bank, BeginTime: marchEnd, EndTime: marchBegin})
		return err
	})
	assert.ErrorIs(t, err, ledgererr.ErrInvalidPeriod)
}

func TestDraftItemEditing(t *testing.T) {
	f := newFixture(t)
	rs := f.session(t, 40000,
		ItemParams{ItemTime: day(3), Amount: 1},
		ItemParams{ItemTime: day(4), Amount: 2},
	)
	items := f.items(t, rs.ID)

	require.NoError(t, f.update(func(ctx context.Context, tx *store.Tx) error {
		if err := f.reconcile.UpdateItem(ctx, tx, items[0].ID, ItemParams{ItemTime: day(3), Description: "DEPOSIT", Amount: 50000}); err != nil {
			return err
		}
		return f.reconcile.RemoveItem(ctx, tx, items[1].ID)
	}))

	items = f.items(t, rs.ID)
	require.Len(t, items, 1)
	assert.Equal(t, int64(50000), items[0].Amount)
	assert.Equal(t, model.ItemPending, items[0].Status)

	err := f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.reconcile.AddItem(ctx, tx, rs.ID, ItemParams{ItemTime: day(5)})
		return err
	})
	assert.ErrorIs(t, err, ledgererr.ErrInvalidItem)

	err = f.update(func(ctx context.Context, tx *store.Tx) error {
		return f.reconcile.RemoveItem(ctx, tx, 4242)
	})
	assert.ErrorIs(t, err, ledgererr.ErrStatementItemNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	rs := f.session(t, 40000, ItemParams{ItemTime: day(3), Amount: 50000})

	require.NoError(t, f.update(func(ctx context.Context, tx *store.Tx) error {
		return f.reconcile.Delete(ctx, tx, rs.ID)
	}))

	ctx := context.Background()
	require.NoError(t, f.db.View(ctx, func(tx *store.Tx) error {
		_, err := f.reconcile.Get(ctx, tx, rs.ID)
		assert.ErrorIs(t, err, ledgererr.ErrReconciliationNotFound)

		has, err := f.reconcile.HasDraft(ctx, tx, bank)
		require.NoError(t, err)
		assert.False(t, has)

		list, err := f.reconcile.List(ctx, tx, 0)
		require.NoError(t, err)
		assert.Empty(t, list)
		return nil
	}))
}

func TestMatch(t *testing.T) {
	candidates := []Candidate{
		{Ref: 1, Amount: 1000},
		{Ref: 2, Amount: 1000},
		{Ref: 3, Amount: 998},
	}
	items := []model.StatementItem{
		{Amount: 1000},
		{Amount: 1000},
		{Amount: 1000},
		{Amount: 1000},
	}

	got := Match(items, candidates, 2)
	assert.Equal(t, []MatchResult{
		{Status: model.ItemMatched, Ref: 1},
		{Status: model.ItemMatched, Ref: 2},
		{Status: model.ItemMatched, Ref: 3},
		{Status: model.ItemUnmatched},
	}, got)

	got = Match(items[:1], candidates[2:], 1)
	assert.Equal(t, []MatchResult{{Status: model.ItemUnmatched}}, got)
}
