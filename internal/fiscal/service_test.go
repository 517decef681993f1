package fiscal

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
	cash      = 1000
	inventory = 1200
	retained  = 3100
	sales     = 4000
	discounts = 4010
	rent      = 5100
)

type fixture struct {
	db       *store.DB
	accounts *accounts.Service
	journal  *journal.Service
	fiscal   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	accts := accounts.NewService(nil)
	require.NoError(t, db.Update(ctx, func(tx *store.Tx) error {
		return accts.SeedDefaults(ctx, tx, "pos_retail")
	}))
	j := journal.NewService(nil, accts)
	return &fixture{db: db, accounts: accts, journal: j, fiscal: NewService(nil, accts, j)}
}

func (f *fixture) update(fn func(ctx context.Context, tx *store.Tx) error) error {
	ctx := context.Background()
	return f.db.Update(ctx, func(tx *store.Tx) error { return fn(ctx, tx) })
}

func (f *fixture) record(t *testing.T, at time.Time, lines ...journal.LineParams) {
	t.Helper()
	require.NoError(t, f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.journal.Record(ctx, tx, journal.RecordParams{EntryTime: at, Lines: lines})
		return err
	}))
}

func (f *fixture) year(t *testing.T, y int) model.FiscalYear {
	t.Helper()
	var fy model.FiscalYear
	begin, end := PeriodFor(y, time.January)
	require.NoError(t, f.update(func(ctx context.Context, tx *store.Tx) error {
		var err error
		fy, err = f.fiscal.Create(ctx, tx, CreateParams{BeginTime: begin, EndTime: end})
		return err
	}))
	return fy
}

func (f *fixture) close(yearID int64) (model.FiscalYear, error) {
	var fy model.FiscalYear
	err := f.update(func(ctx context.Context, tx *store.Tx) error {
		var err error
		fy, err = f.fiscal.Close(ctx, tx, yearID)
		return err
	})
	return fy, err
}

func (f *fixture) reverse(yearID int64) (model.FiscalYear, error) {
	var fy model.FiscalYear
	err := f.update(func(ctx context.Context, tx *store.Tx) error {
		var err error
		fy, err = f.fiscal.Reverse(ctx, tx, yearID)
		return err
	})
	return fy, err
}

func (f *fixture) balances(t *testing.T) map[int]int64 {
	t.Helper()
	result := make(map[int]int64)
	ctx := context.Background()
	require.NoError(t, f.db.View(ctx, func(tx *store.Tx) error {
		accts, err := f.accounts.List(ctx, tx)
		for _, a := range accts {
			result[a.Code] = a.Balance
		}
		return err
	}))
	return result
}

func dr(code int, amt int64) journal.LineParams {
	return journal.LineParams{AccountCode: code, Debit: amt}
}
func cr(code int, amt int64) journal.LineParams {
	return journal.LineParams{AccountCode: code, Credit: amt}
}

func mid(y int) time.Time { return time.Date(y, 6, 15, 12, 0, 0, 0, time.UTC) }

func TestCreate(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)

	assert.Equal(t, "FY2024", fy.Name)
	assert.Equal(t, model.FiscalYearOpen, fy.State())
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), fy.EndTime)
}

func TestCreate_InvalidPeriod(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, end := range []time.Time{at, at.Add(-time.Hour)} {
		err := f.update(func(ctx context.Context, tx *store.Tx) error {
			_, err := f.fiscal.Create(ctx, tx, CreateParams{BeginTime: at, EndTime: end})
			return err
		})
		assert.ErrorIs(t, err, ledgererr.ErrInvalidPeriod)
	}
}

func TestCreate_Overlap(t *testing.T) {
	f := newFixture(t)
	f.year(t, 2024)

	begin, end := PeriodFor(2024, time.July)
	err := f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.fiscal.Create(ctx, tx, CreateParams{BeginTime: begin, EndTime: end})
		return err
	})
	assert.ErrorIs(t, err, ledgererr.ErrOverlappingFiscalYear)

	// Adjacent periods do not overlap.
	f.year(t, 2025)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)

	f.record(t, mid(2024), dr(cash, 100000), cr(sales, 100000))
	f.record(t, mid(2024), dr(discounts, 5000), cr(cash, 5000))
	f.record(t, mid(2024), dr(rent, 30000), cr(cash, 30000))

	closed, err := f.close(fy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalYearClosed, closed.State())
	require.NotZero(t, closed.ClosingJournalEntryRef)

	bal := f.balances(t)
	assert.Zero(t, bal[sales])
	assert.Zero(t, bal[discounts])
	assert.Zero(t, bal[rent])
	assert.Equal(t, int64(65000), bal[retained], "net income 1000.00 - 50.00 - 300.00")
	assert.Equal(t, int64(65000), bal[cash])

	ctx := context.Background()
	require.NoError(t, f.db.View(ctx, func(tx *store.Tx) error {
		e, err := f.journal.Get(ctx, tx, closed.ClosingJournalEntryRef)
		require.NoError(t, err)
		assert.Equal(t, model.SourceFiscalYearClosing, e.Source)
		assert.Equal(t, fy.EndTime.Add(-time.Millisecond), e.EntryTime)
		assert.Len(t, e.Lines, 4)
		return nil
	}))
}

func TestClose_DoesNotCountTowardDailyRevenue(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)
	f.record(t, mid(2024), dr(cash, 100000), cr(sales, 100000))

	_, err := f.close(fy.ID)
	require.NoError(t, err)

	rs, err := f.db.Execute(context.Background(), `SELECT SUM(revenue) AS revenue, SUM(entry_count) AS n FROM daily_revenue`)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), rs.Value(0, "revenue"))
	assert.Equal(t, int64(1), rs.Value(0, "n"))
}

func TestClose_NetLoss(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)
	f.record(t, mid(2024), dr(rent, 30000), cr(cash, 30000))

	_, err := f.close(fy.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-30000), f.balances(t)[retained])
}

func TestClose_NoActivity(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)

	closed, err := f.close(fy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalYearClosed, closed.State())

	reversed, err := f.reverse(fy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalYearReversed, reversed.State())
}

func TestClose_UnpostedEntries(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)

	require.NoError(t, f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.journal.Create(ctx, tx, journal.CreateParams{EntryTime: mid(2024)})
		return err
	}))

	_, err := f.close(fy.ID)
	assert.ErrorIs(t, err, ledgererr.ErrUnpostedEntriesInPeriod)
	assert.Equal(t, ledgererr.KindStateConflict, ledgererr.KindOf(err))
}

func TestClose_MissingRetainedEarnings(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)
	f.record(t, mid(2024), dr(cash, 100), cr(sales, 100))
	require.NoError(t, f.update(func(ctx context.Context, tx *store.Tx) error {
		return f.accounts.RemoveTag(ctx, tx, retained, model.TagClosingRetainedEarning)
	}))

	_, err := f.close(fy.ID)
	assert.ErrorIs(t, err, ledgererr.ErrTaggedAccountMissing)
	assert.Equal(t, int64(100), f.balances(t)[sales], "failed close leaves balances")
}

func TestClose_Twice(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)
	_, err := f.close(fy.ID)
	require.NoError(t, err)

	_, err = f.close(fy.ID)
	assert.ErrorIs(t, err, ledgererr.ErrFiscalYearNotOpen)
}

func TestCloseThenReverseRestoresBalances(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)
	f.record(t, mid(2024), dr(cash, 100000), cr(sales, 100000))
	f.record(t, mid(2024), dr(rent, 30000), cr(cash, 30000))
	f.record(t, mid(2024), dr(inventory, 12345), cr(cash, 12345))

	before := f.balances(t)

	_, err := f.close(fy.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before, f.balances(t))

	reversed, err := f.reverse(fy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalYearReversed, reversed.State())
	assert.NotZero(t, reversed.ReversalJournalEntryRef)
	assert.Equal(t, before, f.balances(t))

	// A reversed year frees its period.
	f.year(t, 2024)
}

func TestClose_InactiveRevenueAccount(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)
	f.record(t, mid(2024), dr(cash, 50000), cr(sales, 50000))
	f.record(t, mid(2024), dr(rent, 20000), cr(cash, 20000))
	require.NoError(t, f.update(func(ctx context.Context, tx *store.Tx) error {
		if err := f.accounts.SetActive(ctx, tx, sales, false); err != nil {
			return err
		}
		return f.accounts.SetActive(ctx, tx, rent, false)
	}))

	_, err := f.close(fy.ID)
	require.NoError(t, err)
	bal := f.balances(t)
	assert.Zero(t, bal[sales])
	assert.Zero(t, bal[rent])
	assert.Equal(t, int64(30000), bal[retained])

	_, err = f.reverse(fy.ID)
	require.NoError(t, err)
	bal = f.balances(t)
	assert.Equal(t, int64(50000), bal[sales])
	assert.Equal(t, int64(20000), bal[rent])
	assert.Zero(t, bal[retained])

	// Operator entries still cannot use the inactive account.
	err = f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.journal.Record(ctx, tx, journal.RecordParams{EntryTime: mid(2025), Lines: []journal.LineParams{dr(cash, 100), cr(sales, 100)}})
		return err
	})
	assert.ErrorIs(t, err, ledgererr.ErrAccountInactive)
}

func TestReverse_NotClosed(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)

	_, err := f.reverse(fy.ID)
	assert.ErrorIs(t, err, ledgererr.ErrFiscalYearNotClosed)
}

func TestReverse_DependentYears(t *testing.T) {
	f := newFixture(t)
	fy2024 := f.year(t, 2024)
	_, err := f.close(fy2024.ID)
	require.NoError(t, err)

	// An open later year blocks reversal.
	fy2025 := f.year(t, 2025)
	_, err = f.reverse(fy2024.ID)
	assert.ErrorIs(t, err, ledgererr.ErrDependentFiscalYearExists)

	// So does a closed one.
	_, err = f.close(fy2025.ID)
	require.NoError(t, err)
	_, err = f.reverse(fy2024.ID)
	assert.ErrorIs(t, err, ledgererr.ErrDependentFiscalYearExists)

	// Reversing newest first works.
	_, err = f.reverse(fy2025.ID)
	require.NoError(t, err)
	_, err = f.reverse(fy2024.ID)
	require.NoError(t, err)
}

func TestClosedYearBlocksNewEntries(t *testing.T) {
	f := newFixture(t)
	fy := f.year(t, 2024)
	_, err := f.close(fy.ID)
	require.NoError(t, err)

	err = f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.journal.Record(ctx, tx, journal.RecordParams{EntryTime: mid(2024), Lines: []journal.LineParams{dr(cash, 1), cr(sales, 1)}})
		return err
	})
	assert.ErrorIs(t, err, ledgererr.ErrFiscalYearClosed)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	open := f.year(t, 2024)
	closed := f.year(t, 2025)
	_, err := f.close(closed.ID)
	require.NoError(t, err)

	require.NoError(t, f.update(func(ctx context.Context, tx *store.Tx) error {
		return f.fiscal.Delete(ctx, tx, open.ID)
	}))
	err = f.update(func(ctx context.Context, tx *store.Tx) error {
		return f.fiscal.Delete(ctx, tx, closed.ID)
	})
	assert.ErrorIs(t, err, ledgererr.ErrFiscalYearNotOpen)

	err = f.update(func(ctx context.Context, tx *store.Tx) error {
		_, err := f.fiscal.Get(ctx, tx, open.ID)
		return err
	})
	assert.ErrorIs(t, err, ledgererr.ErrFiscalYearNotFound)
}

func TestListAndContaining(t *testing.T) {
	f := newFixture(t)
	f.year(t, 2025)
	f.year(t, 2024)

	ctx := context.Background()
	require.NoError(t, f.db.View(ctx, func(tx *store.Tx) error {
		years, err := f.fiscal.List(ctx, tx)
		require.NoError(t, err)
		require.Len(t, years, 2)
		assert.Equal(t, "FY2024", years[0].Name)

		fy, err := f.fiscal.Containing(ctx, tx, mid(2025))
		require.NoError(t, err)
		assert.Equal(t, "FY2025", fy.Name)

		_, err = f.fiscal.Containing(ctx, tx, mid(2030))
		assert.ErrorIs(t, err, ledgererr.ErrFiscalYearNotFound)
		return nil
	}))
}

func TestClosingLines(t *testing.T) {
	activity := []Activity{
		{AccountCode: sales, NormalBalance: model.NormalCredit, Debit: 1000, Credit: 51000},
		{AccountCode: rent, NormalBalance: model.NormalDebit, Debit: 20000},
		{AccountCode: 5200, NormalBalance: model.NormalDebit, Debit: 500, Credit: 500},
	}
	lines, net, err := ClosingLines(activity, func() (int, error) { return retained, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(30000), net)
	assert.Equal(t, []journal.LineParams{
		{AccountCode: sales, Debit: 50000, Description: "Close period activity"},
		{AccountCode: rent, Credit: 20000, Description: "Close period activity"},
		{AccountCode: retained, Credit: 30000, Description: "Net income"},
	}, lines)
}
