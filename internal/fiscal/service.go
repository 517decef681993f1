// Package fiscal implements the fiscal year lifecycle: Open, Closed and
// Reversed, with the closing and reversal entries each transition posts.
package fiscal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/accounts"
	"github.com/cleared-dev/tillbook/internal/id"
	"github.com/cleared-dev/tillbook/internal/journal"
	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/money"
	"github.com/cleared-dev/tillbook/internal/store"
)

// Service is the only write path for the fiscal_years table.
type Service struct {
	log      *zap.Logger
	accounts *accounts.Service
	journal  *journal.Service
	now      func() time.Time
}

// NewService creates a fiscal year Service.
func NewService(log *zap.Logger, accts *accounts.Service, j *journal.Service) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, accounts: accts, journal: j, now: time.Now}
}

// SetClock overrides the time source for closing and reversal timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateParams holds parameters for creating a fiscal year.
type CreateParams struct {
	Name      string
	BeginTime time.Time
	EndTime   time.Time // exclusive
}

// PeriodFor returns the [begin, end) period of the fiscal year that starts in
// startMonth of year.
func PeriodFor(year int, startMonth time.Month) (time.Time, time.Time) {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.January
	}
	begin := time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
	return begin, begin.AddDate(1, 0, 0)
}

// closingTime is the entry time of generated entries: the last instant of
// the period, so they fall inside it.
func closingTime(fy model.FiscalYear) time.Time {
	return fy.EndTime.Add(-time.Millisecond)
}

const yearColumns = `id, name, begin_time, end_time, post_time, closing_journal_entry_ref, reversal_time, reversal_journal_entry_ref, create_time`

func scanYear(r interface{ Scan(...any) error }) (model.FiscalYear, error) {
	var (
		fy                       model.FiscalYear
		beginMs, endMs, createMs int64
		postMs, reversalMs       sql.NullInt64
		closingRef, reversalRef  sql.NullInt64
	)
	err := r.Scan(&fy.ID, &fy.Name, &beginMs, &endMs, &postMs, &closingRef, &reversalMs, &reversalRef, &createMs)
	if err != nil {
		return model.FiscalYear{}, err
	}
	fy.BeginTime = store.FromMillis(beginMs)
	fy.EndTime = store.FromMillis(endMs)
	fy.PostTime = store.TimePtr(postMs)
	fy.ClosingJournalEntryRef = closingRef.Int64
	fy.ReversalTime = store.TimePtr(reversalMs)
	fy.ReversalJournalEntryRef = reversalRef.Int64
	fy.CreateTime = store.FromMillis(createMs)
	return fy, nil
}

// Get returns a fiscal year by id.
func (s *Service) Get(ctx context.Context, tx *store.Tx, yearID int64) (model.FiscalYear, error) {
	fy, err := scanYear(tx.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE id = ?`, yearID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.FiscalYear{}, ledgererr.ErrFiscalYearNotFound.With("%d", yearID)
	}
	if err != nil {
		return model.FiscalYear{}, fmt.Errorf("reading fiscal year %d: %w", yearID, err)
	}
	return fy, nil
}

// List returns every fiscal year ordered by begin time.
func (s *Service) List(ctx context.Context, tx *store.Tx) ([]model.FiscalYear, error) {
	rows, err := tx.Query(ctx, `SELECT `+yearColumns+` FROM fiscal_years ORDER BY begin_time, id`)
	if err != nil {
		return nil, fmt.Errorf("listing fiscal years: %w", err)
	}
	defer rows.Close()

	var years []model.FiscalYear
	for rows.Next() {
		fy, err := scanYear(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning fiscal year: %w", err)
		}
		years = append(years, fy)
	}
	return years, rows.Err()
}

// Containing returns the non-reversed fiscal year whose period contains t.
func (s *Service) Containing(ctx context.Context, tx *store.Tx, t time.Time) (model.FiscalYear, error) {
	ms := store.Millis(t)
	fy, err := scanYear(tx.QueryRow(ctx, `
		SELECT `+yearColumns+` FROM fiscal_years
		WHERE reversal_time IS NULL AND begin_time <= ? AND ? < end_time
		LIMIT 1`, ms, ms))
	if errors.Is(err, sql.ErrNoRows) {
		return model.FiscalYear{}, ledgererr.ErrFiscalYearNotFound.With("no fiscal year contains %s", t.Format(time.RFC3339))
	}
	if err != nil {
		return model.FiscalYear{}, fmt.Errorf("finding fiscal year: %w", err)
	}
	return fy, nil
}

// Create opens a new fiscal year. Its period may not overlap any fiscal year
// that has not been reversed.
func (s *Service) Create(ctx context.Context, tx *store.Tx, p CreateParams) (model.FiscalYear, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.BeginTime.IsZero() || !p.BeginTime.Before(p.EndTime) {
		return model.FiscalYear{}, ledgererr.ErrInvalidPeriod.With("%s to %s", p.BeginTime.Format(time.RFC3339), p.EndTime.Format(time.RFC3339))
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("FY%d", p.BeginTime.Year())
	}

	var other string
	err := tx.QueryRow(ctx, `
		SELECT name FROM fiscal_years
		WHERE reversal_time IS NULL AND begin_time < ? AND ? < end_time
		LIMIT 1`, store.Millis(p.EndTime), store.Millis(p.BeginTime)).Scan(&other)
	switch {
	case err == nil:
		return model.FiscalYear{}, ledgererr.ErrOverlappingFiscalYear.With("%q overlaps %q", p.Name, other)
	case !errors.Is(err, sql.ErrNoRows):
		return model.FiscalYear{}, fmt.Errorf("checking overlap: %w", err)
	}

	yearID, err := tx.Insert(ctx, `
		INSERT INTO fiscal_years (name, begin_time, end_time, create_time)
		VALUES (?, ?, ?, ?)`,
		p.Name, store.Millis(p.BeginTime), store.Millis(p.EndTime), store.Millis(s.now()))
	if err != nil {
		return model.FiscalYear{}, fmt.Errorf("inserting fiscal year: %w", err)
	}

	s.log.Info("fiscal year created", zap.String("name", p.Name), zap.Int64("id", yearID))
	return s.Get(ctx, tx, yearID)
}

// Delete removes an open fiscal year.
func (s *Service) Delete(ctx context.Context, tx *store.Tx, yearID int64) error {
	fy, err := s.Get(ctx, tx, yearID)
	if err != nil {
		return err
	}
	if fy.State() != model.FiscalYearOpen {
		return ledgererr.ErrFiscalYearNotOpen.With("%q is %s", fy.Name, fy.State())
	}
	if _, err := tx.Exec(ctx, `DELETE FROM fiscal_years WHERE id = ?`, yearID); err != nil {
		return fmt.Errorf("deleting fiscal year %d: %w", yearID, err)
	}
	return nil
}

// Activity is the posted movement of one closing account within a period.
type Activity struct {
	AccountCode   int
	NormalBalance model.NormalBalance
	Debit         int64
	Credit        int64
}

// Income returns the account's contribution to net income: credit - debit.
// Revenue contributes positively, expense negatively.
func (a Activity) Income() int64 {
	return a.Credit - a.Debit
}

// PeriodActivity returns the posted activity of every account tagged for
// closing, for lines with entry time in [begin, end).
func (s *Service) PeriodActivity(ctx context.Context, tx *store.Tx, begin, end time.Time) ([]Activity, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.code, a.normal_balance, COALESCE(SUM(p.debit), 0), COALESCE(SUM(p.credit), 0)
		FROM accounts a
		JOIN posted_journal_lines p ON p.account_code = a.code
		WHERE a.code IN (SELECT account_code FROM account_tags WHERE tag IN (?, ?))
		  AND p.entry_time >= ? AND p.entry_time < ?
		GROUP BY a.code, a.normal_balance
		ORDER BY a.code`,
		string(model.TagClosingRevenue), string(model.TagClosingExpense),
		store.Millis(begin), store.Millis(end))
	if err != nil {
		return nil, fmt.Errorf("reading period activity: %w", err)
	}
	defer rows.Close()

	var result []Activity
	for rows.Next() {
		var a Activity
		var normal int
		if err := rows.Scan(&a.AccountCode, &normal, &a.Debit, &a.Credit); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		a.NormalBalance = model.NormalBalance(normal)
		result = append(result, a)
	}
	return result, rows.Err()
}

// ClosingLines builds the lines that zero each account's period activity and
// carry net income to the retained earnings account. It returns the lines
// and net income; retainedEarnings is only consulted when net income is
// non-zero.
func ClosingLines(activity []Activity, retainedEarnings func() (int, error)) ([]journal.LineParams, int64, error) {
	var (
		lines     []journal.LineParams
		netIncome int64
	)
	for _, a := range activity {
		income := a.Income()
		netIncome += income
		switch {
		case income > 0:
			lines = append(lines, journal.LineParams{AccountCode: a.AccountCode, Debit: income, Description: "Close period activity"})
		case income < 0:
			lines = append(lines, journal.LineParams{AccountCode: a.AccountCode, Credit: -income, Description: "Close period activity"})
		}
	}

	if netIncome != 0 {
		code, err := retainedEarnings()
		if err != nil {
			return nil, 0, err
		}
		line := journal.LineParams{AccountCode: code, Description: "Net income"}
		if netIncome > 0 {
			line.Credit = netIncome
		} else {
			line.Debit = -netIncome
		}
		lines = append(lines, line)
	}
	return lines, netIncome, nil
}

// Close requires every entry of the period to be posted, then posts the
// closing entry and marks the year closed.
func (s *Service) Close(ctx context.Context, tx *store.Tx, yearID int64) (model.FiscalYear, error) {
	fy, err := s.Get(ctx, tx, yearID)
	if err != nil {
		return model.FiscalYear{}, err
	}
	if fy.State() != model.FiscalYearOpen {
		return model.FiscalYear{}, ledgererr.ErrFiscalYearNotOpen.With("%q is %s", fy.Name, fy.State())
	}

	drafts, err := tx.Count(ctx, `
		SELECT COUNT(*) FROM journal_entries
		WHERE post_time IS NULL AND entry_time >= ? AND entry_time < ?`,
		store.Millis(fy.BeginTime), store.Millis(fy.EndTime))
	if err != nil {
		return model.FiscalYear{}, err
	}
	if drafts > 0 {
		return model.FiscalYear{}, ledgererr.ErrUnpostedEntriesInPeriod.With("%q has %d draft entries", fy.Name, drafts)
	}

	activity, err := s.PeriodActivity(ctx, tx, fy.BeginTime, fy.EndTime)
	if err != nil {
		return model.FiscalYear{}, err
	}
	lines, netIncome, err := ClosingLines(activity, func() (int, error) {
		re, err := s.accounts.AccountWithTag(ctx, tx, model.TagClosingRetainedEarning)
		return re.Code, err
	})
	if err != nil {
		return model.FiscalYear{}, err
	}

	entry, err := s.journal.Record(ctx, tx, journal.RecordParams{
		EntryTime: closingTime(fy),
		Note:      fmt.Sprintf("Closing of fiscal year %s", fy.Name),
		Source:    model.SourceFiscalYearClosing,
		Lines:     lines,
	})
	if err != nil {
		return model.FiscalYear{}, fmt.Errorf("posting closing entry: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE fiscal_years SET post_time = ?, closing_journal_entry_ref = ? WHERE id = ?`,
		store.Millis(s.now()), entry.Ref, yearID)
	if err != nil {
		return model.FiscalYear{}, fmt.Errorf("closing fiscal year %d: %w", yearID, err)
	}

	s.log.Info("fiscal year closed",
		zap.String("name", fy.Name),
		zap.String("closing_entry", id.FormatEntryRef(entry.Ref)),
		zap.String("net_income", money.Format(netIncome)),
	)
	return s.Get(ctx, tx, yearID)
}

// Reverse posts the mirror of the closing entry and marks the year
// reversed. Every later fiscal year must already be reversed.
func (s *Service) Reverse(ctx context.Context, tx *store.Tx, yearID int64) (model.FiscalYear, error) {
	fy, err := s.Get(ctx, tx, yearID)
	if err != nil {
		return model.FiscalYear{}, err
	}
	if fy.State() != model.FiscalYearClosed {
		return model.FiscalYear{}, ledgererr.ErrFiscalYearNotClosed.With("%q is %s", fy.Name, fy.State())
	}

	later, err := tx.Count(ctx, `SELECT COUNT(*) FROM fiscal_years WHERE begin_time > ? AND reversal_time IS NULL`,
		store.Millis(fy.BeginTime))
	if err != nil {
		return model.FiscalYear{}, err
	}
	if later > 0 {
		return model.FiscalYear{}, ledgererr.ErrDependentFiscalYearExists.With("%d later fiscal years of %q are not reversed", later, fy.Name)
	}

	closing, err := s.journal.Lines(ctx, tx, fy.ClosingJournalEntryRef)
	if err != nil {
		return model.FiscalYear{}, err
	}
	mirror := make([]journal.LineParams, len(closing))
	for i, l := range closing {
		mirror[i] = journal.LineParams{
			AccountCode: l.AccountCode,
			Debit:       l.Credit,
			Credit:      l.Debit,
			Description: "Reverse " + l.Description,
		}
	}

	entry, err := s.journal.Record(ctx, tx, journal.RecordParams{
		EntryTime: closingTime(fy),
		Note:      fmt.Sprintf("Reversal of fiscal year %s closing %s", fy.Name, id.FormatEntryRef(fy.ClosingJournalEntryRef)),
		Source:    model.SourceFiscalYearReversal,
		Lines:     mirror,
	})
	if err != nil {
		return model.FiscalYear{}, fmt.Errorf("posting reversal entry: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE fiscal_years SET reversal_time = ?, reversal_journal_entry_ref = ? WHERE id = ?`,
		store.Millis(s.now()), entry.Ref, yearID)
	if err != nil {
		return model.FiscalYear{}, fmt.Errorf("reversing fiscal year %d: %w", yearID, err)
	}

	s.log.Info("fiscal year reversed",
		zap.String("name", fy.Name),
		zap.String("reversal_entry", id.FormatEntryRef(entry.Ref)),
	)
	return s.Get(ctx, tx, yearID)
}
