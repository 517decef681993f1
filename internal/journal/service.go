// Package journal is the draft/post lifecycle of journal entries and the
// only write path for journal_entries, journal_entry_lines, the running
// account balances and the daily revenue rollup.
package journal

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
	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/money"
	"github.com/cleared-dev/tillbook/internal/store"
)

// DayFormat keys the daily revenue rollup.
const DayFormat = "2006-01-02"

// Service provides the journal commands. Every method runs inside the
// caller's transaction.
type Service struct {
	log      *zap.Logger
	accounts *accounts.Service
	now      func() time.Time
}

// NewService creates a journal Service.
func NewService(log *zap.Logger, accts *accounts.Service) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, accounts: accts, now: time.Now}
}

// SetClock overrides the time source used for create and post timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateParams holds parameters for creating a draft entry.
type CreateParams struct {
	EntryTime time.Time
	Note      string
	Source    model.EntrySource // defaults to manual
}

// UpdateParams holds the mutable header fields of a draft entry.
type UpdateParams struct {
	EntryTime time.Time
	Note      string
}

// LineParams holds parameters for adding or changing a line.
type LineParams struct {
	AccountCode int
	Debit       int64
	Credit      int64
	Description string
}

// RecordParams describes a complete entry to create and post at once.
type RecordParams struct {
	EntryTime time.Time
	Note      string
	Source    model.EntrySource
	Lines     []LineParams
}

// ListFilter narrows List. Zero fields are ignored.
type ListFilter struct {
	From        time.Time // entry_time >= From
	To          time.Time // entry_time < To
	Posted      *bool
	Source      model.EntrySource
	AccountCode int
	Limit       int
}

const entryColumns = `ref, entry_time, post_time, note, source, create_time`

func scanEntry(r interface{ Scan(...any) error }) (model.JournalEntry, error) {
	var (
		e                 model.JournalEntry
		entryMs, createMs int64
		postMs            sql.NullInt64
		source            string
	)
	if err := r.Scan(&e.Ref, &entryMs, &postMs, &e.Note, &source, &createMs); err != nil {
		return model.JournalEntry{}, err
	}
	e.EntryTime = store.FromMillis(entryMs)
	e.PostTime = store.TimePtr(postMs)
	e.Source = model.EntrySource(source)
	e.CreateTime = store.FromMillis(createMs)
	return e, nil
}

// entry loads a header without lines.
func (s *Service) entry(ctx context.Context, tx *store.Tx, ref int64) (model.JournalEntry, error) {
	row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE ref = ?`, ref)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.JournalEntry{}, ledgererr.ErrEntryNotFound.With("%s", id.FormatEntryRef(ref))
	}
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("reading entry %d: %w", ref, err)
	}
	return e, nil
}

// draft loads a header and fails if it is posted.
func (s *Service) draft(ctx context.Context, tx *store.Tx, ref int64) (model.JournalEntry, error) {
	e, err := s.entry(ctx, tx, ref)
	if err != nil {
		return model.JournalEntry{}, err
	}
	if e.Posted() {
		return model.JournalEntry{}, ledgererr.ErrPostedEntryImmutable.With("%s", id.FormatEntryRef(ref))
	}
	return e, nil
}

// guardClosedPeriod rejects operator entries dated inside a closed fiscal
// year. Closing and reversal entries are generated inside closed years.
func (s *Service) guardClosedPeriod(ctx context.Context, tx *store.Tx, entryTime time.Time, source model.EntrySource) error {
	if source.Generated() {
		return nil
	}
	var name string
	err := tx.QueryRow(ctx, `
		SELECT name FROM fiscal_years
		WHERE post_time IS NOT NULL AND reversal_time IS NULL
		  AND begin_time <= ? AND ? < end_time
		LIMIT 1`, store.Millis(entryTime), store.Millis(entryTime)).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("checking closed fiscal years: %w", err)
	}
	return ledgererr.ErrFiscalYearClosed.With("%s falls inside fiscal year %q", entryTime.Format(time.RFC3339), name)
}

// Create inserts a draft entry.
func (s *Service) Create(ctx context.Context, tx *store.Tx, p CreateParams) (model.JournalEntry, error) {
	if p.Source == "" {
		p.Source = model.SourceManual
	}
	if !p.Source.Valid() {
		return model.JournalEntry{}, ledgererr.ErrInvalidEntry.With("unknown source %q", p.Source)
	}
	if p.EntryTime.IsZero() {
		return model.JournalEntry{}, ledgererr.ErrInvalidEntry.With("missing entry time")
	}
	if err := s.guardClosedPeriod(ctx, tx, p.EntryTime, p.Source); err != nil {
		return model.JournalEntry{}, err
	}

	ref, err := tx.Insert(ctx, `
		INSERT INTO journal_entries (entry_time, note, source, create_time)
		VALUES (?, ?, ?, ?)`,
		store.Millis(p.EntryTime), p.Note, string(p.Source), store.Millis(s.now()))
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("inserting entry: %w", err)
	}
	return s.entry(ctx, tx, ref)
}

// Update changes the header of a draft entry.
func (s *Service) Update(ctx context.Context, tx *store.Tx, ref int64, p UpdateParams) error {
	e, err := s.draft(ctx, tx, ref)
	if err != nil {
		return err
	}
	if p.EntryTime.IsZero() {
		return ledgererr.ErrInvalidEntry.With("missing entry time")
	}
	if err := s.guardClosedPeriod(ctx, tx, p.EntryTime, e.Source); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE journal_entries SET entry_time = ?, note = ? WHERE ref = ?`,
		store.Millis(p.EntryTime), p.Note, ref)
	if err != nil {
		return fmt.Errorf("updating entry %d: %w", ref, err)
	}
	return nil
}

// lineAccount resolves and guards the target account of a line.
func (s *Service) lineAccount(ctx context.Context, tx *store.Tx, source model.EntrySource, p LineParams) error {
	if err := ValidateLineAmounts(p.Debit, p.Credit); err != nil {
		return err
	}
	acct, err := s.accounts.Get(ctx, tx, p.AccountCode)
	if err != nil {
		return err
	}
	return checkLineAccount(acct, source)
}

// AddLine appends a line to a draft entry.
func (s *Service) AddLine(ctx context.Context, tx *store.Tx, ref int64, p LineParams) (model.JournalLine, error) {
	e, err := s.draft(ctx, tx, ref)
	if err != nil {
		return model.JournalLine{}, err
	}
	if err := s.lineAccount(ctx, tx, e.Source, p); err != nil {
		return model.JournalLine{}, err
	}

	var next int
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(line_number), 0) + 1 FROM journal_entry_lines WHERE journal_entry_ref = ?`, ref).Scan(&next)
	if err != nil {
		return model.JournalLine{}, fmt.Errorf("numbering line of %d: %w", ref, err)
	}

	lineID, err := tx.Insert(ctx, `
		INSERT INTO journal_entry_lines (journal_entry_ref, line_number, account_code, debit, credit, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ref, next, p.AccountCode, p.Debit, p.Credit, p.Description)
	if err != nil {
		return model.JournalLine{}, fmt.Errorf("inserting line: %w", err)
	}

	return model.JournalLine{
		ID:              lineID,
		JournalEntryRef: ref,
		LineNumber:      next,
		AccountCode:     p.AccountCode,
		Debit:           p.Debit,
		Credit:          p.Credit,
		Description:     p.Description,
	}, nil
}

const lineColumns = `id, journal_entry_ref, line_number, account_code, debit, credit, description`

func scanLine(r interface{ Scan(...any) error }) (model.JournalLine, error) {
	var l model.JournalLine
	err := r.Scan(&l.ID, &l.JournalEntryRef, &l.LineNumber, &l.AccountCode, &l.Debit, &l.Credit, &l.Description)
	return l, err
}

// Line returns one line by id.
func (s *Service) Line(ctx context.Context, tx *store.Tx, lineID int64) (model.JournalLine, error) {
	l, err := scanLine(tx.QueryRow(ctx, `SELECT `+lineColumns+` FROM journal_entry_lines WHERE id = ?`, lineID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.JournalLine{}, ledgererr.ErrLineNotFound.With("%d", lineID)
	}
	if err != nil {
		return model.JournalLine{}, fmt.Errorf("reading line %d: %w", lineID, err)
	}
	return l, nil
}

// UpdateLine changes a line of a draft entry.
func (s *Service) UpdateLine(ctx context.Context, tx *store.Tx, lineID int64, p LineParams) error {
	l, err := s.Line(ctx, tx, lineID)
	if err != nil {
		return err
	}
	e, err := s.draft(ctx, tx, l.JournalEntryRef)
	if err != nil {
		return err
	}
	if err := s.lineAccount(ctx, tx, e.Source, p); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE journal_entry_lines SET account_code = ?, debit = ?, credit = ?, description = ?
		WHERE id = ?`, p.AccountCode, p.Debit, p.Credit, p.Description, lineID)
	if err != nil {
		return fmt.Errorf("updating line %d: %w", lineID, err)
	}
	return nil
}

// DeleteLine removes a line from a draft entry.
func (s *Service) DeleteLine(ctx context.Context, tx *store.Tx, lineID int64) error {
	l, err := s.Line(ctx, tx, lineID)
	if err != nil {
		return err
	}
	if _, err := s.draft(ctx, tx, l.JournalEntryRef); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM journal_entry_lines WHERE id = ?`, lineID); err != nil {
		return fmt.Errorf("deleting line %d: %w", lineID, err)
	}
	return nil
}

// Lines returns the lines of an entry in line order.
func (s *Service) Lines(ctx context.Context, tx *store.Tx, ref int64) ([]model.JournalLine, error) {
	rows, err := tx.Query(ctx, `SELECT `+lineColumns+` FROM journal_entry_lines WHERE journal_entry_ref = ? ORDER BY line_number`, ref)
	if err != nil {
		return nil, fmt.Errorf("listing lines of %d: %w", ref, err)
	}
	defer rows.Close()

	var lines []model.JournalLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, tx *store.Tx, ref int64) (model.JournalEntry, error) {
	e, err := s.entry(ctx, tx, ref)
	if err != nil {
		return model.JournalEntry{}, err
	}
	e.Lines, err = s.Lines(ctx, tx, ref)
	if err != nil {
		return model.JournalEntry{}, err
	}
	return e, nil
}

// Post validates a draft and applies it to the running balances. After
// Post the entry and its lines are frozen.
func (s *Service) Post(ctx context.Context, tx *store.Tx, ref int64) error {
	e, err := s.draft(ctx, tx, ref)
	if err != nil {
		return err
	}
	return s.post(ctx, tx, e)
}

func (s *Service) post(ctx context.Context, tx *store.Tx, e model.JournalEntry) error {
	lines, err := s.Lines(ctx, tx, e.Ref)
	if err != nil {
		return err
	}
	if len(lines) == 0 && !e.Source.Generated() {
		return ledgererr.ErrEmptyEntry.With("%s", id.FormatEntryRef(e.Ref))
	}
	if err := ValidateBalance(lines); err != nil {
		return err
	}

	accts := make(map[int]model.Account)
	for _, l := range lines {
		if _, ok := accts[l.AccountCode]; ok {
			continue
		}
		acct, err := s.accounts.Get(ctx, tx, l.AccountCode)
		if err != nil {
			return err
		}
		if err := checkPostingAccount(acct); err != nil {
			return err
		}
		accts[l.AccountCode] = acct
	}

	if err := s.guardClosedPeriod(ctx, tx, e.EntryTime, e.Source); err != nil {
		return err
	}

	balances := make(map[int]int64, len(accts))
	for code, acct := range accts {
		balances[code] = acct.Balance
	}
	for _, l := range lines {
		next, ok := money.Add(balances[l.AccountCode], accts[l.AccountCode].NormalBalance.SignedAmount(l.Debit, l.Credit))
		if !ok {
			return ledgererr.ErrInvalidAmount.With("balance of account %d would overflow", l.AccountCode)
		}
		balances[l.AccountCode] = next
	}

	now := s.now()
	for _, l := range lines {
		delta := accts[l.AccountCode].NormalBalance.SignedAmount(l.Debit, l.Credit)
		_, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance + ?, update_time = ? WHERE code = ?`,
			delta, store.Millis(now), l.AccountCode)
		if err != nil {
			return fmt.Errorf("applying line %d to account %d: %w", l.LineNumber, l.AccountCode, err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE journal_entries SET post_time = ? WHERE ref = ?`, store.Millis(now), e.Ref); err != nil {
		return fmt.Errorf("posting entry %d: %w", e.Ref, err)
	}

	if err := s.rollupRevenue(ctx, tx, e); err != nil {
		return err
	}

	debit, _ := model.JournalEntry{Lines: lines}.Totals()
	s.log.Info("journal entry posted",
		zap.String("ref", id.FormatEntryRef(e.Ref)),
		zap.String("source", string(e.Source)),
		zap.Int("lines", len(lines)),
		zap.String("amount", money.Format(debit)),
	)
	return nil
}

// rollupRevenue adds the entry's net revenue to the daily_revenue row of its
// UTC day. Closing and reversal entries move revenue between accounts and
// are not sales.
func (s *Service) rollupRevenue(ctx context.Context, tx *store.Tx, e model.JournalEntry) error {
	if e.Source.Generated() {
		return nil
	}

	var revenue, n int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.credit - l.debit), 0), COUNT(*)
		FROM journal_entry_lines l
		JOIN account_tags t ON t.account_code = l.account_code AND t.tag = ?
		WHERE l.journal_entry_ref = ?`, string(model.TagRevenue), e.Ref).Scan(&revenue, &n)
	if err != nil {
		return fmt.Errorf("summing revenue of %d: %w", e.Ref, err)
	}
	if n == 0 {
		return nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO daily_revenue (day, revenue, entry_count) VALUES (?, ?, 1)
		ON CONFLICT (day) DO UPDATE SET
			revenue = revenue + excluded.revenue,
			entry_count = entry_count + 1`,
		e.EntryTime.UTC().Format(DayFormat), revenue)
	if err != nil {
		return fmt.Errorf("updating daily revenue: %w", err)
	}
	return nil
}

// ClearPostTime is the only way to un-post an entry, and it always refuses:
// posted entries are corrected with a new offsetting entry. On a draft it
// does nothing.
func (s *Service) ClearPostTime(ctx context.Context, tx *store.Tx, ref int64) error {
	_, err := s.draft(ctx, tx, ref)
	return err
}

// Delete removes a draft entry and its lines.
func (s *Service) Delete(ctx context.Context, tx *store.Tx, ref int64) error {
	if _, err := s.draft(ctx, tx, ref); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM journal_entry_lines WHERE journal_entry_ref = ?`, ref); err != nil {
		return fmt.Errorf("deleting lines of %d: %w", ref, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM journal_entries WHERE ref = ?`, ref); err != nil {
		return fmt.Errorf("deleting entry %d: %w", ref, err)
	}
	return nil
}

// Record creates, fills and posts an entry in one call. It is the path for
// generated entries (closing, reversal, adjustments) and POS sales.
func (s *Service) Record(ctx context.Context, tx *store.Tx, p RecordParams) (model.JournalEntry, error) {
	e, err := s.Create(ctx, tx, CreateParams{EntryTime: p.EntryTime, Note: p.Note, Source: p.Source})
	if err != nil {
		return model.JournalEntry{}, err
	}
	for _, l := range p.Lines {
		if _, err := s.AddLine(ctx, tx, e.Ref, l); err != nil {
			return model.JournalEntry{}, err
		}
	}
	if err := s.post(ctx, tx, e); err != nil {
		return model.JournalEntry{}, err
	}
	return s.Get(ctx, tx, e.Ref)
}

// List returns entry headers matching f, newest reference last.
func (s *Service) List(ctx context.Context, tx *store.Tx, f ListFilter) ([]model.JournalEntry, error) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "entry_time >= ?")
		args = append(args, store.Millis(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "entry_time < ?")
		args = append(args, store.Millis(f.To))
	}
	if f.Posted != nil {
		if *f.Posted {
			where = append(where, "post_time IS NOT NULL")
		} else {
			where = append(where, "post_time IS NULL")
		}
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(f.Source))
	}
	if f.AccountCode != 0 {
		where = append(where, "ref IN (SELECT journal_entry_ref FROM journal_entry_lines WHERE account_code = ?)")
		args = append(args, f.AccountCode)
	}

	stmt := `SELECT ` + entryColumns + ` FROM journal_entries`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY ref"
	if f.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
