// Package reconcile compares an account's posted ledger activity with an
// external statement. Sessions are drafts until completed, after which they
// are read-only.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

// Service is the only write path for reconciliation sessions and their
// statement items.
type Service struct {
	log      *zap.Logger
	accounts *accounts.Service
	journal  *journal.Service
	now      func() time.Time
}

// NewService creates a reconciliation Service.
func NewService(log *zap.Logger, accts *accounts.Service, j *journal.Service) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, accounts: accts, journal: j, now: time.Now}
}

// SetClock overrides the time source for create and completion timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateParams holds parameters for starting a reconciliation.
type CreateParams struct {
	AccountCode    int
	BeginTime      time.Time
	EndTime        time.Time // exclusive
	OpeningBalance int64     // statement opening balance
	ClosingBalance int64     // statement closing balance
	Reference      string
	Note           string
}

// UpdateParams holds the mutable fields of a draft session.
type UpdateParams struct {
	BeginTime      time.Time
	EndTime        time.Time
	OpeningBalance int64
	ClosingBalance int64
	Reference      string
	Note           string
}

// ItemParams holds the fields of a statement item.
type ItemParams struct {
	ItemTime    time.Time
	Description string
	Reference   string
	Amount      int64 // signed in the account's normal direction
}

// CompleteParams controls matching and the adjustment entry.
type CompleteParams struct {
	Tolerance      int64 // largest amount difference still considered a match
	PostAdjustment bool
}

const sessionColumns = `id, account_code, statement_begin_time, statement_end_time, statement_opening_balance,
	statement_closing_balance, internal_opening_balance, internal_closing_balance, reference, note, state,
	complete_time, unmatched_total, discrepancy, adjustment_journal_entry_ref, create_time`

func scanSession(r interface{ Scan(...any) error }) (model.ReconciliationSession, error) {
	var (
		rs                        model.ReconciliationSession
		beginMs, endMs, createMs  int64
		completeMs, adjustmentRef sql.NullInt64
		state                     string
	)
	err := r.Scan(&rs.ID, &rs.AccountCode, &beginMs, &endMs, &rs.StatementOpeningBalance,
		&rs.StatementClosingBalance, &rs.InternalOpeningBalance, &rs.InternalClosingBalance, &rs.Reference, &rs.Note, &state,
		&completeMs, &rs.UnmatchedTotal, &rs.Discrepancy, &adjustmentRef, &createMs)
	if err != nil {
		return model.ReconciliationSession{}, err
	}
	rs.StatementBeginTime = store.FromMillis(beginMs)
	rs.StatementEndTime = store.FromMillis(endMs)
	rs.State = model.ReconciliationState(state)
	rs.CompleteTime = store.TimePtr(completeMs)
	rs.AdjustmentJournalEntryRef = adjustmentRef.Int64
	rs.CreateTime = store.FromMillis(createMs)
	return rs, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, tx *store.Tx, sessionID int64) (model.ReconciliationSession, error) {
	rs, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM reconciliation_sessions WHERE id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReconciliationSession{}, ledgererr.ErrReconciliationNotFound.With("%d", sessionID)
	}
	if err != nil {
		return model.ReconciliationSession{}, fmt.Errorf("reading reconciliation %d: %w", sessionID, err)
	}
	return rs, nil
}

// List returns sessions for an account (0 = all accounts), newest first.
func (s *Service) List(ctx context.Context, tx *store.Tx, accountCode int) ([]model.ReconciliationSession, error) {
	stmt := `SELECT ` + sessionColumns + ` FROM reconciliation_sessions`
	var args []any
	if accountCode != 0 {
		stmt += ` WHERE account_code = ?`
		args = append(args, accountCode)
	}
	stmt += ` ORDER BY statement_end_time DESC, id DESC`

	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reconciliations: %w", err)
	}
	defer rows.Close()

	var sessions []model.ReconciliationSession
	for rows.Next() {
		rs, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reconciliation: %w", err)
		}
		sessions = append(sessions, rs)
	}
	return sessions, rows.Err()
}

// HasDraft reports whether the account has a draft reconciliation.
func (s *Service) HasDraft(ctx context.Context, tx *store.Tx, accountCode int) (bool, error) {
	n, err := tx.Count(ctx, `SELECT COUNT(*) FROM reconciliation_sessions WHERE account_code = ? AND state = ?`,
		accountCode, string(model.ReconciliationDraft))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Service) draft(ctx context.Context, tx *store.Tx, sessionID int64) (model.ReconciliationSession, error) {
	rs, err := s.Get(ctx, tx, sessionID)
	if err != nil {
		return model.ReconciliationSession{}, err
	}
	if rs.State != model.ReconciliationDraft {
		return model.ReconciliationSession{}, ledgererr.ErrReconciliationCompleted.With("%d", sessionID)
	}
	return rs, nil
}

func validPeriod(begin, end time.Time) error {
	if begin.IsZero() || !begin.Before(end) {
		return ledgererr.ErrInvalidPeriod.With("%s to %s", begin.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}

// Create starts a draft reconciliation. An account has at most one draft.
func (s *Service) Create(ctx context.Context, tx *store.Tx, p CreateParams) (model.ReconciliationSession, error) {
	if _, err := s.accounts.Get(ctx, tx, p.AccountCode); err != nil {
		return model.ReconciliationSession{}, err
	}
	if err := validPeriod(p.BeginTime, p.EndTime); err != nil {
		return model.ReconciliationSession{}, err
	}
	has, err := s.HasDraft(ctx, tx, p.AccountCode)
	if err != nil {
		return model.ReconciliationSession{}, err
	}
	if has {
		return model.ReconciliationSession{}, ledgererr.ErrDraftReconciliationExists.With("account %d", p.AccountCode)
	}

	sessionID, err := tx.Insert(ctx, `
		INSERT INTO reconciliation_sessions (account_code, statement_begin_time, statement_end_time,
			statement_opening_balance, statement_closing_balance, reference, note, state, create_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AccountCode, store.Millis(p.BeginTime), store.Millis(p.EndTime),
		p.OpeningBalance, p.ClosingBalance, p.Reference, p.Note, string(model.ReconciliationDraft), store.Millis(s.now()))
	if err != nil {
		return model.ReconciliationSession{}, fmt.Errorf("inserting reconciliation: %w", err)
	}
	return s.Get(ctx, tx, sessionID)
}

// Update changes the statement fields of a draft session.
func (s *Service) Update(ctx context.Context, tx *store.Tx, sessionID int64, p UpdateParams) error {
	if _, err := s.draft(ctx, tx, sessionID); err != nil {
		return err
	}
	if err := validPeriod(p.BeginTime, p.EndTime); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE reconciliation_sessions
		SET statement_begin_time = ?, statement_end_time = ?, statement_opening_balance = ?,
		    statement_closing_balance = ?, reference = ?, note = ?
		WHERE id = ?`,
		store.Millis(p.BeginTime), store.Millis(p.EndTime), p.OpeningBalance, p.ClosingBalance, p.Reference, p.Note, sessionID)
	if err != nil {
		return fmt.Errorf("updating reconciliation %d: %w", sessionID, err)
	}
	return nil
}

// Delete removes a draft session and its items.
func (s *Service) Delete(ctx context.Context, tx *store.Tx, sessionID int64) error {
	if _, err := s.draft(ctx, tx, sessionID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reconciliation_statement_items WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting items of %d: %w", sessionID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reconciliation_sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting reconciliation %d: %w", sessionID, err)
	}
	return nil
}

// balanceBefore folds the account's posted lines with entry time before t.
func balanceBefore(ctx context.Context, tx *store.Tx, acct model.Account, t time.Time) (int64, error) {
	var debit, credit int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM posted_journal_lines
		WHERE account_code = ? AND entry_time < ?`, acct.Code, store.Millis(t)).Scan(&debit, &credit)
	if err != nil {
		return 0, fmt.Errorf("folding balance of %d: %w", acct.Code, err)
	}
	return acct.NormalBalance.SignedAmount(debit, credit), nil
}

// Complete matches statement items against posted lines, records the
// discrepancy, optionally posts an adjustment entry and freezes the session.
func (s *Service) Complete(ctx context.Context, tx *store.Tx, sessionID int64, p CompleteParams) (model.ReconciliationSession, error) {
	rs, err := s.draft(ctx, tx, sessionID)
	if err != nil {
		return model.ReconciliationSession{}, err
	}
	if p.Tolerance < 0 {
		return model.ReconciliationSession{}, ledgererr.ErrInvalidAmount.With("negative tolerance %s", money.Format(p.Tolerance))
	}
	acct, err := s.accounts.Get(ctx, tx, rs.AccountCode)
	if err != nil {
		return model.ReconciliationSession{}, err
	}

	opening, err := balanceBefore(ctx, tx, acct, rs.StatementBeginTime)
	if err != nil {
		return model.ReconciliationSession{}, err
	}
	closing, err := balanceBefore(ctx, tx, acct, rs.StatementEndTime)
	if err != nil {
		return model.ReconciliationSession{}, err
	}

	candidates, err := s.periodLines(ctx, tx, acct, rs.StatementBeginTime, rs.StatementEndTime)
	if err != nil {
		return model.ReconciliationSession{}, err
	}
	items, err := s.Items(ctx, tx, sessionID)
	if err != nil {
		return model.ReconciliationSession{}, err
	}

	results := Match(items, candidates, p.Tolerance)
	var unmatchedTotal int64
	matched := 0
	for i, item := range items {
		r := results[i]
		if r.Status == model.ItemUnmatched {
			unmatchedTotal += item.Amount
		} else {
			matched++
		}
		_, err := tx.Exec(ctx, `UPDATE reconciliation_statement_items SET status = ?, matched_journal_entry_ref = ? WHERE id = ?`,
			string(r.Status), store.NullInt(r.Ref), item.ID)
		if err != nil {
			return model.ReconciliationSession{}, fmt.Errorf("updating item %d: %w", item.ID, err)
		}
	}

	discrepancy := rs.StatementClosingBalance - closing

	var adjustmentRef int64
	if p.PostAdjustment && discrepancy != 0 {
		adjustmentRef, err = s.postAdjustment(ctx, tx, acct, rs, discrepancy)
		if err != nil {
			return model.ReconciliationSession{}, err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE reconciliation_sessions
		SET state = ?, complete_time = ?, internal_opening_balance = ?, internal_closing_balance = ?,
		    unmatched_total = ?, discrepancy = ?, adjustment_journal_entry_ref = ?
		WHERE id = ?`,
		string(model.ReconciliationCompleted), store.Millis(s.now()), opening, closing,
		unmatchedTotal, discrepancy, store.NullInt(adjustmentRef), sessionID)
	if err != nil {
		return model.ReconciliationSession{}, fmt.Errorf("completing reconciliation %d: %w", sessionID, err)
	}

	s.log.Info("reconciliation completed",
		zap.Int64("id", sessionID),
		zap.Int("account", acct.Code),
		zap.Int("matched", matched),
		zap.Int("unmatched", len(items)-matched),
		zap.String("discrepancy", money.Format(discrepancy)),
	)
	return s.Get(ctx, tx, sessionID)
}

func (s *Service) postAdjustment(ctx context.Context, tx *store.Tx, acct model.Account, rs model.ReconciliationSession, discrepancy int64) (int64, error) {
	adj, err := s.accounts.AccountWithTag(ctx, tx, model.TagReconciliationAdjustment)
	if err != nil {
		return 0, err
	}
	debit, credit := acct.NormalBalance.Sides(discrepancy)
	entry, err := s.journal.Record(ctx, tx, journal.RecordParams{
		EntryTime: rs.StatementEndTime.Add(-time.Millisecond),
		Note:      fmt.Sprintf("Reconciliation %d adjustment", rs.ID),
		Source:    model.SourceReconciliationAdjustment,
		Lines: []journal.LineParams{
			{AccountCode: acct.Code, Debit: debit, Credit: credit, Description: "Statement discrepancy"},
			{AccountCode: adj.Code, Debit: credit, Credit: debit, Description: "Statement discrepancy"},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("posting reconciliation adjustment: %w", err)
	}
	return entry.Ref, nil
}

// Candidate is a posted line a statement item may match.
type Candidate struct {
	Ref    int64
	LineID int64
	Amount int64 // signed in the account's normal direction
}

func (s *Service) periodLines(ctx context.Context, tx *store.Tx, acct model.Account, begin, end time.Time) ([]Candidate, error) {
	rows, err := tx.Query(ctx, `
		SELECT journal_entry_ref, id, debit, credit
		FROM posted_journal_lines
		WHERE account_code = ? AND entry_time >= ? AND entry_time < ?
		ORDER BY entry_time, id`, acct.Code, store.Millis(begin), store.Millis(end))
	if err != nil {
		return nil, fmt.Errorf("reading period lines: %w", err)
	}
	defer rows.Close()

	var result []Candidate
	for rows.Next() {
		var c Candidate
		var debit, credit int64
		if err := rows.Scan(&c.Ref, &c.LineID, &debit, &credit); err != nil {
			return nil, fmt.Errorf("scanning line: %w", err)
		}
		c.Amount = acct.NormalBalance.SignedAmount(debit, credit)
		result = append(result, c)
	}
	return result, rows.Err()
}

// MatchResult is the outcome for one statement item.
type MatchResult struct {
	Status model.StatementItemStatus
	Ref    int64
}

// Match pairs each item with at most one candidate line and each line with
// at most one item. An item matches the unused candidate whose amount is
// closest within tolerance; an item carrying a reference only matches lines
// of that entry. Ties go to the earliest line.
func Match(items []model.StatementItem, candidates []Candidate, tolerance int64) []MatchResult {
	used := make([]bool, len(candidates))
	results := make([]MatchResult, len(items))

	for i, item := range items {
		best := -1
		var bestDiff int64
		for j, c := range candidates {
			if used[j] {
				continue
			}
			if item.Reference != "" && !id.MatchesEntryRef(item.Reference, c.Ref) {
				continue
			}
			diff := c.Amount - item.Amount
			if diff < 0 {
				diff = -diff
			}
			if diff > tolerance {
				continue
			}
			if best < 0 || diff < bestDiff {
				best, bestDiff = j, diff
			}
		}

		if best < 0 {
			results[i] = MatchResult{Status: model.ItemUnmatched}
			continue
		}
		used[best] = true
		results[i] = MatchResult{Status: model.ItemMatched, Ref: candidates[best].Ref}
	}
	return results
}
