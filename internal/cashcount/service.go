// Package cashcount records physical counts of cash accounts and posts the
// over/short adjustment when the count disagrees with the books.
package cashcount

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/accounts"
	"github.com/cleared-dev/tillbook/internal/journal"
	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/money"
	"github.com/cleared-dev/tillbook/internal/reconcile"
	"github.com/cleared-dev/tillbook/internal/store"
)

// Service is the only write path for cash_count_history. Rows are
// append-only.
type Service struct {
	log       *zap.Logger
	accounts  *accounts.Service
	journal   *journal.Service
	reconcile *reconcile.Service
	now       func() time.Time
}

// NewService creates a cash count Service.
func NewService(log *zap.Logger, accts *accounts.Service, j *journal.Service, r *reconcile.Service) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, accounts: accts, journal: j, reconcile: r, now: time.Now}
}

// SetClock overrides the time source for count and create timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateParams holds parameters for recording a count.
type CreateParams struct {
	AccountCode   int
	CountedAmount int64
	CountTime     time.Time // defaults to now
	Note          string
}

const countColumns = `id, account_code, count_time, counted_amount, system_balance, discrepancy, discrepancy_type,
	adjustment_journal_entry_ref, note, create_time`

func scanCount(r interface{ Scan(...any) error }) (model.CashCount, error) {
	var (
		c                 model.CashCount
		countMs, createMs int64
		dtype             string
		adjustmentRef     sql.NullInt64
	)
	err := r.Scan(&c.ID, &c.AccountCode, &countMs, &c.CountedAmount, &c.SystemBalance, &c.Discrepancy, &dtype,
		&adjustmentRef, &c.Note, &createMs)
	if err != nil {
		return model.CashCount{}, err
	}
	c.CountTime = store.FromMillis(countMs)
	c.DiscrepancyType = model.DiscrepancyType(dtype)
	c.AdjustmentJournalEntryRef = adjustmentRef.Int64
	c.CreateTime = store.FromMillis(createMs)
	return c, nil
}

// Get returns a count by id.
func (s *Service) Get(ctx context.Context, tx *store.Tx, countID int64) (model.CashCount, error) {
	c, err := scanCount(tx.QueryRow(ctx, `SELECT `+countColumns+` FROM cash_count_history WHERE id = ?`, countID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CashCount{}, ledgererr.ErrCashCountNotFound.With("%d", countID)
	}
	if err != nil {
		return model.CashCount{}, fmt.Errorf("reading cash count %d: %w", countID, err)
	}
	return c, nil
}

// List returns counts for an account (0 = all), newest first.
func (s *Service) List(ctx context.Context, tx *store.Tx, accountCode int) ([]model.CashCount, error) {
	stmt := `SELECT ` + countColumns + ` FROM cash_count_history`
	var args []any
	if accountCode != 0 {
		stmt += ` WHERE account_code = ?`
		args = append(args, accountCode)
	}
	stmt += ` ORDER BY count_time DESC, id DESC`

	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cash counts: %w", err)
	}
	defer rows.Close()

	var counts []model.CashCount
	for rows.Next() {
		c, err := scanCount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cash count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// SystemBalance folds the account's posted lines with entry time at or
// before t.
func (s *Service) SystemBalance(ctx context.Context, tx *store.Tx, acct model.Account, t time.Time) (int64, error) {
	var debit, credit int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM posted_journal_lines
		WHERE account_code = ? AND entry_time <= ?`, acct.Code, store.Millis(t)).Scan(&debit, &credit)
	if err != nil {
		return 0, fmt.Errorf("folding balance of %d: %w", acct.Code, err)
	}
	return acct.NormalBalance.SignedAmount(debit, credit), nil
}

// Create records a count. A non-zero discrepancy posts an adjustment entry
// between the counted account and the over/short account in the same
// transaction.
func (s *Service) Create(ctx context.Context, tx *store.Tx, p CreateParams) (model.CashCount, error) {
	acct, err := s.accounts.Get(ctx, tx, p.AccountCode)
	if err != nil {
		return model.CashCount{}, err
	}
	isCash, err := s.accounts.HasTag(ctx, tx, acct.Code, model.TagCashEquivalent)
	if err != nil {
		return model.CashCount{}, err
	}
	if !isCash {
		return model.CashCount{}, ledgererr.ErrNotCashAccount.With("account %d (%s)", acct.Code, acct.Name)
	}
	hasDraft, err := s.reconcile.HasDraft(ctx, tx, acct.Code)
	if err != nil {
		return model.CashCount{}, err
	}
	if hasDraft {
		return model.CashCount{}, ledgererr.ErrDraftReconciliationExists.With("account %d", acct.Code)
	}
	if p.CountedAmount < 0 {
		return model.CashCount{}, ledgererr.ErrInvalidAmount.With("counted amount %s is negative", money.Format(p.CountedAmount))
	}

	now := s.now()
	if p.CountTime.IsZero() {
		p.CountTime = now
	}

	system, err := s.SystemBalance(ctx, tx, acct, p.CountTime)
	if err != nil {
		return model.CashCount{}, err
	}
	discrepancy := p.CountedAmount - system
	dtype := model.ClassifyDiscrepancy(discrepancy)

	var adjustmentRef int64
	if discrepancy != 0 {
		adjustmentRef, err = s.postAdjustment(ctx, tx, acct, p, discrepancy)
		if err != nil {
			return model.CashCount{}, err
		}
	}

	countID, err := tx.Insert(ctx, `
		INSERT INTO cash_count_history (account_code, count_time, counted_amount, system_balance, discrepancy,
			discrepancy_type, adjustment_journal_entry_ref, note, create_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.Code, store.Millis(p.CountTime), p.CountedAmount, system, discrepancy,
		string(dtype), store.NullInt(adjustmentRef), p.Note, store.Millis(now))
	if err != nil {
		return model.CashCount{}, fmt.Errorf("inserting cash count: %w", err)
	}

	s.log.Info("cash counted",
		zap.Int("account", acct.Code),
		zap.String("counted", money.Format(p.CountedAmount)),
		zap.String("system", money.Format(system)),
		zap.String("discrepancy", money.Format(discrepancy)),
		zap.String("type", string(dtype)),
	)
	return s.Get(ctx, tx, countID)
}

func (s *Service) postAdjustment(ctx context.Context, tx *store.Tx, acct model.Account, p CreateParams, discrepancy int64) (int64, error) {
	overShort, err := s.accounts.AccountWithTag(ctx, tx, model.TagCashOverShort)
	if err != nil {
		return 0, err
	}
	debit, credit := acct.NormalBalance.Sides(discrepancy)
	note := fmt.Sprintf("Cash count %s of %s", model.ClassifyDiscrepancy(discrepancy), acct.Name)
	entry, err := s.journal.Record(ctx, tx, journal.RecordParams{
		EntryTime: p.CountTime,
		Note:      note,
		Source:    model.SourceCashCountAdjustment,
		Lines: []journal.LineParams{
			{AccountCode: acct.Code, Debit: debit, Credit: credit, Description: note},
			{AccountCode: overShort.Code, Debit: credit, Credit: debit, Description: note},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("posting cash count adjustment: %w", err)
	}
	return entry.Ref, nil
}
