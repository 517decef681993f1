// Package reports computes read-only aggregates over posted journal lines:
// trial balance, balance sheet, income statement and revenue, plus the
// recomputation oracles that check the cached balances and the daily
// revenue rollup against a fold of the journal.
package reports

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

// Service computes reports. Methods only read and are meant to run in read
// transactions.
type Service struct {
	log *zap.Logger
}

// NewService creates a report Service.
func NewService(log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log}
}

// Line is one account's amount within a report section.
type Line struct {
	AccountCode int
	Name        string
	Amount      int64
}

// Section groups the accounts carrying one tag.
type Section struct {
	Tag   model.Tag
	Lines []Line
	Total int64
}

// window selects posted lines by entry time. Zero bounds are open.
type window struct {
	from, to         time.Time
	excludeGenerated bool
}

func (w window) clause() (string, []any) {
	var (
		sql  string
		args []any
	)
	if !w.from.IsZero() {
		sql += " AND p.entry_time >= ?"
		args = append(args, store.Millis(w.from))
	}
	if !w.to.IsZero() {
		sql += " AND p.entry_time < ?"
		args = append(args, store.Millis(w.to))
	}
	if w.excludeGenerated {
		sql += " AND p.source NOT IN (?, ?)"
		args = append(args, string(model.SourceFiscalYearClosing), string(model.SourceFiscalYearReversal))
	}
	return sql, args
}

// section sums posted lines per account carrying tag. creditSide selects
// credit - debit as the positive direction.
func section(ctx context.Context, tx *store.Tx, tag model.Tag, w window, creditSide bool) (Section, error) {
	cond, args := w.clause()
	rows, err := tx.Query(ctx, `
		SELECT a.code, a.name, COALESCE(SUM(p.debit), 0), COALESCE(SUM(p.credit), 0)
		FROM accounts a
		JOIN account_tags t ON t.account_code = a.code AND t.tag = ?
		LEFT JOIN posted_journal_lines p ON p.account_code = a.code`+cond+`
		GROUP BY a.code, a.name
		ORDER BY a.code`, append([]any{string(tag)}, args...)...)
	if err != nil {
		return Section{}, fmt.Errorf("summing %q: %w", tag, err)
	}
	defer rows.Close()

	sec := Section{Tag: tag}
	for rows.Next() {
		var (
			l             Line
			debit, credit int64
		)
		if err := rows.Scan(&l.AccountCode, &l.Name, &debit, &credit); err != nil {
			return Section{}, fmt.Errorf("scanning %q: %w", tag, err)
		}
		if creditSide {
			l.Amount = credit - debit
		} else {
			l.Amount = debit - credit
		}
		sec.Lines = append(sec.Lines, l)
		sec.Total += l.Amount
	}
	return sec, rows.Err()
}

// netIncome sums credit - debit over every account tagged as revenue or
// expense, counting an account with both tags once.
func netIncome(ctx context.Context, tx *store.Tx, w window) (int64, error) {
	cond, args := w.clause()
	var net int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(p.credit - p.debit), 0)
		FROM posted_journal_lines p
		WHERE p.account_code IN (SELECT account_code FROM account_tags WHERE tag IN (?, ?))`+cond,
		append([]any{string(model.TagRevenue), string(model.TagExpense)}, args...)...).Scan(&net)
	if err != nil {
		return 0, fmt.Errorf("summing net income: %w", err)
	}
	return net, nil
}
