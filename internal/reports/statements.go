package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

// TrialBalanceRow is one account's posted totals.
type TrialBalanceRow struct {
	AccountCode   int
	Name          string
	NormalBalance model.NormalBalance
	Debit         int64
	Credit        int64
	Balance       int64 // signed in the normal direction
}

// TrialBalance lists posted debit and credit totals per account.
type TrialBalance struct {
	AsOf        time.Time // zero = all time
	Rows        []TrialBalanceRow
	TotalDebit  int64
	TotalCredit int64
}

// Balanced reports whether total debits equal total credits.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit == tb.TotalCredit
}

// TrialBalance returns posted totals for lines with entry time before asOf
// (zero = all). Accounts without activity are omitted.
func (s *Service) TrialBalance(ctx context.Context, tx *store.Tx, asOf time.Time) (TrialBalance, error) {
	cond, args := window{to: asOf}.clause()
	rows, err := tx.Query(ctx, `
		SELECT a.code, a.name, a.normal_balance, COALESCE(SUM(p.debit), 0), COALESCE(SUM(p.credit), 0)
		FROM accounts a
		JOIN posted_journal_lines p ON p.account_code = a.code`+cond+`
		GROUP BY a.code, a.name, a.normal_balance
		ORDER BY a.code`, args...)
	if err != nil {
		return TrialBalance{}, fmt.Errorf("reading trial balance: %w", err)
	}
	defer rows.Close()

	tb := TrialBalance{AsOf: asOf}
	for rows.Next() {
		var (
			r      TrialBalanceRow
			normal int
		)
		if err := rows.Scan(&r.AccountCode, &r.Name, &normal, &r.Debit, &r.Credit); err != nil {
			return TrialBalance{}, fmt.Errorf("scanning trial balance: %w", err)
		}
		r.NormalBalance = model.NormalBalance(normal)
		r.Balance = r.NormalBalance.SignedAmount(r.Debit, r.Credit)
		tb.Rows = append(tb.Rows, r)
		tb.TotalDebit += r.Debit
		tb.TotalCredit += r.Credit
	}
	return tb, rows.Err()
}

// BalanceSheet is the financial position at a point in time.
type BalanceSheet struct {
	AsOf                  time.Time
	CurrentAssets         Section
	NonCurrentAssets      Section
	CurrentLiabilities    Section
	NonCurrentLiabilities Section
	Equity                Section
	CurrentEarnings       int64 // revenue - expense not yet closed to equity
	TotalAssets           int64
	TotalLiabilities      int64
	TotalEquity           int64 // Equity.Total + CurrentEarnings
}

// Balanced reports whether assets equal liabilities plus equity.
func (bs BalanceSheet) Balanced() bool {
	return bs.TotalAssets == bs.TotalLiabilities+bs.TotalEquity
}

// BalanceSheet classifies balances before asOf by balance sheet tag.
func (s *Service) BalanceSheet(ctx context.Context, tx *store.Tx, asOf time.Time) (BalanceSheet, error) {
	w := window{to: asOf}
	bs := BalanceSheet{AsOf: asOf}

	sections := []struct {
		dst        *Section
		tag        model.Tag
		creditSide bool
	}{
		{&bs.CurrentAssets, model.TagCurrentAsset, false},
		{&bs.NonCurrentAssets, model.TagNonCurrentAsset, false},
		{&bs.CurrentLiabilities, model.TagCurrentLiability, true},
		{&bs.NonCurrentLiabilities, model.TagNonCurrentLiability, true},
		{&bs.Equity, model.TagEquity, true},
	}
	for _, sec := range sections {
		var err error
		*sec.dst, err = section(ctx, tx, sec.tag, w, sec.creditSide)
		if err != nil {
			return BalanceSheet{}, err
		}
	}

	earnings, err := netIncome(ctx, tx, w)
	if err != nil {
		return BalanceSheet{}, err
	}
	bs.CurrentEarnings = earnings
	bs.TotalAssets = bs.CurrentAssets.Total + bs.NonCurrentAssets.Total
	bs.TotalLiabilities = bs.CurrentLiabilities.Total + bs.NonCurrentLiabilities.Total
	bs.TotalEquity = bs.Equity.Total + bs.CurrentEarnings
	return bs, nil
}

// IncomeStatement is revenue and expense over a period.
type IncomeStatement struct {
	From      time.Time
	To        time.Time
	Revenue   Section
	Expense   Section
	NetIncome int64
}

// IncomeStatement sums revenue (credit - debit) and expense (debit - credit)
// for entries in [from, to). Closing and reversal entries are excluded so a
// closed year still shows its results.
func (s *Service) IncomeStatement(ctx context.Context, tx *store.Tx, from, to time.Time) (IncomeStatement, error) {
	w := window{from: from, to: to, excludeGenerated: true}
	is := IncomeStatement{From: from, To: to}

	var err error
	if is.Revenue, err = section(ctx, tx, model.TagRevenue, w, true); err != nil {
		return IncomeStatement{}, err
	}
	if is.Expense, err = section(ctx, tx, model.TagExpense, w, false); err != nil {
		return IncomeStatement{}, err
	}
	is.NetIncome = is.Revenue.Total - is.Expense.Total
	return is, nil
}
