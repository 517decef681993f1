package reports

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

// BalanceCheck compares an account's cached running balance with the fold
// of its posted lines.
type BalanceCheck struct {
	AccountCode int
	Cached      int64
	Folded      int64
}

// Consistent reports whether the cached balance equals the fold.
func (c BalanceCheck) Consistent() bool {
	return c.Cached == c.Folded
}

// RecomputeBalances folds every account's posted lines.
func (s *Service) RecomputeBalances(ctx context.Context, tx *store.Tx) ([]BalanceCheck, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.code, a.balance, a.normal_balance, tb.debit, tb.credit
		FROM accounts a
		JOIN trial_balance_lines tb ON tb.account_code = a.code
		ORDER BY a.code`)
	if err != nil {
		return nil, fmt.Errorf("recomputing balances: %w", err)
	}
	defer rows.Close()

	var checks []BalanceCheck
	for rows.Next() {
		var (
			c             BalanceCheck
			normal        int
			debit, credit int64
		)
		if err := rows.Scan(&c.AccountCode, &c.Cached, &normal, &debit, &credit); err != nil {
			return nil, fmt.Errorf("scanning balance: %w", err)
		}
		c.Folded = model.NormalBalance(normal).SignedAmount(debit, credit)
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// VerifyBalances returns every account whose cached balance differs from
// the fold of its posted lines.
func (s *Service) VerifyBalances(ctx context.Context, tx *store.Tx) ([]BalanceCheck, error) {
	checks, err := s.RecomputeBalances(ctx, tx)
	if err != nil {
		return nil, err
	}
	var bad []BalanceCheck
	for _, c := range checks {
		if !c.Consistent() {
			s.log.Warn("balance mismatch",
				zap.Int("account", c.AccountCode),
				zap.Int64("cached", c.Cached),
				zap.Int64("folded", c.Folded),
			)
			bad = append(bad, c)
		}
	}
	return bad, nil
}
