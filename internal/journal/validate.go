package journal

import (
	"fmt"
	"strings"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/money"
)

// ValidateLineAmounts requires exactly one positive side and the other zero,
// with neither above money.MaxCents.
func ValidateLineAmounts(debit, credit int64) error {
	if debit < 0 || credit < 0 || (debit > 0) == (credit > 0) {
		return ledgererr.ErrInvalidLineAmounts.With("debit %s, credit %s", money.Format(debit), money.Format(credit))
	}
	if debit > money.MaxCents || credit > money.MaxCents {
		return ledgererr.ErrInvalidAmount.With("line amount above %s", money.Format(money.MaxCents))
	}
	return nil
}

// ValidateBalance requires sum(debit) == sum(credit).
func ValidateBalance(lines []model.JournalLine) error {
	var debit, credit int64
	for _, l := range lines {
		var okD, okC bool
		debit, okD = money.Add(debit, l.Debit)
		credit, okC = money.Add(credit, l.Credit)
		if !okD || !okC {
			return ledgererr.ErrInvalidAmount.With("entry totals overflow at line %d", l.LineNumber)
		}
	}
	if debit != credit {
		return ledgererr.ErrUnbalancedEntry.With("debits (%s) != credits (%s)", money.Format(debit), money.Format(credit))
	}
	return nil
}

// checkPostingAccount rejects control accounts.
func checkPostingAccount(acct model.Account) error {
	if !acct.IsPostingAccount {
		return ledgererr.ErrControlAccountPosting.With("account %d (%s)", acct.Code, acct.Name)
	}
	return nil
}

// checkLineAccount is the guard for a new or changed line. Closing and
// reversal entries must reach every tagged account, active or not.
func checkLineAccount(acct model.Account, source model.EntrySource) error {
	if err := checkPostingAccount(acct); err != nil {
		return err
	}
	if !acct.IsActive && !source.Generated() {
		return ledgererr.ErrAccountInactive.With("account %d (%s)", acct.Code, acct.Name)
	}
	return nil
}

// ValidationError describes one problem found in an imported entry.
type ValidationError struct {
	Key         string // import key of the entry
	Line        int    // 0 for entry-level problems
	Description string
}

func (e ValidationError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("entry %s: %s", e.Key, e.Description)
	}
	return fmt.Sprintf("entry %s line %d: %s", e.Key, e.Line, e.Description)
}

// AccountChecker resolves account codes during import validation.
type AccountChecker interface {
	Lookup(code int) (model.Account, bool)
}

// ChartIndex is an in-memory AccountChecker.
type ChartIndex map[int]model.Account

// NewChartIndex indexes accounts by code.
func NewChartIndex(accts []model.Account) ChartIndex {
	idx := make(ChartIndex, len(accts))
	for _, a := range accts {
		idx[a.Code] = a
	}
	return idx
}

// Lookup implements AccountChecker.
func (c ChartIndex) Lookup(code int) (model.Account, bool) {
	a, ok := c[code]
	return a, ok
}

// ValidateImported checks every imported entry before any of them is
// written, so an operator sees all problems of a file at once.
func ValidateImported(entries []ImportedEntry, accounts AccountChecker) []ValidationError {
	var errs []ValidationError

	for _, e := range entries {
		if len(e.Lines) == 0 {
			errs = append(errs, ValidationError{Key: e.Key, Description: "entry has no lines"})
			continue
		}
		if e.EntryTime.IsZero() {
			errs = append(errs, ValidationError{Key: e.Key, Description: "missing entry time"})
		}

		var debit, credit int64
		for i, l := range e.Lines {
			debit += l.Debit
			credit += l.Credit

			if err := ValidateLineAmounts(l.Debit, l.Credit); err != nil {
				errs = append(errs, ValidationError{Key: e.Key, Line: i + 1, Description: "line must have exactly one of debit or credit"})
			}

			acct, ok := accounts.Lookup(l.AccountCode)
			if !ok {
				errs = append(errs, ValidationError{Key: e.Key, Line: i + 1, Description: fmt.Sprintf("unknown account %d", l.AccountCode)})
				continue
			}
			if err := checkLineAccount(acct, model.SourceImport); err != nil {
				errs = append(errs, ValidationError{Key: e.Key, Line: i + 1, Description: err.Error()})
			}
		}

		if debit != credit {
			errs = append(errs, ValidationError{
				Key:         e.Key,
				Description: fmt.Sprintf("debits (%s) != credits (%s)", money.Format(debit), money.Format(credit)),
			})
		}
	}

	return errs
}

func joinValidationErrors(verrs []ValidationError) string {
	msgs := make([]string, len(verrs))
	for i, ve := range verrs {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}
