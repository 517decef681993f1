package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BankTransaction is one row of a bank statement export, before it becomes
// a reconciliation statement item.
type BankTransaction struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal // negative = money out, positive = money in
	Reference   string          // journal entry reference quoted by the bank row, if any
	Type        string          // bank transaction type (ACH_DEBIT, CHECK_PAID, ...)
	CheckNumber string
}

// Memo is the statement item description: the bank text followed by the
// transaction type and check number when the bank reports them.
func (t BankTransaction) Memo() string {
	memo := t.Description
	var tags []string
	if t.Type != "" {
		tags = append(tags, t.Type)
	}
	if t.CheckNumber != "" {
		tags = append(tags, "#"+t.CheckNumber)
	}
	if len(tags) == 0 {
		return memo
	}
	return memo + " [" + strings.Join(tags, " ") + "]"
}
