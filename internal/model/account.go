package model

import "time"

// NormalBalance is the side on which an account's balance grows.
type NormalBalance int

const (
	NormalDebit  NormalBalance = 0
	NormalCredit NormalBalance = 1
)

// Valid reports whether n is debit or credit.
func (n NormalBalance) Valid() bool {
	return n == NormalDebit || n == NormalCredit
}

func (n NormalBalance) String() string {
	if n == NormalCredit {
		return "credit"
	}
	return "debit"
}

// ParseNormalBalance accepts "debit"/"credit" or "0"/"1".
func ParseNormalBalance(s string) (NormalBalance, bool) {
	switch s {
	case "debit", "0", "D", "d":
		return NormalDebit, true
	case "credit", "1", "C", "c":
		return NormalCredit, true
	}
	return 0, false
}

// SignedAmount returns the effect of a debit/credit pair on an account with
// normal balance n: positive grows the balance, negative shrinks it.
func (n NormalBalance) SignedAmount(debit, credit int64) int64 {
	if n == NormalCredit {
		return credit - debit
	}
	return debit - credit
}

// Sides splits a signed amount on an account with normal balance n back into
// a debit/credit pair with exactly one positive side.
func (n NormalBalance) Sides(signed int64) (debit, credit int64) {
	grow := signed >= 0
	amt := signed
	if amt < 0 {
		amt = -amt
	}
	if (n == NormalDebit) == grow {
		return amt, 0
	}
	return 0, amt
}

// Account is a row in the chart of accounts.
type Account struct {
	Code               int
	Name               string
	NormalBalance      NormalBalance
	Balance            int64 // running balance in minor units, signed in the normal direction
	IsActive           bool
	IsPostingAccount   bool
	ControlAccountCode int // 0 = top-level
	CreateTime         time.Time
	UpdateTime         time.Time
}

// AccountTag labels an account for classification by reports and lifecycle
// operations.
type AccountTag struct {
	AccountCode int
	Tag         Tag
}
