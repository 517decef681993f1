package model

import "time"

// FiscalYearState is derived from the closing and reversal columns.
type FiscalYearState string

const (
	FiscalYearOpen     FiscalYearState = "open"
	FiscalYearClosed   FiscalYearState = "closed"
	FiscalYearReversed FiscalYearState = "reversed"
)

// FiscalYear covers the half-open period [BeginTime, EndTime).
type FiscalYear struct {
	ID                      int64
	Name                    string
	BeginTime               time.Time
	EndTime                 time.Time
	PostTime                *time.Time // closing time
	ClosingJournalEntryRef  int64      // 0 while open
	ReversalTime            *time.Time
	ReversalJournalEntryRef int64
	CreateTime              time.Time
}

// State returns the lifecycle state of the fiscal year.
func (fy FiscalYear) State() FiscalYearState {
	switch {
	case fy.ReversalTime != nil:
		return FiscalYearReversed
	case fy.PostTime != nil:
		return FiscalYearClosed
	default:
		return FiscalYearOpen
	}
}

// Contains reports whether t falls inside the fiscal year.
func (fy FiscalYear) Contains(t time.Time) bool {
	return !t.Before(fy.BeginTime) && t.Before(fy.EndTime)
}
