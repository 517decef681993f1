package model

import "time"

// ReconciliationState is the lifecycle state of a reconciliation session.
type ReconciliationState string

const (
	ReconciliationDraft     ReconciliationState = "draft"
	ReconciliationCompleted ReconciliationState = "completed"
)

// ReconciliationSession compares an account's ledger activity with an
// external statement for one period.
type ReconciliationSession struct {
	ID                        int64
	AccountCode               int
	StatementBeginTime        time.Time
	StatementEndTime          time.Time
	StatementOpeningBalance   int64
	StatementClosingBalance   int64
	InternalOpeningBalance    int64
	InternalClosingBalance    int64
	Reference                 string
	Note                      string
	State                     ReconciliationState
	CompleteTime              *time.Time
	UnmatchedTotal            int64
	Discrepancy               int64 // statement closing - internal closing
	AdjustmentJournalEntryRef int64
	CreateTime                time.Time
}

// StatementItemStatus records the outcome of matching.
type StatementItemStatus string

const (
	ItemPending   StatementItemStatus = "pending"
	ItemMatched   StatementItemStatus = "matched"
	ItemUnmatched StatementItemStatus = "unmatched"
)

// StatementItem is one line of an external statement. Amount is signed in
// the reconciled account's normal direction.
type StatementItem struct {
	ID                     int64
	SessionID              int64
	ItemTime               time.Time
	Description            string
	Reference              string
	Amount                 int64
	Status                 StatementItemStatus
	MatchedJournalEntryRef int64
}
