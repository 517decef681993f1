package model

import "time"

// EntrySource classifies where a journal entry came from.
type EntrySource string

const (
	SourceManual                   EntrySource = "manual"
	SourcePOSSale                  EntrySource = "pos_sale"
	SourceImport                   EntrySource = "import"
	SourceFiscalYearClosing        EntrySource = "fiscal_year_closing"
	SourceFiscalYearReversal       EntrySource = "fiscal_year_reversal"
	SourceReconciliationAdjustment EntrySource = "reconciliation_adjustment"
	SourceCashCountAdjustment      EntrySource = "cash_count_adjustment"
)

// Valid reports whether s is a known source.
func (s EntrySource) Valid() bool {
	switch s {
	case SourceManual, SourcePOSSale, SourceImport, SourceFiscalYearClosing,
		SourceFiscalYearReversal, SourceReconciliationAdjustment, SourceCashCountAdjustment:
		return true
	}
	return false
}

// Generated reports whether entries of this source are produced by the
// fiscal year lifecycle rather than by an operator.
func (s EntrySource) Generated() bool {
	return s == SourceFiscalYearClosing || s == SourceFiscalYearReversal
}

// JournalEntry is a header row; Lines is populated by readers that load them.
type JournalEntry struct {
	Ref        int64
	EntryTime  time.Time
	PostTime   *time.Time // nil = draft
	Note       string
	Source     EntrySource
	CreateTime time.Time
	Lines      []JournalLine
}

// Posted reports whether the entry has been posted.
func (e JournalEntry) Posted() bool {
	return e.PostTime != nil
}

// Totals returns the debit and credit sums of the loaded lines.
func (e JournalEntry) Totals() (debit, credit int64) {
	for _, l := range e.Lines {
		debit += l.Debit
		credit += l.Credit
	}
	return debit, credit
}

// JournalLine is one side of a double entry.
type JournalLine struct {
	ID              int64
	JournalEntryRef int64
	LineNumber      int
	AccountCode     int
	Debit           int64 // zero if credit side
	Credit          int64 // zero if debit side
	Description     string
}
