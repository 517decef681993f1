package model

import "time"

// DiscrepancyType classifies a cash count result.
type DiscrepancyType string

const (
	DiscrepancyShortage DiscrepancyType = "shortage"
	DiscrepancyOverage  DiscrepancyType = "overage"
	DiscrepancyBalanced DiscrepancyType = "balanced"
)

// ClassifyDiscrepancy maps counted - system to its type.
func ClassifyDiscrepancy(discrepancy int64) DiscrepancyType {
	switch {
	case discrepancy < 0:
		return DiscrepancyShortage
	case discrepancy > 0:
		return DiscrepancyOverage
	default:
		return DiscrepancyBalanced
	}
}

// CashCount is an append-only record of a physical count of a cash account.
type CashCount struct {
	ID                        int64
	AccountCode               int
	CountTime                 time.Time
	CountedAmount             int64
	SystemBalance             int64
	Discrepancy               int64
	DiscrepancyType           DiscrepancyType
	AdjustmentJournalEntryRef int64 // 0 when balanced
	Note                      string
	CreateTime                time.Time
}
