package model

// Tag is a well-known account classification label.
type Tag string

const (
	TagCurrentAsset        Tag = "Balance Sheet - Current Asset"
	TagNonCurrentAsset     Tag = "Balance Sheet - Non-Current Asset"
	TagCurrentLiability    Tag = "Balance Sheet - Current Liability"
	TagNonCurrentLiability Tag = "Balance Sheet - Non-Current Liability"
	TagEquity              Tag = "Balance Sheet - Equity"

	TagRevenue Tag = "Income Statement - Revenue"
	TagExpense Tag = "Income Statement - Expense"

	TagClosingRevenue         Tag = "Fiscal Year Closing - Revenue"
	TagClosingExpense         Tag = "Fiscal Year Closing - Expense"
	TagClosingRetainedEarning Tag = "Fiscal Year Closing - Retained Earning"

	TagPOSSalesRevenue  Tag = "POS - Sales Revenue"
	TagPOSSalesDiscount Tag = "POS - Sales Discount"
	TagPOSPaymentMethod Tag = "POS - Payment Method"

	TagCashEquivalent Tag = "Cash Flow - Cash & Equivalents"

	TagReconciliationAdjustment Tag = "Reconciliation - Adjustment"
	TagCashOverShort            Tag = "Cash Count - Over/Short"
)

type tagInfo struct {
	unique bool
}

var tagRegistry = map[Tag]tagInfo{
	TagCurrentAsset:             {},
	TagNonCurrentAsset:          {},
	TagCurrentLiability:         {},
	TagNonCurrentLiability:      {},
	TagEquity:                   {},
	TagRevenue:                  {},
	TagExpense:                  {},
	TagClosingRevenue:           {},
	TagClosingExpense:           {},
	TagClosingRetainedEarning:   {unique: true},
	TagPOSSalesRevenue:          {unique: true},
	TagPOSSalesDiscount:         {unique: true},
	TagPOSPaymentMethod:         {},
	TagCashEquivalent:           {},
	TagReconciliationAdjustment: {unique: true},
	TagCashOverShort:            {unique: true},
}

// Valid reports whether t is a well-known tag.
func (t Tag) Valid() bool {
	_, ok := tagRegistry[t]
	return ok
}

// Unique reports whether at most one account may carry t.
func (t Tag) Unique() bool {
	return tagRegistry[t].unique
}

// AllTags returns every well-known tag in a stable order.
func AllTags() []Tag {
	return []Tag{
		TagCurrentAsset,
		TagNonCurrentAsset,
		TagCurrentLiability,
		TagNonCurrentLiability,
		TagEquity,
		TagRevenue,
		TagExpense,
		TagClosingRevenue,
		TagClosingExpense,
		TagClosingRetainedEarning,
		TagPOSSalesRevenue,
		TagPOSSalesDiscount,
		TagPOSPaymentMethod,
		TagCashEquivalent,
		TagReconciliationAdjustment,
		TagCashOverShort,
	}
}
