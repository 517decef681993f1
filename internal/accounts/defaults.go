package accounts

import "github.com/cleared-dev/tillbook/internal/model"

// ChartAccount is an account definition as it appears in a chart file or in
// a default chart: the registry fields an operator chooses, plus tags.
type ChartAccount struct {
	Code               int
	Name               string
	NormalBalance      model.NormalBalance
	ControlAccountCode int
	Tags               []model.Tag
}

// DefaultChart returns the default chart of accounts for a business type.
func DefaultChart(businessType string) []ChartAccount {
	switch businessType {
	case "pos_retail":
		return posRetailChart()
	default:
		return posRetailChart()
	}
}

func posRetailChart() []ChartAccount {
	const (
		debit  = model.NormalDebit
		credit = model.NormalCredit
	)
	return []ChartAccount{
		{Code: 1000, Name: "Cash on Hand", NormalBalance: debit, Tags: []model.Tag{model.TagCurrentAsset, model.TagCashEquivalent, model.TagPOSPaymentMethod}},
		{Code: 1010, Name: "Business Checking", NormalBalance: debit, Tags: []model.Tag{model.TagCurrentAsset, model.TagCashEquivalent, model.TagPOSPaymentMethod}},
		{Code: 1020, Name: "Card Clearing", NormalBalance: debit, Tags: []model.Tag{model.TagCurrentAsset, model.TagPOSPaymentMethod}},
		{Code: 1200, Name: "Inventory", NormalBalance: debit, Tags: []model.Tag{model.TagCurrentAsset}},
		{Code: 1500, Name: "Equipment", NormalBalance: debit, Tags: []model.Tag{model.TagNonCurrentAsset}},
		{Code: 2000, Name: "Accounts Payable", NormalBalance: credit, Tags: []model.Tag{model.TagCurrentLiability}},
		{Code: 2100, Name: "Sales Tax Payable", NormalBalance: credit, Tags: []model.Tag{model.TagCurrentLiability}},
		{Code: 2500, Name: "Equipment Loan", NormalBalance: credit, Tags: []model.Tag{model.TagNonCurrentLiability}},
		{Code: 3000, Name: "Owner's Equity", NormalBalance: credit, Tags: []model.Tag{model.TagEquity}},
		{Code: 3100, Name: "Retained Earnings", NormalBalance: credit, Tags: []model.Tag{model.TagEquity, model.TagClosingRetainedEarning}},
		{Code: 4000, Name: "Sales Revenue", NormalBalance: credit, Tags: []model.Tag{model.TagRevenue, model.TagClosingRevenue, model.TagPOSSalesRevenue}},
		{Code: 4010, Name: "Sales Discounts", NormalBalance: debit, Tags: []model.Tag{model.TagRevenue, model.TagClosingRevenue, model.TagPOSSalesDiscount}},
		{Code: 5000, Name: "Cost of Goods Sold", NormalBalance: debit, Tags: []model.Tag{model.TagExpense, model.TagClosingExpense}},
		{Code: 5100, Name: "Rent", NormalBalance: debit, Tags: []model.Tag{model.TagExpense, model.TagClosingExpense}},
		{Code: 5200, Name: "Wages", NormalBalance: debit, Tags: []model.Tag{model.TagExpense, model.TagClosingExpense}},
		{Code: 5900, Name: "Cash Over/Short", NormalBalance: debit, Tags: []model.Tag{model.TagExpense, model.TagClosingExpense, model.TagCashOverShort}},
		{Code: 5910, Name: "Reconciliation Adjustments", NormalBalance: debit, Tags: []model.Tag{model.TagExpense, model.TagClosingExpense, model.TagReconciliationAdjustment}},
	}
}
