package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tillbook/internal/model"
)

// ChaseParser parses Chase checking account CSV exports:
//
//	Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #
type ChaseParser struct{}

const (
	chaseDateFormat = "01/02/2006"
	chaseNumFields  = 7
	chaseColDetails = 0
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
	chaseColType    = 4
	chaseColCheck   = 6
)

// entryRefInText finds a journal entry reference an operator typed into a
// payment memo, e.g. "RENT JAN JE-000042".
var entryRefInText = regexp.MustCompile(`\bJE-\d+\b`)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV. The header row is required.
func (p *ChaseParser) Parse(r io.Reader) ([]model.BankTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = chaseNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chase CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	if !strings.EqualFold(strings.TrimSpace(records[0][chaseColDetails]), "details") {
		return nil, fmt.Errorf("not a chase export: first column is %q", records[0][chaseColDetails])
	}

	var txns []model.BankTransaction
	for i, rec := range records[1:] {
		txn, err := parseChaseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseChaseRow(rec []string) (model.BankTransaction, error) {
	date, err := time.Parse(chaseDateFormat, rec[chaseColDate])
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("parsing date %q: %w", rec[chaseColDate], err)
	}

	amount, err := decimal.NewFromString(rec[chaseColAmount])
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("parsing amount %q: %w", rec[chaseColAmount], err)
	}
	if err := checkChaseDirection(rec[chaseColDetails], amount); err != nil {
		return model.BankTransaction{}, err
	}

	desc := strings.TrimSpace(rec[chaseColDesc])
	return model.BankTransaction{
		Date:        date,
		Description: desc,
		Amount:      amount,
		Reference:   entryRefInText.FindString(desc),
		Type:        strings.TrimSpace(rec[chaseColType]),
		CheckNumber: strings.TrimSpace(rec[chaseColCheck]),
	}, nil
}

// checkChaseDirection rejects rows whose Details column disagrees with the
// sign of the amount: money out is DEBIT or CHECK, money in is CREDIT or
// DSLIP (deposit slip).
func checkChaseDirection(details string, amount decimal.Decimal) error {
	switch strings.ToUpper(strings.TrimSpace(details)) {
	case "DEBIT", "CHECK":
		if amount.IsPositive() {
			return fmt.Errorf("%s row with positive amount %s", details, amount)
		}
	case "CREDIT", "DSLIP":
		if amount.IsNegative() {
			return fmt.Errorf("%s row with negative amount %s", details, amount)
		}
	default:
		return fmt.Errorf("unknown details %q", details)
	}
	return nil
}
