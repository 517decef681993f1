package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tillbook/internal/model"
)

// GenericHeader is the header of the plain statement format:
// ISO date, free text, signed amount (positive = money in), optional
// journal entry reference such as JE-000042.
const GenericHeader = "date,description,amount,reference"

// GenericParser parses statements already exported in the plain format.
type GenericParser struct{}

const (
	genericNumFields = 4
	genericColDate   = 0
	genericColDesc   = 1
	genericColAmount = 2
	genericColRef    = 3
)

// Format returns the parser name.
func (p *GenericParser) Format() string { return "generic" }

// Parse reads a plain statement CSV. The header row is required.
func (p *GenericParser) Parse(r io.Reader) ([]model.BankTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = genericNumFields
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading statement CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	if got := strings.ToLower(strings.Join(records[0], ",")); got != GenericHeader {
		return nil, fmt.Errorf("unexpected header %q, want %q", got, GenericHeader)
	}

	var txns []model.BankTransaction
	for i, rec := range records[1:] {
		date, err := time.Parse(time.DateOnly, rec[genericColDate])
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing date %q: %w", i+2, rec[genericColDate], err)
		}
		amount, err := decimal.NewFromString(rec[genericColAmount])
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing amount %q: %w", i+2, rec[genericColAmount], err)
		}
		txns = append(txns, model.BankTransaction{
			Date:        date,
			Description: rec[genericColDesc],
			Amount:      amount,
			Reference:   rec[genericColRef],
		})
	}
	return txns, nil
}
