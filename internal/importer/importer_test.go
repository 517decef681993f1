package importer

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
)

const chaseChecking = `Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #
DEBIT,01/03/2025,GITHUB *PRO SUBSCRIPTION,-4.00,ACH_DEBIT,4996.00,
DEBIT,01/06/2025,SQUARE CARD READER,-59.00,DEBIT_CARD,4937.00,
CHECK,01/10/2025,CHECK 1042 RENT JAN JE-000003,-1200.00,CHECK_PAID,3737.00,1042
CREDIT,01/14/2025,POS DEPOSIT BATCH 0114,3500.00,ACH_CREDIT,7237.00,
DEBIT,01/17/2025,CITY UTILITIES,-86.45,ACH_DEBIT,7150.55,
DEBIT,01/22/2025,PAYROLL SERVICE FEE,-25.00,ACH_DEBIT,7125.55,
`

const chaseHeader = "Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #\n"

func parseChase(t *testing.T) []model.BankTransaction {
	t.Helper()
	p := &ChaseParser{}
	txns, err := p.Parse(strings.NewReader(chaseChecking))
	require.NoError(t, err)
	return txns
}

func TestChaseParser_Parse(t *testing.T) {
	txns := parseChase(t)
	assert.Len(t, txns, 6)

	// First: GITHUB subscription
	assert.Equal(t, "GITHUB *PRO SUBSCRIPTION", txns[0].Description)
	assert.Equal(t, "-4.00", txns[0].Amount.StringFixed(2))
	assert.Equal(t, "ACH_DEBIT", txns[0].Type)
	assert.Equal(t, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), txns[0].Date)

	// Fourth: POS deposit (positive)
	assert.Equal(t, "POS DEPOSIT BATCH 0114", txns[3].Description)
	assert.True(t, txns[3].Amount.IsPositive())
	assert.Equal(t, "3500.00", txns[3].Amount.StringFixed(2))

	assert.Equal(t, time.Date(2025, 1, 22, 0, 0, 0, 0, time.UTC), txns[5].Date)
}

func TestChaseParser_NegativePositiveAmounts(t *testing.T) {
	for _, txn := range parseChase(t) {
		if txn.Description == "POS DEPOSIT BATCH 0114" {
			assert.True(t, txn.Amount.IsPositive())
		} else {
			assert.True(t, txn.Amount.IsNegative(), "expected negative for %s", txn.Description)
		}
	}
}

func TestChaseParser_EmptyFile(t *testing.T) {
	p := &ChaseParser{}
	txns, err := p.Parse(strings.NewReader(chaseHeader))
	require.NoError(t, err)
	assert.Nil(t, txns)
}

func TestChaseParser_BadRows(t *testing.T) {
	tests := []struct {
		name string
		row  string
		want string
	}{
		{"bad date", "DEBIT,NOTADATE,desc,-4.00,ACH_DEBIT,100.00,\n", "parsing date"},
		{"bad amount", "DEBIT,01/03/2025,desc,NOTANUMBER,ACH_DEBIT,100.00,\n", "parsing amount"},
		{"short row", "DEBIT,01/03/2025,desc\n", "reading chase CSV"},
		{"debit with positive amount", "DEBIT,01/03/2025,desc,4.00,ACH_DEBIT,100.00,\n", "DEBIT row with positive amount"},
		{"deposit with negative amount", "DSLIP,01/03/2025,desc,-4.00,DEPOSIT,100.00,\n", "DSLIP row with negative amount"},
		{"unknown details", "FEE,01/03/2025,desc,-4.00,FEE,100.00,\n", "unknown details"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ChaseParser{}
			_, err := p.Parse(strings.NewReader(chaseHeader + tt.row))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestChaseParser_CheckAndEntryReference(t *testing.T) {
	txns := parseChase(t)

	rent := txns[2]
	assert.Equal(t, "CHECK_PAID", rent.Type)
	assert.Equal(t, "1042", rent.CheckNumber)
	assert.Equal(t, "JE-000003", rent.Reference, "entry reference typed into the check memo")

	assert.Empty(t, txns[0].Reference)
	assert.Empty(t, txns[0].CheckNumber)
}

func TestChaseParser_NotChaseExport(t *testing.T) {
	p := &ChaseParser{}
	_, err := p.Parse(strings.NewReader("Date,Memo,Amount,Kind,Balance,Check,Extra\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a chase export")
}

func TestGenericParser_Parse(t *testing.T) {
	data := "date,description,amount,reference\n" +
		"2025-03-03,Deposit,500.00,JE-000002\n" +
		"2025-03-10, Rent,-200.00,\n"

	p := &GenericParser{}
	txns, err := p.Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), txns[0].Date)
	assert.Equal(t, "JE-000002", txns[0].Reference)
	assert.Equal(t, "Rent", txns[1].Description)
	assert.Equal(t, "-200.00", txns[1].Amount.StringFixed(2))
}

func TestGenericParser_WrongHeader(t *testing.T) {
	p := &GenericParser{}
	_, err := p.Parse(strings.NewReader("when,what,how much,ref\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected header")
}

func TestToItems_DebitNormalAccount(t *testing.T) {
	items, err := ToItems(parseChase(t), model.NormalDebit)
	require.NoError(t, err)
	require.Len(t, items, 6)

	assert.Equal(t, int64(-400), items[0].Amount)
	assert.Equal(t, int64(350000), items[3].Amount)
	assert.Equal(t, int64(-8645), items[4].Amount)
	assert.Equal(t, "GITHUB *PRO SUBSCRIPTION [ACH_DEBIT]", items[0].Description)
	assert.Empty(t, items[0].Reference)

	assert.Equal(t, "CHECK 1042 RENT JAN JE-000003 [CHECK_PAID #1042]", items[2].Description)
	assert.Equal(t, "JE-000003", items[2].Reference)
	assert.Equal(t, int64(-120000), items[2].Amount)
}

func TestToItems_CreditNormalAccount(t *testing.T) {
	txns := []model.BankTransaction{
		{Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("-42.10"), Reference: "je-7"},
	}
	items, err := ToItems(txns, model.NormalCredit)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// A charge on a credit card grows the liability.
	assert.Equal(t, int64(4210), items[0].Amount)
	assert.Equal(t, "je-7", items[0].Reference)
}

func TestToItems_DropsForeignReferences(t *testing.T) {
	txns := []model.BankTransaction{
		{Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("10.00"), Reference: "WIRE-99812"},
	}
	items, err := ToItems(txns, model.NormalDebit)
	require.NoError(t, err)
	assert.Empty(t, items[0].Reference)
}

func TestToItems_SubCentAmount(t *testing.T) {
	txns := []model.BankTransaction{{Amount: decimal.RequireFromString("1.005")}}
	_, err := ToItems(txns, model.NormalDebit)
	assert.ErrorIs(t, err, ledgererr.ErrInvalidAmount)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("nonexistent"))
}

func TestRegistry_CaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register(&ChaseParser{})
	assert.NotNil(t, r.Get("Chase"))
	assert.NotNil(t, r.Get("CHASE"))
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&ChaseParser{})
	assert.Panics(t, func() { r.Register(&ChaseParser{}) })
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	formats := r.Formats()
	sort.Strings(formats)
	assert.Equal(t, []string{"chase", "generic"}, formats)
}

func TestScan_FindsCSVs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "processed"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bank.csv"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "processed", "old.csv"), []byte("data"), 0o644))

	files, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "bank.csv", files[0].Name)
	assert.Equal(t, int64(4), files[0].Size)
}

func TestScan_MissingDir(t *testing.T) {
	files, err := Scan(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestMarkProcessed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bank.csv"), []byte("data"), 0o644))

	require.NoError(t, MarkProcessed(dir, "bank.csv"))

	_, err := os.Stat(filepath.Join(dir, "bank.csv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "processed", "bank.csv"))
	assert.NoError(t, err)
}
