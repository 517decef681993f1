package money

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"12.5", 1250},
		{"12.50", 1250},
		{"5000.00", 500000},
		{"-4.00", -400},
		{"0.01", 1},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, "Parse(%q)", tt.in)
		assert.Equal(t, tt.want, got, "Parse(%q)", tt.in)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1.005", "0.001"} {
		_, err := Parse(in)
		require.Error(t, err, "Parse(%q)", in)
		assert.True(t, errors.Is(err, ledgererr.ErrInvalidAmount), "Parse(%q) = %v", in, err)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "12.50", Format(1250))
	assert.Equal(t, "-500.00", Format(-50000))
	assert.Equal(t, "0.00", Format(0))
	assert.Equal(t, "0.07", Format(7))
}

func TestToDecimal(t *testing.T) {
	assert.True(t, ToDecimal(1999).Equal(decimal.RequireFromString("19.99")))
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("1.234") })
	assert.Equal(t, int64(123), MustParse("1.23"))
}

func TestParse_OutOfRange(t *testing.T) {
	_, err := Parse("90071992547409.93")
	assert.ErrorIs(t, err, ledgererr.ErrInvalidAmount)

	v, err := Parse("90071992547409.92")
	require.NoError(t, err)
	assert.Equal(t, MaxCents, v)
}

func TestAdd(t *testing.T) {
	sum, ok := Add(1250, -250)
	assert.True(t, ok)
	assert.Equal(t, int64(1000), sum)

	_, ok = Add(math.MaxInt64, 1)
	assert.False(t, ok)
	_, ok = Add(math.MinInt64, -1)
	assert.False(t, ok)
}
