package precision

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-exec/pkg/exchanges/common"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlaces(t *testing.T) {
	tests := []struct {
		in   string
		want int32
	}{
		{"0.001", 3},
		{"0.0010", 3},
		{"0.01", 2},
		{"1", 0},
		{"10", 0},
		{"0.00000001", 8},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Places(d(tt.in)))
		})
	}
	assert.Equal(t, int32(5), Places(decimal.NewFromFloat(1e-5)))
}

func TestTruncateNeverRounds(t *testing.T) {
	tests := []struct {
		in     string
		places int32
		want   string
	}{
		{"1.23456789", 4, "1.2345"},
		{"0.99999", 2, "0.99"},
		{"5.5", 0, "5"},
		{"100", 3, "100"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Truncate(d(tt.in), tt.places)
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
			assert.True(t, got.LessThanOrEqual(d(tt.in)))
			// idempotent
			assert.True(t, Truncate(got, tt.places).Equal(got))
		})
	}
}

func TestNormalize(t *testing.T) {
	n := New(map[string]common.Market{
		"FIL-USDT": {ID: "FIL-USDT", PriceTick: d("0.001"), AmountStep: d("0.0001")},
	})
	p, s, err := n.Normalize("FIL-USDT", 5.123456, 9.87654321)
	require.NoError(t, err)
	assert.Equal(t, "5.123", p.String())
	assert.Equal(t, "9.8765", s.String())

	_, _, err = n.Normalize("BTC-USDT", 1, 1)
	assert.True(t, errors.Is(err, ErrUnknownInstrument))
}

type fakeSource map[string]common.Market

func (f fakeSource) LoadMarkets(context.Context, common.InstrumentType) (map[string]common.Market, error) {
	return f, nil
}

func TestLoad(t *testing.T) {
	n, err := Load(context.Background(), fakeSource{"A": {ID: "A", PriceTick: d("0.1"), AmountStep: d("1")}}, common.InstrumentSpot)
	require.NoError(t, err)
	m, err := n.Market("A")
	require.NoError(t, err)
	assert.Equal(t, "A", m.ID)
}
