// Package precision truncates prices and sizes to an instrument's published
// tick and lot precision.
package precision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"okx-exec/pkg/exchanges/common"
)

// ErrUnknownInstrument is returned for instruments missing from the market cache.
var ErrUnknownInstrument = errors.New("unknown instrument")

// MarketSource loads instrument metadata.
type MarketSource interface {
	LoadMarkets(ctx context.Context, typ common.InstrumentType) (map[string]common.Market, error)
}

// Normalizer holds the market cache loaded once at startup.
type Normalizer struct {
	mu      sync.RWMutex
	markets map[string]common.Market
}

// New builds a normalizer over a fixed set of markets.
func New(markets map[string]common.Market) *Normalizer {
	n := &Normalizer{markets: make(map[string]common.Market, len(markets))}
	for k, v := range markets {
		n.markets[k] = v
	}
	return n
}

// Load fetches markets of typ from src.
func Load(ctx context.Context, src MarketSource, typ common.InstrumentType) (*Normalizer, error) {
	ms, err := src.LoadMarkets(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("load %s markets: %w", typ, err)
	}
	return New(ms), nil
}

// Market returns the cached metadata for instrument.
func (n *Normalizer) Market(instrument string) (common.Market, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m, ok := n.markets[instrument]
	if !ok {
		return common.Market{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}
	return m, nil
}

// Normalize truncates price to the tick precision and size to the lot precision.
func (n *Normalizer) Normalize(instrument string, price, size float64) (decimal.Decimal, decimal.Decimal, error) {
	m, err := n.Market(instrument)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	p := Truncate(decimal.NewFromFloat(price), Places(m.PriceTick))
	s := Truncate(decimal.NewFromFloat(size), Places(m.AmountStep))
	return p, s, nil
}

// Places is the number of fractional digits implied by a precision value
// such as 0.001 (3) or 1 (0). Values with a non-negative exponent give 0.
func Places(precision decimal.Decimal) int32 {
	// String trims trailing zeros so "0.0010" and "0.001" agree
	exp := decimal.RequireFromString(precision.String()).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// Truncate drops digits past places toward zero. It never rounds.
func Truncate(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Truncate(places)
}
