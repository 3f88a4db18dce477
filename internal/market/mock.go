package market

import (
	"context"
	"math/rand"
	"time"

	"okx-exec/pkg/exchanges/common"
)

// MockStream generates a synthetic random walk of closed bars for offline
// dry runs.
type MockStream struct {
	StartPrice float64
	Step       float64       // max move per bar, as a fraction of price
	Every      time.Duration // wall time between bars
	BarSize    time.Duration // bar timestamp spacing
	Seed       int64
}

// Run emits one bar per Every until ctx is done.
func (m MockStream) Run(ctx context.Context, emit func(common.Candle)) error {
	price := m.StartPrice
	if price <= 0 {
		price = 100
	}
	if m.Step <= 0 {
		m.Step = 0.005
	}
	if m.Every <= 0 {
		m.Every = time.Second
	}
	if m.BarSize <= 0 {
		m.BarSize = time.Minute
	}
	seed := m.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	ts := time.Now().Truncate(m.BarSize).UnixMilli()

	t := time.NewTicker(m.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		open := price
		price *= 1 + (rng.Float64()*2-1)*m.Step
		high, low := max(open, price), min(open, price)
		emit(common.Candle{
			Timestamp: ts,
			Open:      open,
			High:      high * (1 + rng.Float64()*m.Step/2),
			Low:       low * (1 - rng.Float64()*m.Step/2),
			Close:     price,
			Volume:    1 + rng.Float64()*100,
			Confirmed: true,
		})
		ts += m.BarSize.Milliseconds()
	}
}
