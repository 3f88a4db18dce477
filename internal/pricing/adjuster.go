// Package pricing applies slippage and clamps prices into the venue's
// acceptable band before an order is sent.
package pricing

import (
	"context"

	"github.com/sirupsen/logrus"

	"okx-exec/pkg/exchanges/common"
)

// LimitSource reports the current price band.
type LimitSource interface {
	FetchPriceLimits(ctx context.Context, instrument string) (common.PriceLimit, error)
}

// Adjuster combines slippage and limit clamping.
type Adjuster struct {
	limits   LimitSource
	slippage float64
	log      *logrus.Entry
}

// NewAdjuster creates an adjuster applying pct slippage (0.001 = 0.1%).
func NewAdjuster(limits LimitSource, pct float64, log *logrus.Entry) *Adjuster {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Adjuster{limits: limits, slippage: pct, log: log.WithField("component", "pricing")}
}

// ApplySlippage moves price against the order: up for buys, down for sells.
func ApplySlippage(price float64, side common.Side, pct float64) float64 {
	if pct == 0 {
		return price
	}
	if side == common.SideBuy {
		return price + price*pct
	}
	return price - price*pct
}

// Clamp caps buys at the buy limit and floors sells at the sell limit.
// It reports whether the price was replaced. Non-positive limits are ignored.
func Clamp(price float64, side common.Side, lim common.PriceLimit) (float64, bool) {
	switch side {
	case common.SideBuy:
		if lim.Buy > 0 && price > lim.Buy {
			return lim.Buy, true
		}
	case common.SideSell:
		if lim.Sell > 0 && price < lim.Sell {
			return lim.Sell, true
		}
	}
	return price, false
}

// Adjust applies slippage, then clamps against the band fetched now.
func (a *Adjuster) Adjust(ctx context.Context, instrument string, side common.Side, price float64) (float64, error) {
	adjusted := ApplySlippage(price, side, a.slippage)
	lim, err := a.limits.FetchPriceLimits(ctx, instrument)
	if err != nil {
		return 0, err
	}
	return a.clamp(instrument, side, adjusted, lim), nil
}

// AdjustWith is Adjust against a band snapshot the caller already holds.
func (a *Adjuster) AdjustWith(instrument string, side common.Side, price float64, lim common.PriceLimit) float64 {
	return a.clamp(instrument, side, ApplySlippage(price, side, a.slippage), lim)
}

func (a *Adjuster) clamp(instrument string, side common.Side, price float64, lim common.PriceLimit) float64 {
	out, clamped := Clamp(price, side, lim)
	if clamped {
		a.log.WithFields(logrus.Fields{
			"instrument": instrument,
			"side":       side,
			"price":      price,
			"limit":      out,
		}).Warn("price clamped to exchange limit")
	}
	return out
}

// Slippage returns the configured slippage fraction.
func (a *Adjuster) Slippage() float64 { return a.slippage }
