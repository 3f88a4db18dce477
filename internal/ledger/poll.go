package ledger

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"okx-exec/internal/events"
	"okx-exec/internal/order"
	"okx-exec/pkg/exchanges/common"
)

// Poll refreshes every active order. A failed fetch leaves the order active
// for the next tick; it never affects the other orders. Completed fills are
// applied, and every order that turned terminal is queued as a notification
// and dropped from the active set. It returns how many orders turned terminal.
func (l *Ledger) Poll(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.active[:0]
	terminal := 0
	for _, o := range l.active {
		if ctx.Err() != nil {
			kept = append(kept, o)
			continue
		}
		snap, err := l.gw.FetchOrder(ctx, o.Instrument, o.ID)
		if err != nil {
			l.log.WithError(err).WithFields(logrus.Fields{"order_id": o.ID, "op": "fetch_order"}).Warn("order poll failed")
			kept = append(kept, o)
			continue
		}
		if !o.Update(snap) {
			kept = append(kept, o)
			continue
		}
		terminal++
		if o.Status() == order.Completed {
			l.applyFill(o)
		}
		l.pending = append(l.pending, o.Clone())
		l.bus.Publish(events.EventOrderTerminal, o.View())
		l.log.WithFields(logrus.Fields{
			"order_id": o.ID,
			"status":   o.Status().String(),
			"filled":   o.Filled(),
			"avg":      o.Average(),
			"fee":      o.Fee().Cost,
		}).Info("order finished")
	}
	// drop references held past the new length
	for i := len(kept); i < len(l.active); i++ {
		l.active[i] = nil
	}
	l.active = kept
	return terminal
}

// applyFill computes every delta first, then commits cash and position
// together.
func (l *Ledger) applyFill(o *order.Order) {
	filled, avg := o.Filled(), o.Average()
	if filled == 0 {
		return
	}
	fee := o.Fee().Cost

	var dCash, dSize float64
	switch l.cfg.Type {
	case common.InstrumentSwap:
		margin := l.market.ContractSize * filled * avg / l.cfg.Leverage
		dCash = -fee
		if o.ReduceOnly {
			dCash += margin
		} else {
			dCash -= margin
		}
		dSize = filled
		if !o.IsBuy() {
			dSize = -filled
		}
	default:
		fee = l.baseFee(o.Fee(), avg)
		if o.IsBuy() {
			// spot buy fees are charged in the base asset
			dSize = filled - fee
			dCash = -filled * avg
		} else {
			dSize = -filled
			dCash = filled*avg - fee*avg
		}
	}

	next := nextPosition(l.pos, dSize, avg)
	l.cash += dCash
	l.pos = next

	l.bus.Publish(events.EventPositionChange, l.pos)
	l.log.WithFields(logrus.Fields{
		"order_id": o.ID,
		"d_cash":   dCash,
		"d_size":   dSize,
		"cash":     l.cash,
		"position": l.pos.Size,
	}).Debug("fill applied")
}

// baseFee expresses a spot fee in base units. OKX charges spot sells in the
// quote currency; the spot formulas take the fee in base units.
func (l *Ledger) baseFee(fee common.Fee, avg float64) float64 {
	if fee.Currency != "" && fee.Currency == l.market.Quote && avg > 0 {
		return fee.Cost / avg
	}
	return fee.Cost
}

// nextPosition applies a signed size change at price. The average price is
// size-weighted while the position grows, kept while it shrinks, and
// restarts at price when the position flips side.
func nextPosition(p Position, dSize, price float64) Position {
	size := p.Size + dSize
	switch {
	case isZero(size):
		p.Size, p.AvgPrice = 0, 0
		return p
	case isZero(p.Size) || math.Signbit(size) != math.Signbit(p.Size):
		p.AvgPrice = price
	case math.Abs(size) > math.Abs(p.Size):
		p.AvgPrice = (p.AvgPrice*math.Abs(p.Size) + price*math.Abs(dSize)) / math.Abs(size)
	}
	p.Size = size
	return p
}

func isZero(v float64) bool { return math.Abs(v) < 1e-12 }
