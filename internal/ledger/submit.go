package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"okx-exec/internal/events"
	"okx-exec/internal/order"
	"okx-exec/pkg/exchanges/common"
)

// Submit adjusts, truncates and places an order. An exchange rejection is
// not an error: it yields a Rejected order that is also queued as a
// notification. Transport failures are returned and nothing is recorded.
// The returned order is a copy.
func (l *Ledger) Submit(ctx context.Context, side common.Side, kind common.OrderKind, size, price float64) (*order.Order, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("invalid side %q", side)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid order kind %q", kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	inst := l.cfg.Instrument
	switch kind {
	case common.KindMarket:
		// a market order carries no price, so neither slippage nor the
		// price-limit band applies; OKX bounds the fill itself
		price = 0
	case common.KindLimit, common.KindStop, common.KindStopLimit:
		adjusted, err := l.adj.Adjust(ctx, inst, side, price)
		if err != nil {
			l.log.WithError(err).WithField("op", "fetch_price_limits").Error("price adjustment failed")
			return nil, err
		}
		price = adjusted
	}

	px, sz, err := l.norm.Normalize(inst, price, size)
	if err != nil {
		return nil, err
	}
	if !sz.IsPositive() {
		return nil, fmt.Errorf("%s %s %v: %w", inst, side, size, ErrZeroSize)
	}
	pf, _ := px.Float64()
	sf, _ := sz.Float64()

	req := common.OrderRequest{
		Instrument: inst,
		Type:       l.cfg.Type,
		Side:       side,
		Kind:       kind,
		Size:       sz,
		ClientID:   order.NewRef(),
	}
	switch kind {
	case common.KindLimit, common.KindStopLimit:
		req.Price = px
	case common.KindStop:
		req.StopPrice = px
	}
	if l.cfg.Type == common.InstrumentSwap {
		req.MarginMode = l.cfg.MarginMode
		req.ReduceOnly = closes(l.pos.Size, side, sf)
	}

	fields := logrus.Fields{"side": side, "kind": kind, "price": pf, "size": sf, "reduce_only": req.ReduceOnly}
	h, err := l.gw.CreateOrder(ctx, req)
	if errors.Is(err, common.ErrOrderRejected) {
		o := order.NewRejected(req.ClientID, inst, side, kind, pf, sf, err.Error())
		l.pending = append(l.pending, o.Clone())
		l.bus.Publish(events.EventOrderTerminal, o.View())
		l.log.WithFields(fields).WithError(err).Warn("order rejected")
		return o.Clone(), nil
	}
	if err != nil {
		l.log.WithFields(fields).WithError(err).WithField("op", "create_order").Error("order submission failed")
		return nil, err
	}

	o := order.New(req.ClientID, h, inst, side, kind, pf, sf, req.ReduceOnly)
	l.active = append(l.active, o)
	l.bus.Publish(events.EventOrderSubmitted, o.View())
	l.log.WithFields(fields).WithField("order_id", h.ID).Info("order submitted")
	return o.Clone(), nil
}

// closes reports whether an order of side and size is fully covered by the
// existing position in the closing direction.
func closes(pos float64, side common.Side, size float64) bool {
	switch side {
	case common.SideSell:
		return pos > 0 && pos >= size
	case common.SideBuy:
		return pos < 0 && -pos >= size
	}
	return false
}

// Cancel asks the exchange to cancel an active order. The state change is
// picked up by the next Poll.
func (l *Ledger) Cancel(ctx context.Context, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.active {
		if o.Ref != ref {
			continue
		}
		if err := l.gw.CancelOrder(ctx, o.Instrument, o.ID); err != nil {
			l.log.WithError(err).WithFields(logrus.Fields{"order_id": o.ID, "op": "cancel_order"}).Error("cancel failed")
			return err
		}
		l.log.WithField("order_id", o.ID).Info("cancel requested")
		return nil
	}
	return fmt.Errorf("%s: %w", ref, ErrOrderNotActive)
}
