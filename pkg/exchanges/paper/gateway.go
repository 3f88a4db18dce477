// Package paper implements an in-memory venue used for dry runs and tests.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"okx-exec/pkg/exchanges/common"
)

// ErrOrderNotFound is returned for unknown order ids.
var ErrOrderNotFound = errors.New("order not found")

// Reference is where a dry run reads real instrument metadata and price bands.
type Reference interface {
	LoadMarkets(ctx context.Context, typ common.InstrumentType) (map[string]common.Market, error)
	FetchPriceLimits(ctx context.Context, instrument string) (common.PriceLimit, error)
}

// Config tunes the simulation.
type Config struct {
	FeeRate     float64 // decimal, e.g. 0.001 = 10 bps
	SlippageBps float64 // random adverse slippage applied to fills
	LimitBand   float64 // price band around the mark when no reference is set, e.g. 0.05
	ManualFills bool    // orders stay open until Fill or SetStatus
}

type paperOrder struct {
	req  common.OrderRequest
	snap common.OrderSnapshot
}

// Gateway is a common.Gateway that fills orders locally.
type Gateway struct {
	mu        sync.Mutex
	cfg       Config
	ref       Reference
	markets   map[common.InstrumentType]map[string]common.Market
	limits    map[string]common.PriceLimit
	marks     map[string]float64
	orders    map[string]*paperOrder
	positions map[string]common.Position
	leverage  map[string]float64
	failures  map[string][]error
	seq       int
	rng       *rand.Rand
	log       *logrus.Entry
}

// New creates a paper gateway. ref may be nil.
func New(cfg Config, ref Reference, log *logrus.Entry) *Gateway {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Gateway{
		cfg:       cfg,
		ref:       ref,
		markets:   make(map[common.InstrumentType]map[string]common.Market),
		limits:    make(map[string]common.PriceLimit),
		marks:     make(map[string]float64),
		orders:    make(map[string]*paperOrder),
		positions: make(map[string]common.Position),
		leverage:  make(map[string]float64),
		failures:  make(map[string][]error),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       log.WithField("component", "paper"),
	}
}

// AddMarket seeds instrument metadata.
func (g *Gateway) AddMarket(m common.Market) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.markets[m.Type] == nil {
		g.markets[m.Type] = make(map[string]common.Market)
	}
	g.markets[m.Type][m.ID] = m
}

// SetPriceLimit seeds a fixed price band for instrument.
func (g *Gateway) SetPriceLimit(instrument string, lim common.PriceLimit) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits[instrument] = lim
}

// SetMark records the latest traded price, used to fill market orders.
func (g *Gateway) SetMark(instrument string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marks[instrument] = price
}

// Fail queues err to be returned by the next call of op
// ("create_order", "fetch_order", "cancel_order", ...).
func (g *Gateway) Fail(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], err)
}

// SetStatus forces the remote state of an order. filled and avg apply to
// closed and partially open orders.
func (g *Gateway) SetStatus(id string, status common.RemoteStatus, filled, avg, fee float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.snap.Status = status
	o.snap.Filled = filled
	o.snap.Average = avg
	o.snap.Fee.Cost = fee
	o.snap.Timestamp = time.Now().UnixMilli()
	if status == common.RemoteClosed {
		g.applyPosition(o)
	}
	return nil
}

// Fill completes an open order at its own price (or the mark for market orders).
func (g *Gateway) Fill(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	g.fill(o)
	return nil
}

func (g *Gateway) takeFailure(op string) error {
	q := g.failures[op]
	if len(q) == 0 {
		return nil
	}
	g.failures[op] = q[1:]
	return q[0]
}

// CreateOrder records an open order.
func (g *Gateway) CreateOrder(ctx context.Context, req common.OrderRequest) (common.OrderHandle, error) {
	const op = "create_order"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(op); err != nil {
		return common.OrderHandle{}, common.WrapErr(op, req.Instrument, "", err)
	}
	switch req.Kind {
	case common.KindMarket, common.KindLimit:
	default:
		return common.OrderHandle{}, common.WrapErr(op, req.Instrument, "", fmt.Errorf("%w: %s", common.ErrUnsupportedKind, req.Kind))
	}
	if !req.Size.IsPositive() {
		return common.OrderHandle{}, common.WrapErr(op, req.Instrument, "", fmt.Errorf("%w: size %s", common.ErrOrderRejected, req.Size))
	}

	g.seq++
	id := strconv.Itoa(g.seq)
	price, _ := req.Price.Float64()
	g.orders[id] = &paperOrder{
		req: req,
		snap: common.OrderSnapshot{
			ID:         id,
			ClientID:   req.ClientID,
			Instrument: req.Instrument,
			Status:     common.RemoteOpen,
			Side:       req.Side,
			Price:      price,
			ReduceOnly: req.ReduceOnly,
			Timestamp:  time.Now().UnixMilli(),
		},
	}
	g.log.WithFields(logrus.Fields{"order_id": id, "instrument": req.Instrument, "side": req.Side, "size": req.Size.String()}).Debug("paper order accepted")
	return common.OrderHandle{ID: id, ClientID: req.ClientID, Status: common.RemoteOpen}, nil
}

// FetchOrder returns the order, filling it first unless fills are manual.
func (g *Gateway) FetchOrder(ctx context.Context, instrument, id string) (common.OrderSnapshot, error) {
	const op = "fetch_order"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(op); err != nil {
		return common.OrderSnapshot{}, common.WrapErr(op, instrument, id, err)
	}
	o, ok := g.orders[id]
	if !ok {
		return common.OrderSnapshot{}, common.WrapErr(op, instrument, id, ErrOrderNotFound)
	}
	if !g.cfg.ManualFills && o.snap.Status == common.RemoteOpen {
		g.fill(o)
	}
	return o.snap, nil
}

func (g *Gateway) fill(o *paperOrder) {
	if o.snap.Status != common.RemoteOpen {
		return
	}
	price := o.snap.Price
	if o.req.Kind == common.KindMarket || price <= 0 {
		price = g.marks[o.req.Instrument]
	}
	if price <= 0 {
		// nothing to fill against yet
		return
	}
	if frac := g.cfg.SlippageBps / 10000; frac > 0 && o.req.Kind == common.KindMarket {
		noise := g.rng.Float64() * frac
		if o.req.Side == common.SideBuy {
			price *= 1 + noise
		} else {
			price *= 1 - noise
		}
	}
	size, _ := o.req.Size.Float64()
	o.snap.Status = common.RemoteClosed
	o.snap.Filled = size
	o.snap.Average = price
	o.snap.Timestamp = time.Now().UnixMilli()

	// spot fees are charged in base units, swap fees in quote
	m := g.markets[o.req.Type][o.req.Instrument]
	if o.req.Type == common.InstrumentSwap {
		cs := m.ContractSize
		if cs == 0 {
			cs = 1
		}
		o.snap.Fee = common.Fee{Cost: size * cs * price * g.cfg.FeeRate, Currency: m.Quote}
	} else {
		o.snap.Fee = common.Fee{Cost: size * g.cfg.FeeRate, Currency: m.Base}
	}
	g.applyPosition(o)
}

func (g *Gateway) applyPosition(o *paperOrder) {
	p := g.positions[o.req.Instrument]
	p.Instrument = o.req.Instrument
	p.MarginMode = o.req.MarginMode
	delta := o.snap.Filled
	if o.req.Side == common.SideSell {
		delta = -delta
	}
	if (p.Size >= 0 && delta > 0) || (p.Size <= 0 && delta < 0) {
		total := p.Size + delta
		if total != 0 {
			p.AvgPrice = (p.AvgPrice*abs(p.Size) + o.snap.Average*abs(delta)) / abs(total)
		}
	}
	p.Size += delta
	if p.Size == 0 {
		p.AvgPrice = 0
	}
	g.positions[o.req.Instrument] = p
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// CancelOrder cancels an open order.
func (g *Gateway) CancelOrder(ctx context.Context, instrument, id string) error {
	const op = "cancel_order"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(op); err != nil {
		return common.WrapErr(op, instrument, id, err)
	}
	o, ok := g.orders[id]
	if !ok {
		return common.WrapErr(op, instrument, id, ErrOrderNotFound)
	}
	if o.snap.Status != common.RemoteOpen {
		return common.WrapErr(op, instrument, id, fmt.Errorf("order is %s", o.snap.Status))
	}
	o.snap.Status = common.RemoteCanceled
	o.snap.Timestamp = time.Now().UnixMilli()
	return nil
}

// FetchPositions returns the simulated positions with non-zero size.
func (g *Gateway) FetchPositions(ctx context.Context, instruments ...string) ([]common.Position, error) {
	const op = "fetch_positions"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(op); err != nil {
		return nil, common.WrapErr(op, "", "", err)
	}
	want := make(map[string]bool, len(instruments))
	for _, inst := range instruments {
		want[inst] = true
	}
	var out []common.Position
	for inst, p := range g.positions {
		if p.Size == 0 || (len(want) > 0 && !want[inst]) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// FetchPriceLimits returns the reference band, then a seeded band, then a
// band around the mark.
func (g *Gateway) FetchPriceLimits(ctx context.Context, instrument string) (common.PriceLimit, error) {
	const op = "fetch_price_limits"
	g.mu.Lock()
	if err := g.takeFailure(op); err != nil {
		g.mu.Unlock()
		return common.PriceLimit{}, common.WrapErr(op, instrument, "", err)
	}
	lim, seeded := g.limits[instrument]
	mark := g.marks[instrument]
	ref := g.ref
	g.mu.Unlock()

	if seeded {
		return lim, nil
	}
	if ref != nil {
		return ref.FetchPriceLimits(ctx, instrument)
	}
	if mark > 0 && g.cfg.LimitBand > 0 {
		return common.PriceLimit{Buy: mark * (1 + g.cfg.LimitBand), Sell: mark * (1 - g.cfg.LimitBand)}, nil
	}
	return common.PriceLimit{}, nil
}

// LoadMarkets returns seeded markets merged over the reference's.
func (g *Gateway) LoadMarkets(ctx context.Context, typ common.InstrumentType) (map[string]common.Market, error) {
	out := make(map[string]common.Market)
	if g.ref != nil {
		ms, err := g.ref.LoadMarkets(ctx, typ)
		if err != nil {
			return nil, err
		}
		for k, v := range ms {
			out[k] = v
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, v := range g.markets[typ] {
		out[k] = v
	}
	// keep a copy so fee currency and contract size stay known
	if g.markets[typ] == nil {
		g.markets[typ] = make(map[string]common.Market)
	}
	for k, v := range out {
		g.markets[typ][k] = v
	}
	return out, nil
}

// SetLeverage records the leverage.
func (g *Gateway) SetLeverage(ctx context.Context, instrument string, leverage float64, mode common.MarginMode) error {
	const op = "set_leverage"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(op); err != nil {
		return common.WrapErr(op, instrument, "", err)
	}
	if leverage <= 0 {
		return common.WrapErr(op, instrument, "", fmt.Errorf("invalid leverage %v", leverage))
	}
	g.leverage[instrument] = leverage
	return nil
}

// Leverage returns the last leverage set for instrument.
func (g *Gateway) Leverage(instrument string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.leverage[instrument]
}

var _ common.Gateway = (*Gateway)(nil)
