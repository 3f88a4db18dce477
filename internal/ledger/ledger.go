// Package ledger is the broker façade: it submits orders, polls their
// remote state and keeps cash and position consistent with completed fills.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"okx-exec/internal/events"
	"okx-exec/internal/order"
	"okx-exec/internal/precision"
	"okx-exec/internal/pricing"
	"okx-exec/pkg/exchanges/common"
)

var (
	// ErrMissingContractSize means a swap market has no contract size.
	ErrMissingContractSize = errors.New("market has no contract size")
	// ErrInvalidLeverage means a swap ledger was configured without leverage.
	ErrInvalidLeverage = errors.New("leverage must be positive")
	// ErrZeroSize means the size truncated to zero at the lot precision.
	ErrZeroSize = errors.New("size is zero after truncation")
	// ErrOrderNotActive means Cancel was asked for an unknown or finished order.
	ErrOrderNotActive = errors.New("order not active")
)

// spotReserve is kept back from spot buying power to absorb fees.
const spotReserve = 0.1

// Config configures a ledger for one instrument.
type Config struct {
	Instrument string
	Type       common.InstrumentType
	Leverage   float64 // swap only
	MarginMode common.MarginMode
	Cash       float64
}

// Position is the locally tracked position.
type Position struct {
	Instrument string            `json:"instrument"`
	Size       float64           `json:"size"` // signed; contracts for swap, base units for spot
	AvgPrice   float64           `json:"avg_price"`
	MarginMode common.MarginMode `json:"margin_mode,omitempty"`
}

// Ledger owns cash, position and the set of active orders.
// Every method is serialized on one mutex.
type Ledger struct {
	mu sync.Mutex

	gw     common.Gateway
	norm   *precision.Normalizer
	adj    *pricing.Adjuster
	bus    *events.Bus
	log    *logrus.Entry
	cfg    Config
	market common.Market

	cash         float64
	startingCash float64
	pos          Position
	mark         float64
	active       []*order.Order
	pending      []*order.Order
}

// New validates the instrument, sets swap leverage and returns a ledger.
// bus may be nil.
func New(ctx context.Context, gw common.Gateway, norm *precision.Normalizer, adj *pricing.Adjuster, cfg Config, bus *events.Bus, log *logrus.Entry) (*Ledger, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	m, err := norm.Market(cfg.Instrument)
	if err != nil {
		return nil, err
	}
	if cfg.Type == "" {
		cfg.Type = m.Type
	}
	if cfg.MarginMode == "" {
		cfg.MarginMode = common.MarginIsolated
	}

	switch cfg.Type {
	case common.InstrumentSwap:
		if m.ContractSize <= 0 {
			return nil, fmt.Errorf("%s: %w", cfg.Instrument, ErrMissingContractSize)
		}
		if cfg.Leverage <= 0 {
			return nil, fmt.Errorf("%s: %w", cfg.Instrument, ErrInvalidLeverage)
		}
		if err := gw.SetLeverage(ctx, cfg.Instrument, cfg.Leverage, cfg.MarginMode); err != nil {
			return nil, fmt.Errorf("set leverage: %w", err)
		}
	case common.InstrumentSpot:
		cfg.Leverage = 1
	default:
		return nil, fmt.Errorf("unsupported instrument type %q", cfg.Type)
	}

	l := &Ledger{
		gw:           gw,
		norm:         norm,
		adj:          adj,
		bus:          bus,
		cfg:          cfg,
		market:       m,
		cash:         cfg.Cash,
		startingCash: cfg.Cash,
		pos:          Position{Instrument: cfg.Instrument},
		log: log.WithFields(logrus.Fields{
			"component":  "ledger",
			"instrument": cfg.Instrument,
		}),
	}
	if cfg.Type == common.InstrumentSwap {
		l.pos.MarginMode = cfg.MarginMode
	}
	l.log.WithFields(logrus.Fields{"type": cfg.Type, "cash": cfg.Cash, "leverage": cfg.Leverage}).Info("ledger ready")
	return l, nil
}

// Instrument returns the traded instrument id.
func (l *Ledger) Instrument() string { return l.cfg.Instrument }

// Type returns the instrument type.
func (l *Ledger) Type() common.InstrumentType { return l.cfg.Type }

// Market returns the instrument metadata.
func (l *Ledger) Market() common.Market { return l.market }

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// StartingCash returns the baseline used for return reporting.
func (l *Ledger) StartingCash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startingCash
}

// SetCash overwrites both the cash balance and the starting baseline.
func (l *Ledger) SetCash(cash float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cash, l.startingCash = cash, cash
}

// Position returns the tracked position.
func (l *Ledger) Position() Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pos
}

// MarkPrice records the last close, used for valuation.
func (l *Ledger) MarkPrice(price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if price > 0 {
		l.mark = price
	}
}

// Value is cash plus the spot position marked at the last close.
// Swap positions add nothing beyond cash.
func (l *Ledger) Value() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value()
}

func (l *Ledger) value() float64 {
	v := l.cash
	if l.cfg.Type == common.InstrumentSpot {
		v += l.pos.Size * l.mark
	}
	return v
}

// ReturnRate is (value - starting) / starting.
func (l *Ledger) ReturnRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startingCash == 0 {
		return 0
	}
	return (l.value() - l.startingCash) / l.startingCash
}

// OpenCapacity is how much can be opened at price with the current cash:
// contracts for swap, base units for spot.
func (l *Ledger) OpenCapacity(price float64) float64 {
	if price <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.Type == common.InstrumentSwap {
		return l.cash * l.cfg.Leverage / (l.market.ContractSize * price)
	}
	return (l.cash - spotReserve) / price
}

// ActiveOrders returns views of orders not yet terminal.
func (l *Ledger) ActiveOrders() []order.View {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]order.View, 0, len(l.active))
	for _, o := range l.active {
		out = append(out, o.View())
	}
	return out
}

// Notifications drains the terminal orders queued since the last call.
func (l *Ledger) Notifications() []*order.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	return out
}

// Snapshot is a consistent view of the account.
type Snapshot struct {
	Instrument   string                `json:"instrument"`
	Type         common.InstrumentType `json:"type"`
	Cash         float64               `json:"cash"`
	StartingCash float64               `json:"starting_cash"`
	Value        float64               `json:"value"`
	Mark         float64               `json:"mark"`
	Leverage     float64               `json:"leverage"`
	Position     Position              `json:"position"`
	ActiveOrders int                   `json:"active_orders"`
}

// Snapshot returns all account figures under one lock.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Instrument:   l.cfg.Instrument,
		Type:         l.cfg.Type,
		Cash:         l.cash,
		StartingCash: l.startingCash,
		Value:        l.value(),
		Mark:         l.mark,
		Leverage:     l.cfg.Leverage,
		Position:     l.pos,
		ActiveOrders: len(l.active),
	}
}
