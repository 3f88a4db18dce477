package common

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	switch s {
	case SideBuy, SideSell:
		return true
	}
	return false
}

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(v string) (Side, error) {
	s := Side(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown side %q", v)
	}
	return s, nil
}

// OrderKind denotes the execution kind of an order.
type OrderKind string

const (
	KindMarket    OrderKind = "market"
	KindLimit     OrderKind = "limit"
	KindStop      OrderKind = "stop"
	KindStopLimit OrderKind = "stop_limit"
)

// Valid reports whether k is one of the known kinds.
func (k OrderKind) Valid() bool {
	switch k {
	case KindMarket, KindLimit, KindStop, KindStopLimit:
		return true
	}
	return false
}

// Priced reports whether the kind carries a limit price.
func (k OrderKind) Priced() bool {
	switch k {
	case KindLimit, KindStopLimit:
		return true
	}
	return false
}

// ParseOrderKind accepts the lower-case kind names plus "stoplimit".
func ParseOrderKind(v string) (OrderKind, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	if s == "stoplimit" {
		s = string(KindStopLimit)
	}
	k := OrderKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown order kind %q", v)
	}
	return k, nil
}

// InstrumentType distinguishes spot vs perpetual swap venues.
type InstrumentType string

const (
	InstrumentSpot InstrumentType = "SPOT"
	InstrumentSwap InstrumentType = "SWAP"
)

// ParseInstrumentType accepts "spot"/"swap" in any case.
func ParseInstrumentType(v string) (InstrumentType, error) {
	t := InstrumentType(strings.ToUpper(strings.TrimSpace(v)))
	switch t {
	case InstrumentSpot, InstrumentSwap:
		return t, nil
	}
	return "", fmt.Errorf("unknown instrument type %q", v)
}

// MarginMode is the swap margin mode.
type MarginMode string

const (
	MarginIsolated MarginMode = "isolated"
	MarginCross    MarginMode = "cross"
)

// RemoteStatus is the exchange-reported order status, normalized to the
// open/closed/canceled vocabulary. Anything else is treated as a rejection.
type RemoteStatus string

const (
	RemoteOpen     RemoteStatus = "open"
	RemoteClosed   RemoteStatus = "closed"
	RemoteCanceled RemoteStatus = "canceled"
	RemoteRejected RemoteStatus = "rejected"
)

// OrderRequest captures an order intent to be sent to an exchange.
// Price and Size are already adjusted and truncated.
type OrderRequest struct {
	Instrument string
	Type       InstrumentType
	Side       Side
	Kind       OrderKind
	Size       decimal.Decimal
	Price      decimal.Decimal // zero for market
	StopPrice  decimal.Decimal // stop kinds only
	ClientID   string
	MarginMode MarginMode // swap only
	ReduceOnly bool
}

// OrderHandle is the exchange ack.
type OrderHandle struct {
	ID       string
	ClientID string
	Status   RemoteStatus
}

// Fee is the cumulative fee charged on an order, as a positive cost.
type Fee struct {
	Cost     float64
	Currency string
}

// OrderSnapshot is a point-in-time view of a remote order.
type OrderSnapshot struct {
	ID         string
	ClientID   string
	Instrument string
	Status     RemoteStatus
	Side       Side
	Price      float64
	Average    float64 // zero when the exchange reports none
	Filled     float64
	Fee        Fee
	ReduceOnly bool
	Timestamp  int64
}

// Market carries the precision metadata of one instrument.
type Market struct {
	ID           string
	Type         InstrumentType
	Base         string
	Quote        string
	PriceTick    decimal.Decimal
	AmountStep   decimal.Decimal
	ContractSize float64 // swap only
}

// PriceLimit is the exchange's current acceptable price band.
// A non-positive bound means no limit on that side.
type PriceLimit struct {
	Buy  float64
	Sell float64
}

// Position is a remote position as reported by the exchange.
type Position struct {
	Instrument string
	Size       float64 // signed, in contracts
	AvgPrice   float64
	MarginMode MarginMode
}

// Candle is one OHLCV bar. Timestamp is the bar open time in ms.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Confirmed bool
}
