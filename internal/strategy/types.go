package strategy

import (
	"context"

	"okx-exec/internal/ledger"
	"okx-exec/internal/order"
	"okx-exec/pkg/exchanges/common"
)

// Broker is the part of the ledger a strategy may use.
type Broker interface {
	Submit(ctx context.Context, side common.Side, kind common.OrderKind, size, price float64) (*order.Order, error)
	Cash() float64
	Position() ledger.Position
	OpenCapacity(price float64) float64
	ActiveOrders() []order.View
	Type() common.InstrumentType
}

// Strategy turns bars into orders and reacts to finished orders.
type Strategy interface {
	// Name returns the human-readable name
	Name() string
	// Init runs once before the first bar
	Init(ctx context.Context, b Broker) error
	// OnBar processes a closed bar
	OnBar(ctx context.Context, b Broker, k common.Candle) error
	// OnOrder receives every order that reached a terminal state
	OnOrder(o *order.Order)
	// State returns a serializable snapshot for status reporting
	State() any
}
