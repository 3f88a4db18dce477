package common

import (
	"context"
	"errors"
	"fmt"
)

// Gateway abstracts a trading venue.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (OrderHandle, error)
	FetchOrder(ctx context.Context, instrument, id string) (OrderSnapshot, error)
	CancelOrder(ctx context.Context, instrument, id string) error
	FetchPositions(ctx context.Context, instruments ...string) ([]Position, error)
	FetchPriceLimits(ctx context.Context, instrument string) (PriceLimit, error)
	LoadMarkets(ctx context.Context, typ InstrumentType) (map[string]Market, error)
	SetLeverage(ctx context.Context, instrument string, leverage float64, mode MarginMode) error
}

// CandleSource serves historical bars.
type CandleSource interface {
	// FetchCandles returns up to limit bars with Timestamp >= since, ascending.
	FetchCandles(ctx context.Context, instrument, interval string, since int64, limit int) ([]Candle, error)
	// ServerTime returns the venue clock in ms.
	ServerTime(ctx context.Context) (int64, error)
}

var (
	// ErrOrderRejected means the venue refused the order. It is never retried.
	ErrOrderRejected = errors.New("order rejected")
	// ErrUnsupportedKind means the venue cannot place this order kind.
	ErrUnsupportedKind = errors.New("unsupported order kind")
)

// GatewayError wraps a venue failure with the call that produced it.
type GatewayError struct {
	Op         string
	Instrument string
	OrderID    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s %s order %s: %v", e.Op, e.Instrument, e.OrderID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Instrument, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// WrapErr returns nil for a nil err, otherwise a *GatewayError. An err that
// already is a *GatewayError is returned unchanged.
func WrapErr(op, instrument, orderID string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return &GatewayError{Op: op, Instrument: instrument, OrderID: orderID, Err: err}
}
