// Package engine drives one strategy over one ledger and exposes a
// read-only view of both to the status API.
package engine

import (
	"okx-exec/internal/ledger"
	"okx-exec/internal/order"
)

// Service is what the API layer may ask of a running engine.
type Service interface {
	Account() ledger.Snapshot
	OpenOrders() []order.View
	StrategyStatus() StrategyStatus
	SystemStatus() SystemStatus
}
