package db

import (
	"context"
	"time"
)

// Order is one journaled order, keyed by the local reference.
type Order struct {
	Ref        string    `json:"ref"`
	OrderID    string    `json:"order_id"`
	Instrument string    `json:"instrument"`
	Side       string    `json:"side"`
	Kind       string    `json:"kind"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	Filled     float64   `json:"filled"`
	Average    float64   `json:"average"`
	Fee        float64   `json:"fee"`
	FeeCcy     string    `json:"fee_ccy"`
	ReduceOnly bool      `json:"reduce_only"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Position is the last known local position per instrument.
type Position struct {
	Instrument string    `json:"instrument"`
	Size       float64   `json:"size"`
	AvgPrice   float64   `json:"avg_price"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Drift is one reconciliation finding.
type Drift struct {
	ID         int64     `json:"id"`
	Instrument string    `json:"instrument"`
	LocalSize  float64   `json:"local_size"`
	RemoteSize float64   `json:"remote_size"`
	Diff       float64   `json:"diff"`
	CheckedAt  time.Time `json:"checked_at"`
}

const upsertOrderSQL = `
	INSERT INTO orders (ref, order_id, instrument, side, kind, price, size, filled, average, fee, fee_ccy, reduce_only, status, reason, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(ref) DO UPDATE SET
		order_id = excluded.order_id,
		filled = excluded.filled,
		average = excluded.average,
		fee = excluded.fee,
		fee_ccy = excluded.fee_ccy,
		reduce_only = excluded.reduce_only,
		status = excluded.status,
		reason = excluded.reason,
		updated_at = excluded.updated_at
	WHERE orders.status NOT IN ('Completed', 'Canceled', 'Rejected')
`

// UpsertOrderStmt returns the statement and arguments that upsert o, for
// callers that batch writes. A row already in a terminal status is left
// unchanged.
func UpsertOrderStmt(o Order) (string, []any) {
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	return upsertOrderSQL, []any{
		o.Ref, o.OrderID, o.Instrument, o.Side, o.Kind, o.Price, o.Size,
		o.Filled, o.Average, o.Fee, o.FeeCcy, o.ReduceOnly, o.Status, o.Reason,
		o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	}
}

// UpsertOrder inserts or updates an order row.
func (d *Database) UpsertOrder(ctx context.Context, o Order) error {
	q, args := UpsertOrderStmt(o)
	_, err := d.DB.ExecContext(ctx, q, args...)
	return err
}

const upsertPositionSQL = `
	INSERT INTO positions (instrument, size, avg_price, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(instrument) DO UPDATE SET
		size = excluded.size,
		avg_price = excluded.avg_price,
		updated_at = excluded.updated_at
`

// UpsertPositionStmt returns the statement and arguments that upsert p.
func UpsertPositionStmt(p Position) (string, []any) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	return upsertPositionSQL, []any{p.Instrument, p.Size, p.AvgPrice, p.UpdatedAt.UTC()}
}

// UpsertPosition inserts or updates a position row.
func (d *Database) UpsertPosition(ctx context.Context, p Position) error {
	q, args := UpsertPositionStmt(p)
	_, err := d.DB.ExecContext(ctx, q, args...)
	return err
}

const insertDriftSQL = `
	INSERT INTO drift_reports (instrument, local_size, remote_size, diff, checked_at)
	VALUES (?, ?, ?, ?, ?)
`

// InsertDriftStmt returns the statement and arguments that record r.
func InsertDriftStmt(r Drift) (string, []any) {
	return insertDriftSQL, []any{r.Instrument, r.LocalSize, r.RemoteSize, r.Diff, r.CheckedAt.UTC()}
}

// InsertDrift records a reconciliation finding.
func (d *Database) InsertDrift(ctx context.Context, r Drift) error {
	q, args := InsertDriftStmt(r)
	_, err := d.DB.ExecContext(ctx, q, args...)
	return err
}
