package db

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

const orderColumns = `ref, order_id, instrument, side, kind, price, size, filled, average, fee, fee_ccy, reduce_only, status, reason, created_at, updated_at`

func scanOrder(s interface{ Scan(...any) error }) (Order, error) {
	var o Order
	err := s.Scan(&o.Ref, &o.OrderID, &o.Instrument, &o.Side, &o.Kind, &o.Price, &o.Size,
		&o.Filled, &o.Average, &o.Fee, &o.FeeCcy, &o.ReduceOnly, &o.Status, &o.Reason,
		&o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// ListOrders returns the most recent orders, newest first. An empty
// instrument matches all.
func (d *Database) ListOrders(ctx context.Context, instrument string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE (? = '' OR instrument = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, instrument, instrument, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetOrder looks an order up by local reference.
func (d *Database) GetOrder(ctx context.Context, ref string) (*Order, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE ref = ?`, ref)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListPositions returns every journaled position.
func (d *Database) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT instrument, size, avg_price, updated_at FROM positions ORDER BY instrument`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Instrument, &p.Size, &p.AvgPrice, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListDrift returns the latest drift reports, newest first.
func (d *Database) ListDrift(ctx context.Context, limit int) ([]Drift, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, instrument, local_size, remote_size, diff, checked_at
		FROM drift_reports
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Drift
	for rows.Next() {
		var r Drift
		if err := rows.Scan(&r.ID, &r.Instrument, &r.LocalSize, &r.RemoteSize, &r.Diff, &r.CheckedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
