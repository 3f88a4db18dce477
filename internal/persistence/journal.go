package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"okx-exec/internal/events"
	"okx-exec/internal/ledger"
	"okx-exec/internal/order"
	"okx-exec/internal/reconciliation"
	"okx-exec/pkg/db"
)

// Journal records order lifecycle, position changes and drift reports
// from the bus. Writes are batched; reads flush first.
type Journal struct {
	db  *db.Database
	bw  *BatchWriter
	bus *events.Bus
	log *logrus.Entry

	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	unsubs []func()
}

// NewJournal creates a journal over an already migrated database.
func NewJournal(d *db.Database, bus *events.Bus, flushInterval time.Duration, log *logrus.Entry) *Journal {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "journal")
	return &Journal{
		db:   d,
		bw:   NewBatchWriter(d.DB, 50, flushInterval, log),
		bus:  bus,
		log:  log,
		stop: make(chan struct{}),
	}
}

// Start subscribes to the bus and writes events until ctx ends or Close.
func (j *Journal) Start(ctx context.Context) {
	submitted, u1 := j.bus.Subscribe(events.EventOrderSubmitted, 256)
	terminal, u2 := j.bus.Subscribe(events.EventOrderTerminal, 256)
	positions, u3 := j.bus.Subscribe(events.EventPositionChange, 256)
	drift, u4 := j.bus.Subscribe(events.EventPositionDrift, 64)
	j.unsubs = []func(){u1, u2, u3, u4}
	chans := []<-chan any{submitted, terminal, positions, drift}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for {
			select {
			case v := <-submitted:
				j.record(v)
			case v := <-terminal:
				j.record(v)
			case v := <-positions:
				j.record(v)
			case v := <-drift:
				j.record(v)
			case <-ctx.Done():
				j.drain(chans)
				return
			case <-j.stop:
				j.drain(chans)
				return
			}
		}
	}()
	j.log.Info("journal started")
}

func (j *Journal) drain(chans []<-chan any) {
	for _, ch := range chans {
	loop:
		for {
			select {
			case v, ok := <-ch:
				if !ok {
					break loop
				}
				j.record(v)
			default:
				break loop
			}
		}
	}
}

func (j *Journal) record(v any) {
	switch p := v.(type) {
	case order.View:
		j.bw.Write(db.UpsertOrderStmt(orderRow(p)))
	case ledger.Position:
		j.bw.Write(db.UpsertPositionStmt(db.Position{Instrument: p.Instrument, Size: p.Size, AvgPrice: p.AvgPrice}))
	case reconciliation.PositionDiff:
		j.bw.Write(db.InsertDriftStmt(db.Drift{
			Instrument: p.Instrument,
			LocalSize:  p.LocalSize,
			RemoteSize: p.RemoteSize,
			Diff:       p.Difference,
			CheckedAt:  p.CheckedAt,
		}))
	case nil:
	default:
		j.log.WithField("type", fmt.Sprintf("%T", v)).Debug("unexpected journal payload")
	}
}

func orderRow(v order.View) db.Order {
	created := v.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return db.Order{
		Ref:        v.Ref,
		OrderID:    v.ID,
		Instrument: v.Instrument,
		Side:       v.Side,
		Kind:       v.Kind,
		Price:      v.Price,
		Size:       v.Size,
		Filled:     v.Filled,
		Average:    v.Average,
		Fee:        v.Fee,
		FeeCcy:     v.FeeCcy,
		ReduceOnly: v.ReduceOnly,
		Status:     v.Status,
		Reason:     v.Reason,
		CreatedAt:  created,
		UpdatedAt:  v.UpdatedAt,
	}
}

// Orders flushes pending writes and returns the latest orders.
func (j *Journal) Orders(ctx context.Context, instrument string, limit int) ([]db.Order, error) {
	if err := j.bw.Flush(); err != nil {
		return nil, err
	}
	return j.db.ListOrders(ctx, instrument, limit)
}

// Drift flushes pending writes and returns the latest drift reports.
func (j *Journal) Drift(ctx context.Context, limit int) ([]db.Drift, error) {
	if err := j.bw.Flush(); err != nil {
		return nil, err
	}
	return j.db.ListDrift(ctx, limit)
}

// Metrics reports batch writer counters.
func (j *Journal) Metrics() BatchWriterMetrics { return j.bw.Metrics() }

// Close stops consuming, writes what is buffered and unsubscribes.
func (j *Journal) Close() error {
	j.once.Do(func() { close(j.stop) })
	j.wg.Wait()
	for _, u := range j.unsubs {
		u()
	}
	return j.bw.Close()
}
