package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"okx-exec/internal/events"
	"okx-exec/internal/ledger"
	"okx-exec/internal/monitor"
	"okx-exec/internal/order"
	"okx-exec/internal/strategy"
	"okx-exec/pkg/exchanges/common"
)

// BarSource yields closed bars in order.
type BarSource interface {
	Next(ctx context.Context) (common.Candle, error)
}

// Marker receives the last close. The paper gateway implements it to fill
// market orders at the current price.
type Marker interface {
	SetMark(instrument string, price float64)
}

// Config holds the configuration for creating a Runner.
type Config struct {
	Ledger   *ledger.Ledger
	Strategy strategy.Strategy
	Bars     BarSource
	Marker   Marker // optional
	Bus      *events.Bus
	Metrics  *monitor.Metrics // optional
	Meta     SystemStatus
	Log      *logrus.Entry
}

// Runner feeds bars to a strategy. For every bar it marks the ledger,
// polls order state, hands finished orders to the strategy and only then
// calls OnBar, so a strategy always sees fills before the bar that follows
// them.
type Runner struct {
	ledger *ledger.Ledger
	strat  strategy.Strategy
	bars   BarSource
	marker Marker
	bus    *events.Bus
	mets   *monitor.Metrics
	log    *logrus.Entry

	mu      sync.Mutex
	meta    SystemStatus
	count   int
	lastBar int64
	errs    int
}

var _ Service = (*Runner)(nil)

// New creates a runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Ledger == nil || cfg.Strategy == nil || cfg.Bars == nil {
		return nil, errors.New("engine needs a ledger, a strategy and a bar source")
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	meta := cfg.Meta
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now()
	}
	if meta.Instrument == "" {
		meta.Instrument = cfg.Ledger.Instrument()
	}
	return &Runner{
		ledger: cfg.Ledger,
		strat:  cfg.Strategy,
		bars:   cfg.Bars,
		marker: cfg.Marker,
		bus:    cfg.Bus,
		mets:   cfg.Metrics,
		meta:   meta,
		log:    log.WithFields(logrus.Fields{"component": "engine", "strategy": cfg.Strategy.Name()}),
	}, nil
}

// Run initialises the strategy and processes bars until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.strat.Init(ctx, r.ledger); err != nil {
		return fmt.Errorf("init %s: %w", r.strat.Name(), err)
	}
	r.log.Info("engine started")
	for {
		k, err := r.bars.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.flush()
				r.log.Info("engine stopped")
				return nil
			}
			return fmt.Errorf("next bar: %w", err)
		}
		if err := r.Step(ctx, k); err != nil {
			r.log.WithError(err).WithField("ts", k.Timestamp).Error("strategy failed on bar")
		}
	}
}

// Step processes a single bar. The returned error is the strategy's; the
// rest of the step has already happened.
func (r *Runner) Step(ctx context.Context, k common.Candle) error {
	if r.mets != nil {
		defer monitor.NewTimer(r.mets.StepLatency).Stop()
	}
	inst := r.ledger.Instrument()
	if r.marker != nil {
		r.marker.SetMark(inst, k.Close)
	}
	r.ledger.MarkPrice(k.Close)
	r.ledger.Poll(ctx)
	r.dispatch()

	r.bus.Publish(events.EventBar, k)
	err := r.strat.OnBar(ctx, r.ledger, k)

	r.mu.Lock()
	r.count++
	r.lastBar = k.Timestamp
	if err != nil {
		r.errs++
	}
	r.mu.Unlock()
	if err != nil && r.mets != nil {
		r.mets.IncrementErrors()
	}
	return err
}

func (r *Runner) dispatch() {
	for _, o := range r.ledger.Notifications() {
		r.strat.OnOrder(o)
	}
}

// flush delivers notifications that arrived after the last bar.
func (r *Runner) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.ledger.Poll(ctx)
	r.dispatch()
}

// --- Service ---

func (r *Runner) Account() ledger.Snapshot { return r.ledger.Snapshot() }

func (r *Runner) OpenOrders() []order.View { return r.ledger.ActiveOrders() }

func (r *Runner) StrategyStatus() StrategyStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return StrategyStatus{
		Name:    r.strat.Name(),
		Bars:    r.count,
		LastBar: r.lastBar,
		Errors:  r.errs,
		State:   r.strat.State(),
	}
}

func (r *Runner) SystemStatus() SystemStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.meta
	s.Uptime = time.Since(s.StartedAt).Truncate(time.Second).String()
	return s
}
