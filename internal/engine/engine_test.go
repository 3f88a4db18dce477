package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-exec/internal/events"
	"okx-exec/internal/ledger"
	"okx-exec/internal/monitor"
	"okx-exec/internal/order"
	"okx-exec/internal/precision"
	"okx-exec/internal/pricing"
	"okx-exec/internal/strategy"
	"okx-exec/pkg/exchanges/common"
	"okx-exec/pkg/exchanges/paper"
)

const inst = "FIL-USDT"

// scripted buys once on the first bar and records every callback.
type scripted struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Init(ctx context.Context, b strategy.Broker) error {
	s.record("init")
	return nil
}

func (s *scripted) OnBar(ctx context.Context, b strategy.Broker, k common.Candle) error {
	s.record("bar")
	if s.fail {
		return errors.New("boom")
	}
	if k.Timestamp == 1 {
		_, err := b.Submit(ctx, common.SideBuy, common.KindLimit, 10, 5)
		return err
	}
	return nil
}

func (s *scripted) OnOrder(o *order.Order) { s.record("order:" + o.Status().String()) }

func (s *scripted) State() any { return map[string]int{"calls": len(s.Calls())} }

func (s *scripted) record(c string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// sliceBars serves bars then blocks until ctx ends.
type sliceBars struct {
	mu   sync.Mutex
	bars []common.Candle
}

func (s *sliceBars) Next(ctx context.Context) (common.Candle, error) {
	s.mu.Lock()
	if len(s.bars) > 0 {
		k := s.bars[0]
		s.bars = s.bars[1:]
		s.mu.Unlock()
		return k, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return common.Candle{}, ctx.Err()
}

func setup(t *testing.T, strat strategy.Strategy, bars BarSource) (*Runner, *paper.Gateway, *events.Bus) {
	t.Helper()
	m := common.Market{
		ID: inst, Type: common.InstrumentSpot, Base: "FIL", Quote: "USDT",
		PriceTick: decimal.RequireFromString("0.001"), AmountStep: decimal.RequireFromString("0.0001"),
	}
	gw := paper.New(paper.Config{FeeRate: 0.01}, nil, nil)
	gw.AddMarket(m)
	bus := events.NewBus()
	norm := precision.New(map[string]common.Market{inst: m})
	l, err := ledger.New(context.Background(), gw, norm, pricing.NewAdjuster(gw, 0, nil),
		ledger.Config{Instrument: inst, Type: common.InstrumentSpot, Cash: 100}, bus, nil)
	require.NoError(t, err)
	r, err := New(Config{Ledger: l, Strategy: strat, Bars: bars, Marker: gw, Bus: bus, Meta: SystemStatus{Mode: "dry-run"}})
	require.NoError(t, err)
	return r, gw, bus
}

func k(ts int64, close float64) common.Candle {
	return common.Candle{Timestamp: ts, Open: close, High: close, Low: close, Close: close, Volume: 1, Confirmed: true}
}

func TestStepDeliversFillsBeforeNextBar(t *testing.T) {
	s := &scripted{}
	r, _, _ := setup(t, s, &sliceBars{})
	ctx := context.Background()

	require.NoError(t, r.Step(ctx, k(1, 5)))
	assert.Len(t, r.OpenOrders(), 1)
	require.NoError(t, r.Step(ctx, k(2, 5)))

	assert.Equal(t, []string{"bar", "order:Completed", "bar"}, s.Calls())
	acct := r.Account()
	assert.InDelta(t, 50, acct.Cash, 1e-9)
	assert.InDelta(t, 9.9, acct.Position.Size, 1e-9)
	assert.Equal(t, 5.0, acct.Mark)
	assert.Empty(t, r.OpenOrders())

	st := r.StrategyStatus()
	assert.Equal(t, 2, st.Bars)
	assert.Equal(t, int64(2), st.LastBar)
	assert.Equal(t, "scripted", st.Name)
}

func TestStepCountsStrategyErrors(t *testing.T) {
	s := &scripted{fail: true}
	r, _, _ := setup(t, s, &sliceBars{})
	assert.Error(t, r.Step(context.Background(), k(5, 5)))
	assert.Equal(t, 1, r.StrategyStatus().Errors)
}

func TestStepRecordsMetrics(t *testing.T) {
	r, _, _ := setup(t, &scripted{fail: true}, &sliceBars{})
	r.mets = monitor.NewMetrics()
	_ = r.Step(context.Background(), k(1, 5))
	snap := r.mets.GetSnapshot()
	assert.Equal(t, 1, snap.StepLatency.Count)
	assert.Equal(t, uint64(1), snap.Errors)
}

func TestStepPublishesBar(t *testing.T) {
	r, _, bus := setup(t, &scripted{}, &sliceBars{})
	ch, unsub := bus.Subscribe(events.EventBar, 1)
	defer unsub()
	require.NoError(t, r.Step(context.Background(), k(9, 5)))
	select {
	case got := <-ch:
		assert.Equal(t, int64(9), got.(common.Candle).Timestamp)
	case <-time.After(time.Second):
		t.Fatal("no bar event")
	}
}

func TestRunUntilCancelled(t *testing.T) {
	s := &scripted{}
	bars := &sliceBars{bars: []common.Candle{k(1, 5), k(2, 5), k(3, 5)}}
	r, _, _ := setup(t, s, bars)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.StrategyStatus().Bars == 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
	calls := s.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "init", calls[0])
	assert.Contains(t, calls, "order:Completed")
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSystemStatus(t *testing.T) {
	r, _, _ := setup(t, &scripted{}, &sliceBars{})
	st := r.SystemStatus()
	assert.Equal(t, "dry-run", st.Mode)
	assert.Equal(t, inst, st.Instrument)
	assert.False(t, st.StartedAt.IsZero())
	assert.NotEmpty(t, st.Uptime)
}
