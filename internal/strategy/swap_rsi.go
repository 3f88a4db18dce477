package strategy

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"okx-exec/internal/indicators"
	"okx-exec/internal/order"
	"okx-exec/pkg/exchanges/common"
)

// SwapRSIParams configures SwapRSI. Levels are RSI values in [0, 100].
type SwapRSIParams struct {
	RSIPeriod  int     `yaml:"rsi_period"`
	Overbought float64 `yaml:"overbought"` // sell once RSI stops rising above this
	Oversold   float64 `yaml:"oversold"`   // buy once RSI stops falling below this
	SellAbove  float64 `yaml:"sell_above"` // sells unconditionally
	BuyBelow   float64 `yaml:"buy_below"`  // buys unconditionally
}

// DefaultSwapRSIParams returns the usual settings.
func DefaultSwapRSIParams() SwapRSIParams {
	return SwapRSIParams{RSIPeriod: 5, Overbought: 73, Oversold: 27, SellAbove: 85, BuyBelow: 13}
}

// SwapRSI flips between flat, long and short on RSI extremes. It opens with
// the full capacity and closes the whole position on the opposite signal.
type SwapRSI struct {
	mu        sync.Mutex
	p         SwapRSIParams
	rsi       *indicators.RSIStream
	prev      float64
	havePrev  bool
	last      float64
	completed int
	log       *logrus.Entry
}

// NewSwapRSI creates the strategy.
func NewSwapRSI(p SwapRSIParams, log *logrus.Entry) *SwapRSI {
	d := DefaultSwapRSIParams()
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = d.RSIPeriod
	}
	if p.Overbought <= 0 {
		p.Overbought = d.Overbought
	}
	if p.Oversold <= 0 {
		p.Oversold = d.Oversold
	}
	if p.SellAbove <= 0 {
		p.SellAbove = d.SellAbove
	}
	if p.BuyBelow <= 0 {
		p.BuyBelow = d.BuyBelow
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SwapRSI{
		p:   p,
		rsi: indicators.NewRSIStream(p.RSIPeriod),
		log: log.WithField("component", "swap_rsi"),
	}
}

func (s *SwapRSI) Name() string { return "swap_rsi" }

func (s *SwapRSI) Init(ctx context.Context, b Broker) error { return nil }

func (s *SwapRSI) canSell(rsi float64) bool {
	return (rsi > s.p.Overbought && rsi <= s.prev) || rsi > s.p.SellAbove
}

func (s *SwapRSI) canBuy(rsi float64) bool {
	return (rsi < s.p.Oversold && rsi >= s.prev) || rsi < s.p.BuyBelow
}

// OnBar evaluates one bar. Nothing happens while an order is working.
func (s *SwapRSI) OnBar(ctx context.Context, b Broker, k common.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.rsi.Update(k.Close)
	if !ok {
		return nil
	}
	defer func() { s.prev, s.havePrev, s.last = value, true, value }()
	if !s.havePrev || len(b.ActiveOrders()) > 0 {
		return nil
	}

	price := k.Close
	pos := b.Position().Size
	switch {
	case pos > 0 && s.canSell(value):
		s.log.WithFields(logrus.Fields{"rsi": value, "size": pos}).Info("close long")
		_, err := b.Submit(ctx, common.SideSell, common.KindLimit, pos, price)
		return err
	case pos < 0 && s.canBuy(value):
		s.log.WithFields(logrus.Fields{"rsi": value, "size": -pos}).Info("close short")
		_, err := b.Submit(ctx, common.SideBuy, common.KindLimit, -pos, price)
		return err
	case pos == 0 && s.canSell(value):
		size := b.OpenCapacity(price)
		s.log.WithFields(logrus.Fields{"rsi": value, "size": size}).Info("open short")
		_, err := b.Submit(ctx, common.SideSell, common.KindLimit, size, price)
		return err
	case pos == 0 && s.canBuy(value):
		size := b.OpenCapacity(price)
		s.log.WithFields(logrus.Fields{"rsi": value, "size": size}).Info("open long")
		_, err := b.Submit(ctx, common.SideBuy, common.KindLimit, size, price)
		return err
	}
	return nil
}

func (s *SwapRSI) OnOrder(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Status() == order.Completed {
		s.completed++
	}
	s.log.WithFields(logrus.Fields{
		"ref":    o.Ref,
		"side":   o.Side,
		"status": o.Status().String(),
		"filled": o.Filled(),
		"avg":    o.Average(),
	}).Info("order notification")
}

// SwapRSIState is the reported strategy state.
type SwapRSIState struct {
	RSI       float64 `json:"rsi"`
	Completed int     `json:"completed"`
}

func (s *SwapRSI) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SwapRSIState{RSI: s.last, Completed: s.completed}
}
