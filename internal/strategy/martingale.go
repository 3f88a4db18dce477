package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"okx-exec/internal/indicators"
	"okx-exec/internal/order"
	"okx-exec/internal/sizer"
	"okx-exec/pkg/exchanges/common"
)

// MartingaleParams configures MartingaleLong.
type MartingaleParams struct {
	Steps       int     `yaml:"steps"`
	Factor      float64 `yaml:"factor"`
	TakeProfit  float64 `yaml:"take_profit"`
	StopLoss    float64 `yaml:"stop_loss"`
	RSIPeriod   int     `yaml:"rsi_period"`
	RSIDownward int     `yaml:"rsi_downward"` // bars of falling RSI before a reversal counts
	RSIOversold float64 `yaml:"rsi_oversold"`
}

// DefaultMartingaleParams mirrors the usual production settings.
func DefaultMartingaleParams() MartingaleParams {
	return MartingaleParams{
		Steps:       5,
		Factor:      2,
		TakeProfit:  0.08,
		StopLoss:    0.2,
		RSIPeriod:   60,
		RSIDownward: 6,
		RSIOversold: 30,
	}
}

// MartingaleLong buys a geometric ladder on RSI reversals from oversold and
// exits the whole position on take-profit or, once the ladder is used up,
// on stop-loss.
type MartingaleLong struct {
	mu      sync.Mutex
	p       MartingaleParams
	ladder  *sizer.Ladder
	rsi     *indicators.RSIStream
	history []float64 // most recent RSI values, newest last
	exiting bool
	trades  int
	fees    float64
	log     *logrus.Entry
}

// NewMartingaleLong creates the strategy. Zero fields take their defaults.
func NewMartingaleLong(p MartingaleParams, log *logrus.Entry) (*MartingaleLong, error) {
	d := DefaultMartingaleParams()
	if p.Steps <= 0 {
		p.Steps = d.Steps
	}
	if p.Factor == 0 {
		p.Factor = d.Factor
	}
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = d.RSIPeriod
	}
	if p.RSIDownward < 2 {
		p.RSIDownward = d.RSIDownward
	}
	if p.RSIOversold <= 0 {
		p.RSIOversold = d.RSIOversold
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ladder, err := sizer.NewLadder(p.Factor, p.Steps)
	if err != nil {
		return nil, fmt.Errorf("martingale factor %v: %w", p.Factor, err)
	}
	return &MartingaleLong{
		p:      p,
		ladder: ladder,
		rsi:    indicators.NewRSIStream(p.RSIPeriod),
		log:    log.WithField("component", "martingale"),
	}, nil
}

func (s *MartingaleLong) Name() string {
	return fmt.Sprintf("martingale_long_%d_%g", s.p.Steps, s.p.Factor)
}

// Init allocates the ladder over the broker's cash.
func (s *MartingaleLong) Init(ctx context.Context, b Broker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cash := b.Cash()
	if err := s.ladder.Reset(cash); err != nil {
		return fmt.Errorf("init ladder with %v: %w", cash, err)
	}
	s.log.WithFields(logrus.Fields{"cash": cash, "schedule": s.ladder.Schedule()}).Info("ladder allocated")
	return nil
}

// OnBar checks exits first, then looks for an entry.
func (s *MartingaleLong) OnBar(ctx context.Context, b Broker, k common.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	price := k.Close
	value, ready := s.rsi.Update(price)
	if ready {
		value = round2(value)
	}
	signal := ready && s.reversal(value)
	if ready {
		s.history = append(s.history, value)
		if len(s.history) > s.p.RSIDownward {
			s.history = s.history[1:]
		}
	}

	if s.exiting {
		return nil
	}
	cost := s.ladder.Cost()

	if s.ladder.Exhausted() && price <= cost*(1-s.p.StopLoss) {
		s.log.WithFields(logrus.Fields{"price": price, "cost": cost}).Warn("stop loss")
		return s.exit(ctx, b, price)
	}
	if s.ladder.Complete() && cost != 0 && price >= cost*(1+s.p.TakeProfit) {
		s.log.WithFields(logrus.Fields{"price": price, "cost": cost}).Info("take profit")
		return s.exit(ctx, b, price)
	}

	if !signal {
		return nil
	}
	size, ok := s.ladder.Size(price)
	if !ok {
		return nil
	}
	s.log.WithFields(logrus.Fields{"price": price, "size": size, "rsi": value}).Info("ladder entry")
	_, err := b.Submit(ctx, common.SideBuy, common.KindLimit, size, price)
	return err
}

// reversal reports an oversold RSI turning up after a run of
// non-increasing values.
func (s *MartingaleLong) reversal(current float64) bool {
	if current >= s.p.RSIOversold || len(s.history) < s.p.RSIDownward-1 {
		return false
	}
	window := s.history[len(s.history)-(s.p.RSIDownward-1):]
	for i := 1; i < len(window); i++ {
		if window[i] > window[i-1] {
			return false
		}
	}
	return current > window[len(window)-1]
}

func (s *MartingaleLong) exit(ctx context.Context, b Broker, price float64) error {
	size := s.ladder.Position()
	if b.Type() == common.InstrumentSpot {
		// spot fees shrink the holding below the ladder total
		size = math.Min(size, b.Position().Size)
	}
	if size <= 0 {
		return nil
	}
	if _, err := b.Submit(ctx, common.SideSell, common.KindLimit, size, price); err != nil {
		return err
	}
	s.exiting = true
	return nil
}

// OnOrder records fills into the ladder. A completed sell restarts the
// ladder with the proceeds.
func (s *MartingaleLong) OnOrder(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"ref":    o.Ref,
		"side":   o.Side,
		"status": o.Status().String(),
		"filled": o.Filled(),
		"avg":    o.Average(),
		"fee":    o.Fee().Cost,
	}).Info("order notification")

	if !o.IsBuy() && o.Status() != order.Completed {
		s.exiting = false
		return
	}
	if o.Status() != order.Completed {
		return
	}
	s.trades++
	fee := quoteFee(o)
	s.fees += fee
	if o.IsBuy() {
		s.ladder.SetCost(o.Average(), o.Filled())
		return
	}
	s.exiting = false
	proceeds := o.Average()*o.Filled() - fee
	if err := s.ladder.Reset(proceeds); err != nil {
		s.log.WithError(err).WithField("proceeds", proceeds).Error("ladder reset failed")
		return
	}
	s.log.WithFields(logrus.Fields{"proceeds": proceeds, "schedule": s.ladder.Schedule()}).Info("ladder reset")
}

// quoteFee returns the order fee in quote units. A fee charged in the base
// asset, the first segment of the instrument id, is priced at the average.
func quoteFee(o *order.Order) float64 {
	fee := o.Fee()
	if fee.Currency != "" && strings.HasPrefix(o.Instrument, fee.Currency+"-") {
		return fee.Cost * o.Average()
	}
	return fee.Cost
}

// MartingaleState is the reported strategy state.
type MartingaleState struct {
	Cost       float64   `json:"cost"`
	Position   float64   `json:"position"`
	Entries    int       `json:"entries"`
	Complete   bool      `json:"complete"`
	Exhausted  bool      `json:"exhausted"`
	Exiting    bool      `json:"exiting"`
	Schedule   []float64 `json:"schedule"`
	Trades     int       `json:"trades"`
	Fees       float64   `json:"fees"`
	RSIHistory []float64 `json:"rsi_history"`
}

func (s *MartingaleLong) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MartingaleState{
		Cost:       s.ladder.Cost(),
		Position:   s.ladder.Position(),
		Entries:    s.ladder.Count(),
		Complete:   s.ladder.Complete(),
		Exhausted:  s.ladder.Exhausted(),
		Exiting:    s.exiting,
		Schedule:   s.ladder.Schedule(),
		Trades:     s.trades,
		Fees:       s.fees,
		RSIHistory: append([]float64(nil), s.history...),
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
