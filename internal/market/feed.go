package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"okx-exec/internal/events"
	"okx-exec/pkg/exchanges/common"
)

// Streamer delivers confirmed bars as they close.
type Streamer interface {
	Run(ctx context.Context, emit func(common.Candle)) error
}

// MaxPageSize is the most bars one REST page may request. The empty-window
// skip in Fetch assumes the source covered the whole page.
const MaxPageSize = 100

// FeedConfig configures a Feed.
type FeedConfig struct {
	Instrument   string
	Interval     string
	PageSize     int           // bars per REST page, at most MaxPageSize
	PollInterval time.Duration // polling mode only; defaults to the bar interval
	QueueSize    int
}

// Feed turns a stream or a polled REST source into one ordered bar queue.
type Feed struct {
	cfg    FeedConfig
	step   time.Duration
	source common.CandleSource
	stream Streamer
	queue  *BarQueue
	bus    *events.Bus
	log    *logrus.Entry
}

// NewFeed creates a feed. stream may be nil, in which case Start polls source.
func NewFeed(cfg FeedConfig, source common.CandleSource, stream Streamer, bus *events.Bus, log *logrus.Entry) (*Feed, error) {
	step, err := common.IntervalDuration(cfg.Interval)
	if err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = step
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Feed{
		cfg:    cfg,
		step:   step,
		source: source,
		stream: stream,
		queue:  NewBarQueue(cfg.QueueSize),
		bus:    bus,
		log: log.WithFields(logrus.Fields{
			"component":  "feed",
			"instrument": cfg.Instrument,
			"interval":   cfg.Interval,
		}),
	}, nil
}

// Queue exposes the underlying bar queue.
func (f *Feed) Queue() *BarQueue { return f.queue }

// Next blocks for the next bar.
func (f *Feed) Next(ctx context.Context) (common.Candle, error) {
	return f.queue.Pop(ctx)
}

// Start begins streaming, or polling when no stream is configured.
// It returns immediately; the producer stops with ctx.
func (f *Feed) Start(ctx context.Context) error {
	switch {
	case f.stream != nil:
		go func() {
			if err := f.stream.Run(ctx, f.push); err != nil && !errors.Is(err, context.Canceled) {
				f.log.WithError(err).Error("stream stopped")
			}
		}()
	case f.source != nil:
		go f.poll(ctx)
	default:
		return errors.New("feed has neither stream nor candle source")
	}
	f.log.WithField("streaming", f.stream != nil).Info("feed started")
	return nil
}

func (f *Feed) push(k common.Candle) {
	before := f.queue.Dropped()
	if !f.queue.Push(k) {
		f.log.WithField("ts", k.Timestamp).Debug("stale bar ignored")
		return
	}
	if f.queue.Dropped() > before {
		f.log.WithField("dropped", f.queue.Dropped()).Warn("bar queue full, oldest bar dropped")
		f.bus.Publish(events.EventFeedDrop, f.queue.Dropped())
	}
}

// Preload queues the last n closed bars.
func (f *Feed) Preload(ctx context.Context, n int) error {
	if f.source == nil || n <= 0 {
		return nil
	}
	now, err := f.source.ServerTime(ctx)
	if err != nil {
		now = time.Now().UnixMilli()
	}
	to := time.UnixMilli(now).Truncate(f.step)
	from := to.Add(-time.Duration(n) * f.step)
	bars, err := f.Fetch(ctx, from, to)
	if err != nil {
		return err
	}
	for _, k := range bars {
		f.push(k)
	}
	f.log.WithField("bars", len(bars)).Info("preloaded")
	return nil
}

// Fetch pages forward through [from, to) and returns confirmed, non-empty
// bars in ascending order. A high-water mark drops anything not newer than
// the last bar seen; it advances after every page.
func (f *Feed) Fetch(ctx context.Context, from, to time.Time) ([]common.Candle, error) {
	if f.source == nil {
		return nil, errors.New("feed has no candle source")
	}
	var out []common.Candle
	since := from.UnixMilli()
	end := to.UnixMilli()
	hw := since - 1
	stepMs := f.step.Milliseconds()

	for since < end {
		page, err := f.source.FetchCandles(ctx, f.cfg.Instrument, f.cfg.Interval, since, f.cfg.PageSize)
		if err != nil {
			return out, fmt.Errorf("fetch candles since %d: %w", since, err)
		}
		pageHW := hw
		for _, k := range page {
			if k.Timestamp <= hw || k.Timestamp >= end {
				continue
			}
			if k.Timestamp > pageHW {
				pageHW = k.Timestamp
			}
			if k.Volume == 0 || !k.Confirmed {
				continue
			}
			out = append(out, k)
		}
		if pageHW > hw {
			hw = pageHW
			since = hw + stepMs
		} else {
			// empty window; skip past it
			since += int64(f.cfg.PageSize) * stepMs
		}
	}
	return out, nil
}

func (f *Feed) poll(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()
	for {
		f.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *Feed) pollOnce(ctx context.Context) {
	last := f.queue.LastTimestamp()
	from := time.Now().Add(-2 * f.step)
	if last > 0 {
		from = time.UnixMilli(last + 1)
	}
	bars, err := f.Fetch(ctx, from, time.Now())
	if err != nil {
		f.log.WithError(err).Warn("poll failed")
	}
	for _, k := range bars {
		f.push(k)
	}
}
