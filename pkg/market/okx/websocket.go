package okx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"okx-exec/pkg/exchanges/common"
	okxapi "okx-exec/pkg/exchanges/okx"
)

const (
	BusinessURL        = "wss://ws.okx.com:8443/ws/v5/business"
	SandboxBusinessURL = "wss://wspap.okx.com:8443/ws/v5/business"

	defaultHeartbeat  = 29 * time.Second
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
	writeTimeout      = 5 * time.Second
)

// StreamConfig configures one candle subscription.
type StreamConfig struct {
	URL        string
	Instrument string
	Interval   string
	Heartbeat  time.Duration // idle time before a text ping
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// StreamClient keeps one candle subscription alive across disconnects.
type StreamClient struct {
	cfg     StreamConfig
	channel string
	dialer  *websocket.Dialer
	log     *logrus.Entry
}

// NewStreamClient builds a candle stream; sandbox picks the demo host when
// cfg.URL is empty.
func NewStreamClient(cfg StreamConfig, sandbox bool, log *logrus.Entry) (*StreamClient, error) {
	bar, err := okxapi.Bar(cfg.Interval)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		cfg.URL = BusinessURL
		if sandbox {
			cfg.URL = SandboxBusinessURL
		}
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(defaultMaxBackoff, cfg.MinBackoff)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StreamClient{
		cfg:     cfg,
		channel: "candle" + bar,
		dialer:  websocket.DefaultDialer,
		log: log.WithFields(logrus.Fields{
			"component":  "okx-stream",
			"instrument": cfg.Instrument,
			"channel":    "candle" + bar,
		}),
	}, nil
}

// Run connects, subscribes and hands every confirmed candle to emit until
// ctx is done. Dropped connections are redialed with exponential backoff and
// resubscribed. It returns ctx.Err().
func (c *StreamClient) Run(ctx context.Context, emit func(common.Candle)) error {
	backoff := c.cfg.MinBackoff
	for {
		subscribed, err := c.session(ctx, emit)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			backoff = c.cfg.MinBackoff
		}
		c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("stream disconnected")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

type wsArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type wsMessage struct {
	Event string     `json:"event"`
	Code  string     `json:"code"`
	Msg   string     `json:"msg"`
	Arg   *wsArg     `json:"arg"`
	Data  [][]string `json:"data"`
}

// session runs one connection. subscribed reports whether the server
// acknowledged the subscription.
func (c *StreamClient) session(ctx context.Context, emit func(common.Candle)) (subscribed bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial okx ws: %w", err)
	}
	var writeMu sync.Mutex
	write := func(msg []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, msg)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			writeMu.Lock()
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			writeMu.Unlock()
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	sub, _ := json.Marshal(map[string]any{
		"op":   "subscribe",
		"args": []wsArg{{Channel: c.channel, InstID: c.cfg.Instrument}},
	})
	if err := write(sub); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	hb := newHeartbeat(c.cfg.Heartbeat, func() {
		if err := write([]byte("ping")); err != nil {
			c.log.WithError(err).Debug("ping failed")
		}
	})
	defer hb.Stop()

	for {
		// two missed heartbeats mean the link is dead
		_ = conn.SetReadDeadline(time.Now().Add(2*c.cfg.Heartbeat + writeTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return subscribed, errors.New("connection closed")
			}
			return subscribed, fmt.Errorf("read: %w", err)
		}
		hb.Reset()

		if string(raw) == "pong" {
			continue
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.WithError(err).Debug("unparseable message")
			continue
		}
		switch {
		case msg.Event == "subscribe":
			subscribed = true
			c.log.Info("subscribed")
		case msg.Event == "error":
			return subscribed, fmt.Errorf("okx ws error %s: %s", msg.Code, msg.Msg)
		case msg.Arg != nil && msg.Data != nil:
			for _, row := range msg.Data {
				k, err := okxapi.ParseCandle(row)
				if err != nil {
					c.log.WithError(err).Warn("bad candle row")
					continue
				}
				if !k.Confirmed {
					continue
				}
				emit(k)
			}
		default:
			c.log.WithField("event", msg.Event).Debug("unhandled message")
		}
	}
}

// heartbeat fires ping after each idle interval. After Stop returns no ping
// is running or scheduled.
type heartbeat struct {
	mu       sync.Mutex
	timer    *time.Timer
	interval time.Duration
	ping     func()
	stopped  bool
}

func newHeartbeat(interval time.Duration, ping func()) *heartbeat {
	h := &heartbeat{interval: interval, ping: ping}
	h.mu.Lock()
	h.timer = time.AfterFunc(interval, h.fire)
	h.mu.Unlock()
	return h
}

func (h *heartbeat) fire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.ping()
	h.timer.Reset(h.interval)
}

// Reset postpones the next ping by a full interval.
func (h *heartbeat) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.timer.Reset(h.interval)
}

// Stop cancels the heartbeat, waiting for a ping already in progress.
func (h *heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	h.timer.Stop()
}
