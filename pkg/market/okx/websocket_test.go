package okx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-exec/pkg/exchanges/common"
)

type fakeOKX struct {
	upgrader websocket.Upgrader
	conns    atomic.Int32
	pings    atomic.Int32
	subs     chan map[string]any
	// frames sent after the subscribe ack, per connection
	frames func(n int32) []string
	// close the connection after sending frames
	drop bool
}

func (f *fakeOKX) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := f.conns.Add(1)

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var sub map[string]any
	_ = json.Unmarshal(raw, &sub)
	select {
	case f.subs <- sub:
	default:
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe","arg":{"channel":"candle1m","instId":"FIL-USDT"}}`))
	for _, fr := range f.frames(n) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(fr))
	}
	if f.drop {
		return
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(raw) == "ping" {
			f.pings.Add(1)
			_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
		}
	}
}

func candleFrame(ts string, confirm string) string {
	return `{"arg":{"channel":"candle1m","instId":"FIL-USDT"},"data":[["` + ts + `","5","6","4","5.5","100","0","0","` + confirm + `"]]}`
}

func newFake(frames func(n int32) []string, drop bool) (*fakeOKX, string, func()) {
	f := &fakeOKX{subs: make(chan map[string]any, 8), frames: frames, drop: drop}
	srv := httptest.NewServer(f)
	return f, "ws" + strings.TrimPrefix(srv.URL, "http"), srv.Close
}

type collector struct {
	mu   sync.Mutex
	bars []common.Candle
}

func (c *collector) emit(k common.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bars = append(c.bars, k)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bars)
}

func (c *collector) get() []common.Candle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]common.Candle(nil), c.bars...)
}

func TestStreamSubscribesAndDropsUnconfirmed(t *testing.T) {
	fake, url, stop := newFake(func(int32) []string {
		return []string{
			candleFrame("60000", "0"),
			candleFrame("60000", "1"),
			candleFrame("120000", "0"),
			candleFrame("120000", "1"),
		}
	}, false)
	defer stop()

	sc, err := NewStreamClient(StreamConfig{URL: url, Instrument: "FIL-USDT", Interval: "1m"}, false, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got collector
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx, got.emit) }()

	sub := <-fake.subs
	assert.Equal(t, "subscribe", sub["op"])
	args := sub["args"].([]any)[0].(map[string]any)
	assert.Equal(t, "candle1m", args["channel"])
	assert.Equal(t, "FIL-USDT", args["instId"])

	require.Eventually(t, func() bool { return got.len() == 2 }, 2*time.Second, 10*time.Millisecond)
	bars := got.get()
	assert.Equal(t, int64(60000), bars[0].Timestamp)
	assert.Equal(t, int64(120000), bars[1].Timestamp)
	assert.True(t, bars[0].Confirmed)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStreamSendsPingWhenIdle(t *testing.T) {
	fake, url, stop := newFake(func(int32) []string { return nil }, false)
	defer stop()

	sc, err := NewStreamClient(StreamConfig{URL: url, Instrument: "FIL-USDT", Interval: "1m", Heartbeat: 50 * time.Millisecond}, false, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sc.Run(ctx, func(common.Candle) {}) }()

	require.Eventually(t, func() bool { return fake.pings.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamReconnectsAndResubscribes(t *testing.T) {
	fake, url, stop := newFake(func(n int32) []string {
		return []string{candleFrame(string(rune('0'+n))+"0000", "1")}
	}, true)
	defer stop()

	sc, err := NewStreamClient(StreamConfig{
		URL: url, Instrument: "FIL-USDT", Interval: "1m",
		MinBackoff: 10 * time.Millisecond, MaxBackoff: 20 * time.Millisecond,
	}, false, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got collector
	go func() { _ = sc.Run(ctx, got.emit) }()

	require.Eventually(t, func() bool { return fake.conns.Load() >= 3 && got.len() >= 3 }, 3*time.Second, 10*time.Millisecond)
	for i := 0; i < 3; i++ {
		<-fake.subs
	}
}

func TestHeartbeatStopIsFinal(t *testing.T) {
	var fired atomic.Int32
	h := newHeartbeat(5*time.Millisecond, func() { fired.Add(1) })
	time.Sleep(30 * time.Millisecond)
	h.Stop()
	after := fired.Load()
	assert.Greater(t, after, int32(0))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, fired.Load())
	h.Reset()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, fired.Load())
}

func TestNewStreamClientPicksHost(t *testing.T) {
	sc, err := NewStreamClient(StreamConfig{Instrument: "FIL-USDT", Interval: "4h"}, true, nil)
	require.NoError(t, err)
	assert.Equal(t, SandboxBusinessURL, sc.cfg.URL)
	assert.Equal(t, "candle4H", sc.channel)

	_, err = NewStreamClient(StreamConfig{Interval: "bad"}, false, nil)
	assert.Error(t, err)
}
