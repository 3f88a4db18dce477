package market

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-exec/pkg/exchanges/common"
	"okx-exec/pkg/exchanges/okx"
)

func bar(ts int64) common.Candle {
	return common.Candle{Timestamp: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, Confirmed: true}
}

func TestBarQueueOrderAndMonotonicity(t *testing.T) {
	q := NewBarQueue(4)
	assert.True(t, q.Push(bar(1)))
	assert.True(t, q.Push(bar(2)))
	assert.False(t, q.Push(bar(2)))
	assert.False(t, q.Push(bar(1)))
	assert.True(t, q.Push(bar(3)))

	var got []int64
	for k, ok := q.TryPop(); ok; k, ok = q.TryPop() {
		got = append(got, k.Timestamp)
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestBarQueueDropsOldest(t *testing.T) {
	q := NewBarQueue(2)
	q.Push(bar(1))
	q.Push(bar(2))
	q.Push(bar(3))
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 2, q.Len())
	k, _ := q.TryPop()
	assert.Equal(t, int64(2), k.Timestamp)
}

func TestBarQueuePopBlocks(t *testing.T) {
	q := NewBarQueue(1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(bar(7))
	}()
	k, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), k.Timestamp)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// pagedSource serves bars from a fixed ascending list, limit per call.
type pagedSource struct {
	mu    sync.Mutex
	bars  []common.Candle
	calls []int64
}

func (p *pagedSource) FetchCandles(_ context.Context, _, _ string, since int64, limit int) ([]common.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, since)
	var out []common.Candle
	for _, k := range p.bars {
		if k.Timestamp >= since && len(out) < limit {
			out = append(out, k)
		}
	}
	return out, nil
}

func (p *pagedSource) ServerTime(context.Context) (int64, error) { return 10 * 60_000, nil }

func TestFetchPagesAndFilters(t *testing.T) {
	const m = int64(60_000)
	src := &pagedSource{}
	for i := int64(0); i < 10; i++ {
		k := bar(i * m)
		if i == 3 {
			k.Volume = 0
		}
		if i == 9 {
			k.Confirmed = false
		}
		src.bars = append(src.bars, k)
	}
	f, err := NewFeed(FeedConfig{Instrument: "X", Interval: "1m", PageSize: 4}, src, nil, nil, nil)
	require.NoError(t, err)

	got, err := f.Fetch(context.Background(), time.UnixMilli(0), time.UnixMilli(10*m))
	require.NoError(t, err)
	var ts []int64
	for _, k := range got {
		ts = append(ts, k.Timestamp/m)
	}
	assert.Equal(t, []int64{0, 1, 2, 4, 5, 6, 7, 8}, ts)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Timestamp, got[i-1].Timestamp)
	}
	assert.Equal(t, []int64{0, 4 * m, 8 * m}, src.calls)
}

func TestFetchSkipsGapWithOversizedPage(t *testing.T) {
	const m = int64(60_000)
	// history only starts at minute 150
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		before, _ := strconv.ParseInt(q.Get("before"), 10, 64)
		after, _ := strconv.ParseInt(q.Get("after"), 10, 64)
		rows := [][]string{}
		for i := int64(159); i >= 150; i-- {
			if ts := i * m; ts > before && ts < after {
				rows = append(rows, []string{strconv.FormatInt(ts, 10), "1", "2", "0.5", "1.5", "10", "0", "0", "1"})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "0", "data": rows})
	}))
	defer srv.Close()

	client := okx.NewClient(okx.Config{BaseURL: srv.URL}, nil)
	f, err := NewFeed(FeedConfig{Instrument: "FIL-USDT", Interval: "1m", PageSize: 300}, client, nil, nil, nil)
	require.NoError(t, err)

	got, err := f.Fetch(context.Background(), time.UnixMilli(0), time.UnixMilli(200*m))
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, 150*m, got[0].Timestamp)
	assert.Equal(t, 159*m, got[9].Timestamp)
}

func TestPreloadFillsQueue(t *testing.T) {
	const m = int64(60_000)
	src := &pagedSource{}
	for i := int64(0); i < 10; i++ {
		src.bars = append(src.bars, bar(i*m))
	}
	f, err := NewFeed(FeedConfig{Instrument: "X", Interval: "1m"}, src, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.Preload(context.Background(), 3))
	assert.Equal(t, 3, f.Queue().Len())
	k, err := f.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7*m, k.Timestamp)
}

type fakeStream struct{ bars []common.Candle }

func (s fakeStream) Run(ctx context.Context, emit func(common.Candle)) error {
	for _, k := range s.bars {
		emit(k)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestStartStreamsIntoQueue(t *testing.T) {
	f, err := NewFeed(FeedConfig{Instrument: "X", Interval: "1m"}, nil, fakeStream{bars: []common.Candle{bar(1), bar(1), bar(2)}}, nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.Start(ctx))

	a, err := f.Next(ctx)
	require.NoError(t, err)
	b, err := f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Timestamp)
	assert.Equal(t, int64(2), b.Timestamp)
}

func TestStartWithoutProducer(t *testing.T) {
	f, err := NewFeed(FeedConfig{Instrument: "X", Interval: "1m"}, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Error(t, f.Start(context.Background()))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []common.Candle{{Timestamp: 1714521600000, Open: 5, High: 5.5, Low: 4.9, Close: 5.2, Volume: 123.4}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "datetime,open,high,low,close,volume,openinterest", lines[0])
	assert.Equal(t, "2024-05-01 00:00:00,5,5.5,4.9,5.2,123.4,0", lines[1])
}

func TestMockStreamEmitsIncreasingBars(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var got []common.Candle
	done := make(chan error, 1)
	go func() {
		done <- MockStream{Every: time.Millisecond, Seed: 1}.Run(ctx, func(k common.Candle) {
			mu.Lock()
			got = append(got, k)
			mu.Unlock()
		})
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 5
	}, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Timestamp, got[i-1].Timestamp)
		assert.LessOrEqual(t, got[i].Low, got[i].Close)
		assert.GreaterOrEqual(t, got[i].High, got[i].Close)
	}
}
