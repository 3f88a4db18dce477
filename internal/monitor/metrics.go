package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks engine throughput and latency.
type Metrics struct {
	// Latency histograms
	StepLatency    *LatencyHistogram
	RequestLatency *LatencyHistogram

	// Counters
	bars        uint64
	terminal    uint64
	drifts      uint64
	feedDrops   uint64
	errorsCount uint64
	requests    uint64

	startedAt time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next sample.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		StepLatency:    NewLatencyHistogram(1000),
		RequestLatency: NewLatencyHistogram(1000),
		startedAt:      time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false
	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

func (m *Metrics) IncrementBars()     { atomic.AddUint64(&m.bars, 1) }
func (m *Metrics) IncrementTerminal() { atomic.AddUint64(&m.terminal, 1) }
func (m *Metrics) IncrementDrift()    { atomic.AddUint64(&m.drifts, 1) }
func (m *Metrics) IncrementErrors()   { atomic.AddUint64(&m.errorsCount, 1) }
func (m *Metrics) IncrementRequests() { atomic.AddUint64(&m.requests, 1) }

// SetFeedDrops stores the feed's cumulative drop count.
func (m *Metrics) SetFeedDrops(n uint64) { atomic.StoreUint64(&m.feedDrops, n) }

// Snapshot is a point-in-time copy of every metric.
type Snapshot struct {
	StepLatency    LatencyStats `json:"step_latency"`
	RequestLatency LatencyStats `json:"request_latency"`
	Bars           uint64       `json:"bars"`
	TerminalOrders uint64       `json:"terminal_orders"`
	Drifts         uint64       `json:"drifts"`
	FeedDrops      uint64       `json:"feed_drops"`
	Errors         uint64       `json:"errors"`
	Requests       uint64       `json:"requests"`
	GoroutineCount int          `json:"goroutine_count"`
	HeapAlloc      uint64       `json:"heap_alloc_bytes"`
	UptimeSeconds  float64      `json:"uptime_seconds"`
	Timestamp      time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *Metrics) GetSnapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Snapshot{
		StepLatency:    m.StepLatency.Stats(),
		RequestLatency: m.RequestLatency.Stats(),
		Bars:           atomic.LoadUint64(&m.bars),
		TerminalOrders: atomic.LoadUint64(&m.terminal),
		Drifts:         atomic.LoadUint64(&m.drifts),
		FeedDrops:      atomic.LoadUint64(&m.feedDrops),
		Errors:         atomic.LoadUint64(&m.errorsCount),
		Requests:       atomic.LoadUint64(&m.requests),
		GoroutineCount: runtime.NumGoroutine(),
		HeapAlloc:      memStats.HeapAlloc,
		UptimeSeconds:  time.Since(m.startedAt).Seconds(),
		Timestamp:      time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
