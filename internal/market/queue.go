package market

import (
	"context"
	"sync"

	"okx-exec/pkg/exchanges/common"
)

// BarQueue is a bounded single-producer/single-consumer bar buffer.
// When full, the oldest bar is dropped so the newest close is never lost.
// Bars must arrive with strictly increasing timestamps; others are refused.
type BarQueue struct {
	mu      sync.Mutex
	buf     []common.Candle
	cap     int
	lastTS  int64
	dropped uint64
	ready   chan struct{}
}

// NewBarQueue creates a queue holding at most capacity bars.
func NewBarQueue(capacity int) *BarQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &BarQueue{cap: capacity, ready: make(chan struct{}, 1)}
}

// Push enqueues k. It returns false when k is not newer than the last bar
// pushed.
func (q *BarQueue) Push(k common.Candle) bool {
	q.mu.Lock()
	if q.lastTS != 0 && k.Timestamp <= q.lastTS {
		q.mu.Unlock()
		return false
	}
	q.lastTS = k.Timestamp
	if len(q.buf) == q.cap {
		copy(q.buf, q.buf[1:])
		q.buf = q.buf[:len(q.buf)-1]
		q.dropped++
	}
	q.buf = append(q.buf, k)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// TryPop dequeues the oldest bar without blocking.
func (q *BarQueue) TryPop() (common.Candle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return common.Candle{}, false
	}
	k := q.buf[0]
	copy(q.buf, q.buf[1:])
	q.buf = q.buf[:len(q.buf)-1]
	return k, true
}

// Pop blocks until a bar is available or ctx is done.
func (q *BarQueue) Pop(ctx context.Context) (common.Candle, error) {
	for {
		if k, ok := q.TryPop(); ok {
			return k, nil
		}
		select {
		case <-ctx.Done():
			return common.Candle{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of queued bars.
func (q *BarQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Dropped returns how many bars were discarded because the queue was full.
func (q *BarQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// LastTimestamp returns the newest timestamp accepted.
func (q *BarQueue) LastTimestamp() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastTS
}
