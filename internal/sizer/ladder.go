// Package sizer splits capital into a geometric ladder of entries, each one
// taken only at a strictly lower price than the previous.
package sizer

import (
	"errors"
	"math"
	"sort"
)

var (
	// ErrInvalidCapital is returned by Reset for non-positive capital.
	ErrInvalidCapital = errors.New("capital must be positive")
	// ErrInvalidFactor is returned by NewLadder for a non-positive or
	// non-finite growth factor.
	ErrInvalidFactor = errors.New("factor must be positive and finite")
)

// Ladder is a layered capital allocator. It is not safe for concurrent use.
type Ladder struct {
	factor float64
	steps  int

	schedule  []float64
	count     int // allocations handed out
	filled    int // fills recorded via SetCost
	size      float64
	cost      float64
	lastPrice float64
}

// NewLadder creates an allocator splitting capital into steps tranches,
// each factor times the previous one.
func NewLadder(factor float64, steps int) (*Ladder, error) {
	if !(factor > 0) || math.IsInf(factor, 1) {
		return nil, ErrInvalidFactor
	}
	if steps < 1 {
		steps = 1
	}
	return &Ladder{factor: factor, steps: steps}, nil
}

// Reset reallocates capital plus every allocation not yet handed out.
func (l *Ladder) Reset(capital float64) error {
	if capital <= 0 || math.IsNaN(capital) {
		return ErrInvalidCapital
	}
	for _, v := range l.schedule[min(l.count, len(l.schedule)):] {
		capital += v
	}
	l.count, l.filled = 0, 0
	l.size, l.cost, l.lastPrice = 0, 0, 0
	l.schedule = allocate(capital, l.factor, l.steps)
	return nil
}

func allocate(total, factor float64, n int) []float64 {
	out := make([]float64, n)
	if factor == 1 {
		for i := range out {
			out[i] = total / float64(n)
		}
		return out
	}
	first := total * (1 - factor) / (1 - math.Pow(factor, float64(n)))
	for i := range out {
		out[i] = first * math.Pow(factor, float64(i))
	}
	sort.Float64s(out)
	return out
}

// Size returns the next allocation converted to a size at price and advances
// the cursor. ok is false when the ladder is used up or price is not strictly
// below the previous accepted price.
func (l *Ladder) Size(price float64) (size float64, ok bool) {
	if price <= 0 {
		return 0, false
	}
	if l.lastPrice != 0 && price >= l.lastPrice {
		return 0, false
	}
	if l.count >= len(l.schedule) {
		return 0, false
	}
	size = l.schedule[l.count] / price
	l.count++
	l.lastPrice = price
	return size, true
}

// SetCost records a fill. The running cost is the plain mean of the previous
// cost and the new price, not a size-weighted average.
func (l *Ladder) SetCost(price, size float64) {
	if l.cost == 0 {
		l.cost = price
	} else {
		l.cost = (l.cost + price) / 2
	}
	l.size += size
	l.filled++
}

// Cost returns the running entry cost.
func (l *Ladder) Cost() float64 { return l.cost }

// Position returns the accumulated filled size.
func (l *Ladder) Position() float64 { return l.size }

// Complete reports whether every allocation handed out has been filled.
func (l *Ladder) Complete() bool { return l.filled == l.count && l.filled > 0 }

// Exhausted reports whether every tranche has been handed out and filled.
func (l *Ladder) Exhausted() bool { return l.count == l.steps && l.filled == l.steps }

// Schedule returns a copy of the allocation schedule.
func (l *Ladder) Schedule() []float64 { return append([]float64(nil), l.schedule...) }

// Remaining returns the sum of allocations not yet handed out.
func (l *Ladder) Remaining() float64 {
	var sum float64
	for _, v := range l.schedule[min(l.count, len(l.schedule)):] {
		sum += v
	}
	return sum
}

// Count returns how many allocations have been handed out.
func (l *Ladder) Count() int { return l.count }
