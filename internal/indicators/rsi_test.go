package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// lastRSI feeds values through a stream and returns the last value, or 0
// before warmup.
func lastRSI(values []float64, period int) float64 {
	r := NewRSIStream(period)
	v := 0.0
	for _, x := range values {
		if out, ok := r.Update(x); ok {
			v = out
		}
	}
	return v
}

func TestRSIWarmup(t *testing.T) {
	r := NewRSIStream(3)
	for _, v := range []float64{1, 2, 3} {
		_, ok := r.Update(v)
		assert.False(t, ok)
	}
	assert.False(t, r.Ready())
	v, ok := r.Update(4)
	assert.True(t, ok)
	assert.Equal(t, 100.0, v)
	assert.True(t, r.Ready())
}

func TestRSIBounds(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"rising", []float64{1, 2, 3, 4, 5, 6}, 100},
		{"falling", []float64{6, 5, 4, 3, 2, 1}, 0},
		{"flat", []float64{2, 2, 2, 2, 2}, 50},
		{"short", []float64{1, 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, lastRSI(tt.values, 3), 1e-9)
		})
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	// changes: +1 -1 +1 | +2 with period 3
	// seed avgGain=2/3 avgLoss=1/3, then gain 2: avgGain=(2/3*2+2)/3=10/9, avgLoss=(1/3*2)/3=2/9
	got := lastRSI([]float64{10, 11, 10, 11, 13}, 3)
	assert.InDelta(t, 100-100/(1+5.0), got, 1e-9)
}

func TestSMA(t *testing.T) {
	assert.Equal(t, 2.0, SMA([]float64{1, 2, 3}, 3))
	assert.Equal(t, 2.5, SMA([]float64{1, 2, 3}, 2))
	assert.Equal(t, 0.0, SMA([]float64{1}, 2))
}
