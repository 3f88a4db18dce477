package indicators

// RSIStream is an incremental Wilder RSI. The first value is available after
// period+1 inputs; averages are seeded with a simple mean.
type RSIStream struct {
	period  int
	prev    float64
	seen    int
	gains   []float64
	losses  []float64
	avgGain float64
	avgLoss float64
}

// NewRSIStream creates an RSI over period bars.
func NewRSIStream(period int) *RSIStream {
	if period < 1 {
		period = 1
	}
	return &RSIStream{period: period}
}

// Update ingests the next close. ok is false until enough values were seen.
func (r *RSIStream) Update(close float64) (float64, bool) {
	r.seen++
	if r.seen == 1 {
		r.prev = close
		return 0, false
	}
	change := close - r.prev
	r.prev = close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	n := float64(r.period)
	switch {
	case r.seen <= r.period:
		r.gains = append(r.gains, gain)
		r.losses = append(r.losses, loss)
		return 0, false
	case r.seen == r.period+1:
		r.gains = append(r.gains, gain)
		r.losses = append(r.losses, loss)
		r.avgGain = SMA(r.gains, r.period)
		r.avgLoss = SMA(r.losses, r.period)
		r.gains, r.losses = nil, nil
	default:
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs), true
}

// Ready reports whether Update has produced a value.
func (r *RSIStream) Ready() bool { return r.seen > r.period }
