package indicator

// RSI calculates the Relative Strength Index with Wilder smoothing of the
// clipped gains and losses. O(1) per update.
//
// Degenerate cases are fixed by contract: while warming up, and whenever the
// smoothed loss is exactly zero, RSI reports the neutral 50 instead of
// dividing by zero. The output is always within [0, 100].
type RSI struct {
	period    int
	avgGain   *WilderEMA
	avgLoss   *WilderEMA
	prevClose float64
	count     int
}

// NewRSI creates an RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period:  period,
		avgGain: NewWilderEMA(period),
		avgLoss: NewWilderEMA(period),
	}
}

func (r *RSI) Update(price float64) {
	r.count++
	if r.count == 1 {
		// First candle: no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.avgGain.Update(gain)
	r.avgLoss.Update(loss)
}

// Value returns the current RSI in [0, 100]. Neutral 50 during warm-up and
// when the smoothed loss is exactly zero.
func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 50
	}
	al := r.avgLoss.Value()
	if al == 0 {
		return 50
	}
	rs := r.avgGain.Value() / al
	return 100 - 100/(1+rs)
}

// Ready reports whether `period` deltas have been smoothed.
func (r *RSI) Ready() bool { return r.avgGain.Ready() && r.avgLoss.Ready() }
