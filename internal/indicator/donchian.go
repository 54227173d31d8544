package indicator

import "math"

// Donchian tracks the rolling channel: max(high) and min(low) over the last
// N bars. Uses preallocated circular buffers; the channel is undefined until
// N bars have arrived. The scan on read is O(N) with small N (20-60),
// which keeps updates allocation-free.
type Donchian struct {
	period int
	highs  []float64
	lows   []float64
	idx    int
	count  int
}

// NewDonchian creates a Donchian channel over the given period.
func NewDonchian(period int) *Donchian {
	return &Donchian{
		period: period,
		highs:  make([]float64, period),
		lows:   make([]float64, period),
	}
}

// UpdateHL feeds the next bar's high and low.
func (d *Donchian) UpdateHL(high, low float64) {
	d.highs[d.idx] = high
	d.lows[d.idx] = low
	d.idx = (d.idx + 1) % d.period
	d.count++
}

// High returns the channel upper bound, NaN until the window is full.
func (d *Donchian) High() float64 {
	if !d.Ready() {
		return math.NaN()
	}
	max := d.highs[0]
	for _, h := range d.highs[1:] {
		if h > max {
			max = h
		}
	}
	return max
}

// Low returns the channel lower bound, NaN until the window is full.
func (d *Donchian) Low() float64 {
	if !d.Ready() {
		return math.NaN()
	}
	min := d.lows[0]
	for _, l := range d.lows[1:] {
		if l < min {
			min = l
		}
	}
	return min
}

// Ready reports whether the window holds `period` bars.
func (d *Donchian) Ready() bool { return d.count >= d.period }
