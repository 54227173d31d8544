package indicator

import (
	"math"
	"sort"
)

// VolumeQuantile tracks a rolling quantile of candle volume over a window
// and flags bars whose volume reaches it. Used as the liquidity gate:
// entries on thin bars are filtered regardless of price action.
//
// The quantile is recomputed from a sorted copy of the window on read;
// with the usual window of 20-50 bars this is cheaper than maintaining an
// order-statistics tree and keeps Update allocation-free.
type VolumeQuantile struct {
	window  int
	q       float64
	buf     []float64
	scratch []float64
	idx     int
	count   int
	last    float64
}

// NewVolumeQuantile creates a rolling volume quantile over `window` bars at
// quantile q (0 < q < 1, e.g. 0.5 for the median).
func NewVolumeQuantile(window int, q float64) *VolumeQuantile {
	return &VolumeQuantile{
		window:  window,
		q:       q,
		buf:     make([]float64, window),
		scratch: make([]float64, window),
	}
}

func (v *VolumeQuantile) Update(volume float64) {
	v.buf[v.idx] = volume
	v.idx = (v.idx + 1) % v.window
	v.count++
	v.last = volume
}

// Quantile returns the current rolling quantile, NaN until the window fills.
// Linear interpolation between adjacent order statistics.
func (v *VolumeQuantile) Quantile() float64 {
	if !v.Ready() {
		return math.NaN()
	}
	copy(v.scratch, v.buf)
	sort.Float64s(v.scratch)

	pos := v.q * float64(v.window-1)
	lo := int(pos)
	if lo >= v.window-1 {
		return v.scratch[v.window-1]
	}
	frac := pos - float64(lo)
	return v.scratch[lo]*(1-frac) + v.scratch[lo+1]*frac
}

// Above reports whether the latest volume reaches the rolling quantile.
// False while the window is warming up (no signal, not a default pass).
func (v *VolumeQuantile) Above() bool {
	q := v.Quantile()
	if math.IsNaN(q) {
		return false
	}
	return v.last >= q
}

// Ready reports whether the window holds `window` samples.
func (v *VolumeQuantile) Ready() bool { return v.count >= v.window }
