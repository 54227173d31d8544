// Package indicator provides incremental technical indicator calculations
// over candle streams.
//
// Two smoothing conventions coexist and are NOT interchangeable:
//
//   - trend EMA: alpha = 2/(period+1), seeded with the first price
//     (pandas ewm(span=p, adjust=False) semantics)
//   - Wilder smoothing: alpha = 1/period, used by RSI/ATR/ADX, with the
//     value considered undefined until `period` samples have arrived
//
// All indicators update in O(1) per candle. Warm-up values are reported via
// Ready(); the engine converts not-ready values to NaN so that undefined
// never silently acquires a directional bias downstream.
package indicator

import "math"

// Indicator is the interface for single-valued incremental indicators.
type Indicator interface {
	// Update feeds the next closing price and recalculates.
	Update(price float64)

	// Value returns the current value. Meaningless before Ready().
	Value() float64

	// Ready reports whether enough data has been accumulated.
	Ready() bool
}

// maskNaN returns v when ready, NaN otherwise. Row builders use it so that
// warm-up values propagate as "no signal" instead of zero.
func maskNaN(v float64, ready bool) float64 {
	if !ready {
		return math.NaN()
	}
	return v
}

// Defined reports whether an indicator row value is usable (finite).
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
