package indicator

import "math"

// adxFallback is reported when the DX denominator (+DI + -DI) is zero.
// Matches the original strategy's NaN fill for flat markets.
const adxFallback = 20.0

// ADX calculates the full Wilder Average Directional Index.
//
// +DM/-DM use the standard masking rule: only the larger of the two
// directional moves counts, and only when positive. DM and true range are
// Wilder-smoothed into +DI/-DI, DX = 100*|+DI - -DI|/(+DI + -DI), and ADX is
// the Wilder smoothing of DX. Simplified ADX variants (rolling mean of ATR)
// are deliberately not implemented here. O(1) per update.
type ADX struct {
	period int

	plusDM  *WilderEMA
	minusDM *WilderEMA
	tr      *WilderEMA
	dx      *WilderEMA

	prevHigh  float64
	prevLow   float64
	prevClose float64
	count     int
}

// NewADX creates an ADX indicator with the given period (typically 14).
func NewADX(period int) *ADX {
	return &ADX{
		period:  period,
		plusDM:  NewWilderEMA(period),
		minusDM: NewWilderEMA(period),
		tr:      NewWilderEMA(period),
		dx:      NewWilderEMA(period),
	}
}

// UpdateHLC feeds the next bar's high, low and close.
func (a *ADX) UpdateHLC(high, low, close float64) {
	a.count++
	if a.count == 1 {
		a.prevHigh, a.prevLow, a.prevClose = high, low, close
		return
	}

	upMove := high - a.prevHigh
	downMove := a.prevLow - low

	plus, minus := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		plus = upMove
	}
	if downMove > upMove && downMove > 0 {
		minus = downMove
	}

	tr := math.Max(high-low, math.Max(
		math.Abs(high-a.prevClose),
		math.Abs(low-a.prevClose),
	))

	a.prevHigh, a.prevLow, a.prevClose = high, low, close

	a.plusDM.Update(plus)
	a.minusDM.Update(minus)
	a.tr.Update(tr)
	a.dx.Update(a.currentDX())
}

// currentDX computes DX from the smoothed components, guarding both the
// zero true range and the zero DI-sum degenerate cases.
func (a *ADX) currentDX() float64 {
	trv := a.tr.Value()
	if trv == 0 {
		return adxFallback
	}
	plusDI := 100 * a.plusDM.Value() / trv
	minusDI := 100 * a.minusDM.Value() / trv

	sum := plusDI + minusDI
	if sum == 0 {
		return adxFallback
	}
	return 100 * math.Abs(plusDI-minusDI) / sum
}

// Value returns the current ADX in [0, 100].
func (a *ADX) Value() float64 { return a.dx.Value() }

// PlusDI returns the current +DI. Meaningless before Ready().
func (a *ADX) PlusDI() float64 {
	if a.tr.Value() == 0 {
		return 0
	}
	return 100 * a.plusDM.Value() / a.tr.Value()
}

// MinusDI returns the current -DI. Meaningless before Ready().
func (a *ADX) MinusDI() float64 {
	if a.tr.Value() == 0 {
		return 0
	}
	return 100 * a.minusDM.Value() / a.tr.Value()
}

// Ready reports whether both smoothing stages have warmed up
// (roughly 2*period bars).
func (a *ADX) Ready() bool { return a.dx.Ready() && a.tr.Ready() }
