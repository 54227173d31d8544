package indicator

import "math"

// ATR calculates the Average True Range with Wilder smoothing. The first
// bar has no previous close, so its true range degrades to high-low.
// O(1) per update. ATR is never negative for defined rows.
type ATR struct {
	period    int
	smoothed  *WilderEMA
	prevClose float64
	count     int
}

// NewATR creates an ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{
		period:   period,
		smoothed: NewWilderEMA(period),
	}
}

// UpdateHLC feeds the next bar's high, low and close.
func (a *ATR) UpdateHLC(high, low, close float64) {
	a.count++
	tr := high - low
	if a.count > 1 {
		tr = math.Max(tr, math.Max(
			math.Abs(high-a.prevClose),
			math.Abs(low-a.prevClose),
		))
	}
	a.prevClose = close
	a.smoothed.Update(tr)
}

func (a *ATR) Value() float64 { return a.smoothed.Value() }
func (a *ATR) Ready() bool    { return a.smoothed.Ready() }

// Pct returns ATR normalized by the given close price (atr_pct). Returns NaN
// when not ready or close is zero; clamped at zero since a negative ratio
// can only arise from corrupt input.
func (a *ATR) Pct(close float64) float64 {
	if !a.Ready() || close == 0 {
		return math.NaN()
	}
	pct := a.smoothed.Value() / close
	if pct < 0 {
		return 0
	}
	return pct
}
