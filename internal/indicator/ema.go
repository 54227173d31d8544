package indicator

// EMA calculates a trend Exponential Moving Average.
// alpha = 2/(period+1); the first price seeds the recurrence directly, so
// ema[i] depends only on close[0..i]. O(1) per update.
type EMA struct {
	period int
	alpha  float64
	value  float64
	count  int
}

// NewEMA creates a trend EMA with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

func (e *EMA) Update(price float64) {
	e.count++
	if e.count == 1 {
		e.value = price
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
}

func (e *EMA) Value() float64 { return e.value }

// Ready reports whether the recurrence has seen at least `period` samples.
// The value is mathematically defined from the first sample, but early values
// are dominated by the seed and treated as warm-up.
func (e *EMA) Ready() bool { return e.count >= e.period }

// Count returns the number of samples consumed.
func (e *EMA) Count() int { return e.count }

// WilderEMA is the Wilder-style smoothed average with alpha = 1/period,
// used by RSI, ATR and ADX. The recurrence also starts at the first sample,
// but the output is undefined until `period` samples have arrived
// (pandas ewm(alpha=1/p, adjust=False, min_periods=p) semantics).
type WilderEMA struct {
	period int
	alpha  float64
	value  float64
	count  int
}

// NewWilderEMA creates a Wilder smoother with the given period.
func NewWilderEMA(period int) *WilderEMA {
	return &WilderEMA{
		period: period,
		alpha:  1.0 / float64(period),
	}
}

func (w *WilderEMA) Update(sample float64) {
	w.count++
	if w.count == 1 {
		w.value = sample
		return
	}
	w.value = w.alpha*sample + (1-w.alpha)*w.value
}

func (w *WilderEMA) Value() float64 { return w.value }
func (w *WilderEMA) Ready() bool    { return w.count >= w.period }
