package indicator

// MACD calculates Moving Average Convergence/Divergence using trend-EMA
// smoothing for all three lines (12/26/9 by convention). The signal line
// smooths the macd line itself. O(1) per update.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD indicator with the given fast/slow/signal periods.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	m.signal.Update(m.fast.Value() - m.slow.Value())
}

// Line returns the macd line (fast EMA - slow EMA).
func (m *MACD) Line() float64 { return m.fast.Value() - m.slow.Value() }

// Signal returns the signal line (trend EMA of the macd line).
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Hist returns the histogram (macd - signal).
func (m *MACD) Hist() float64 { return m.Line() - m.signal.Value() }

// Ready reports whether the slow EMA (the longest recurrence) is warmed up.
func (m *MACD) Ready() bool { return m.slow.Ready() }
