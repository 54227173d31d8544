package indicator

import (
	"fmt"
	"time"
)

// Config specifies the indicator set computed per series.
// Invalid values are construction-time errors: wrong periods produce
// silently wrong math, so NewEngine fails fast instead.
type Config struct {
	EMAFastPeriod int // trend filter fast EMA (e.g. 50)
	EMASlowPeriod int // trend filter slow EMA (e.g. 200)

	RSIPeriod int // e.g. 14
	ATRPeriod int // e.g. 14
	ADXPeriod int // e.g. 14

	MACDFast   int // e.g. 12
	MACDSlow   int // e.g. 26
	MACDSignal int // e.g. 9

	DonchianPeriod int // breakout channel window (e.g. 40)

	VolumeWindow   int     // rolling volume quantile window (e.g. 20)
	VolumeQuantile float64 // quantile level (e.g. 0.5)

	RegimeEMAPeriod int // regime-defining EMA (e.g. 200)
	RegimeSlopeBars int // slope lookback for the regime EMA (e.g. 3)
}

// DefaultConfig returns the indicator set used by the baseline strategy.
func DefaultConfig() Config {
	return Config{
		EMAFastPeriod:   50,
		EMASlowPeriod:   200,
		RSIPeriod:       14,
		ATRPeriod:       14,
		ADXPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		DonchianPeriod:  40,
		VolumeWindow:    20,
		VolumeQuantile:  0.5,
		RegimeEMAPeriod: 200,
		RegimeSlopeBars: 3,
	}
}

// Validate checks all periods and levels.
func (c Config) Validate() error {
	for name, p := range map[string]int{
		"ema_fast": c.EMAFastPeriod, "ema_slow": c.EMASlowPeriod,
		"rsi": c.RSIPeriod, "atr": c.ATRPeriod, "adx": c.ADXPeriod,
		"macd_fast": c.MACDFast, "macd_slow": c.MACDSlow, "macd_signal": c.MACDSignal,
		"donchian": c.DonchianPeriod, "volume_window": c.VolumeWindow,
		"regime_ema": c.RegimeEMAPeriod, "regime_slope_bars": c.RegimeSlopeBars,
	} {
		if p <= 0 {
			return fmt.Errorf("indicator config: %s period must be positive, got %d", name, p)
		}
	}
	if c.EMAFastPeriod >= c.EMASlowPeriod {
		return fmt.Errorf("indicator config: ema_fast (%d) must be shorter than ema_slow (%d)",
			c.EMAFastPeriod, c.EMASlowPeriod)
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("indicator config: macd_fast (%d) must be shorter than macd_slow (%d)",
			c.MACDFast, c.MACDSlow)
	}
	if c.VolumeQuantile <= 0 || c.VolumeQuantile >= 1 {
		return fmt.Errorf("indicator config: volume quantile must be in (0,1), got %g", c.VolumeQuantile)
	}
	return nil
}

// Row is the derived indicator state for one closed candle. Undefined
// (warm-up) values are NaN; boolean gates are false during warm-up.
// Row i is a pure function of candles [0..i] — no lookahead.
type Row struct {
	TS    time.Time
	Close float64

	EMAFast float64
	EMASlow float64
	RSI     float64
	ATR     float64
	ATRPct  float64

	MACD       float64
	MACDSignal float64
	MACDHist   float64

	ADX float64

	DonchianHigh float64
	DonchianLow  float64

	VolumeAbove bool // volume >= rolling quantile

	RegimeLong  bool
	RegimeShort bool
}

// Engine computes the full indicator row incrementally for one candle
// series. Per-pair evaluation is strictly sequential, so no locks are
// needed here.
type Engine struct {
	cfg Config

	emaFast *EMA
	emaSlow *EMA
	rsi     *RSI
	atr     *ATR
	macd    *MACD
	adx     *ADX
	don     *Donchian
	vol     *VolumeQuantile

	regime      *EMA
	regimeHist  []float64 // last RegimeSlopeBars+1 regime EMA values
	regimeCount int

	rows []Row
}

// NewEngine creates an indicator engine for one series. Returns an error on
// invalid configuration (fail fast, never silently wrong math).
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		emaFast:    NewEMA(cfg.EMAFastPeriod),
		emaSlow:    NewEMA(cfg.EMASlowPeriod),
		rsi:        NewRSI(cfg.RSIPeriod),
		atr:        NewATR(cfg.ATRPeriod),
		macd:       NewMACD(cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal),
		adx:        NewADX(cfg.ADXPeriod),
		don:        NewDonchian(cfg.DonchianPeriod),
		vol:        NewVolumeQuantile(cfg.VolumeWindow, cfg.VolumeQuantile),
		regime:     NewEMA(cfg.RegimeEMAPeriod),
		regimeHist: make([]float64, 0, cfg.RegimeSlopeBars+1),
	}, nil
}

// Update feeds one closed candle and returns the computed row. Historical
// rows are immutable once computed; appending future candles never changes
// past rows.
func (e *Engine) Update(ts time.Time, open, high, low, close, volume float64) Row {
	e.emaFast.Update(close)
	e.emaSlow.Update(close)
	e.rsi.Update(close)
	e.atr.UpdateHLC(high, low, close)
	e.macd.Update(close)
	e.adx.UpdateHLC(high, low, close)
	e.don.UpdateHL(high, low)
	e.vol.Update(volume)

	e.regime.Update(close)
	e.regimeCount++
	if len(e.regimeHist) == cap(e.regimeHist) {
		copy(e.regimeHist, e.regimeHist[1:])
		e.regimeHist = e.regimeHist[:len(e.regimeHist)-1]
	}
	e.regimeHist = append(e.regimeHist, e.regime.Value())

	row := Row{
		TS:    ts,
		Close: close,

		EMAFast: maskNaN(e.emaFast.Value(), e.emaFast.Ready()),
		EMASlow: maskNaN(e.emaSlow.Value(), e.emaSlow.Ready()),
		RSI:     e.rsi.Value(), // neutral 50 during warm-up by contract
		ATR:     maskNaN(e.atr.Value(), e.atr.Ready()),
		ATRPct:  e.atr.Pct(close),

		MACD:       maskNaN(e.macd.Line(), e.macd.Ready()),
		MACDSignal: maskNaN(e.macd.Signal(), e.macd.Ready()),
		MACDHist:   maskNaN(e.macd.Hist(), e.macd.Ready()),

		ADX: maskNaN(e.adx.Value(), e.adx.Ready()),

		DonchianHigh: e.don.High(),
		DonchianLow:  e.don.Low(),

		VolumeAbove: e.vol.Above(),
	}

	row.RegimeLong, row.RegimeShort = e.regimeFlags(close)

	e.rows = append(e.rows, row)
	return row
}

// regimeFlags evaluates the regime filter: price relative to the regime EMA
// with a same-signed slope over the lookback. Both false during warm-up.
func (e *Engine) regimeFlags(close float64) (long, short bool) {
	if e.regimeCount < e.cfg.RegimeEMAPeriod || len(e.regimeHist) <= e.cfg.RegimeSlopeBars {
		return false, false
	}
	cur := e.regimeHist[len(e.regimeHist)-1]
	prev := e.regimeHist[len(e.regimeHist)-1-e.cfg.RegimeSlopeBars]
	slope := cur - prev
	return close > cur && slope > 0, close < cur && slope < 0
}

// Len returns the number of computed rows.
func (e *Engine) Len() int { return len(e.rows) }

// At returns the row at index i (0 = oldest). Idempotent: repeated queries
// of historical rows always return the same values.
func (e *Engine) At(i int) Row { return e.rows[i] }

// Last returns the most recent row, or false when no candle has been fed.
func (e *Engine) Last() (Row, bool) {
	if len(e.rows) == 0 {
		return Row{}, false
	}
	return e.rows[len(e.rows)-1], true
}

// Prev returns the row one bar before the last, or false if unavailable.
// Cross triggers (RSI crossing a threshold, histogram sign flip) compare the
// last two rows.
func (e *Engine) Prev() (Row, bool) {
	if len(e.rows) < 2 {
		return Row{}, false
	}
	return e.rows[len(e.rows)-2], true
}
