// Package fusion combines indicator state, external source votes and ML
// predictions into per-bar entry/exit signals. One parameterized engine,
// strategy variants are data (profiles), not code.
package fusion

import (
	"fmt"

	"fusion-systemv1/internal/indicator"
)

// EntryMode selects the momentum trigger for entries.
type EntryMode string

const (
	// ModeRSICross enters when RSI crosses the buy/sell level.
	ModeRSICross EntryMode = "rsi_cross"
	// ModeBreakout enters on a Donchian channel break with trend strength.
	ModeBreakout EntryMode = "breakout"
	// ModePullback enters on an RSI dip inside an intact trend.
	ModePullback EntryMode = "pullback"
)

// HourWindow is an optional UTC trading-hours gate [Start, End). A window
// wrapping midnight (Start > End) is allowed.
type HourWindow struct {
	Start int
	End   int
}

// Contains reports whether hour (UTC) falls inside the window.
func (w HourWindow) Contains(hour int) bool {
	if w.Start <= w.End {
		return hour >= w.Start && hour < w.End
	}
	return hour >= w.Start || hour < w.End
}

// ScoreWeights are the combination weights for the external score:
// one per source vote plus the ML term (direction * confidence).
type ScoreWeights struct {
	Onchain float64
	Dex     float64
	News    float64
	ML      float64
}

// Profile is one named strategy parameterization. All thresholds are
// validated at engine construction.
type Profile struct {
	Name      string
	Timeframe string
	Mode      EntryMode
	CanShort  bool

	Indicators indicator.Config

	// RSI levels: cross levels for entries, exit bands for exits,
	// pullback dip level for ModePullback.
	RSIBuyLevel  float64
	RSISellLevel float64
	RSIExitHigh  float64
	RSIExitLow   float64
	RSIPullback  float64

	// Volatility band: entries only while atr_pct is inside [Min, Max].
	ATRPctMin float64
	ATRPctMax float64

	// MinADX gates breakout entries; ignored by other modes.
	MinADX float64

	// External score gate: entries require |combined score| >= EntryScoreMin
	// in the entry direction. UseExternal=false skips the gate entirely.
	UseExternal   bool
	EntryScoreMin float64
	Weights       ScoreWeights

	// TradingHours, when non-nil, suppresses entries outside the window.
	TradingHours *HourWindow
}

// Baseline is the 5m RSI-cross profile.
func Baseline() Profile {
	return Profile{
		Name:          "baseline",
		Timeframe:     "5m",
		Mode:          ModeRSICross,
		CanShort:      false,
		Indicators:    indicator.DefaultConfig(),
		RSIBuyLevel:   50,
		RSISellLevel:  50,
		RSIExitHigh:   70,
		RSIExitLow:    30,
		RSIPullback:   40,
		ATRPctMin:     0.002,
		ATRPctMax:     0.05,
		MinADX:        20,
		UseExternal:   true,
		EntryScoreMin: 0.3,
		Weights:       ScoreWeights{Onchain: 0.3, Dex: 0.3, News: 0.2, ML: 0.2},
	}
}

// Breakout is the 15m Donchian breakout profile with an ADX floor.
func Breakout() Profile {
	p := Baseline()
	p.Name = "breakout"
	p.Timeframe = "15m"
	p.Mode = ModeBreakout
	p.CanShort = true
	p.MinADX = 25
	return p
}

// Pullback enters RSI dips inside an uptrend.
func Pullback() Profile {
	p := Baseline()
	p.Name = "pullback"
	p.Mode = ModePullback
	return p
}

// Profiles returns the built-in profiles by name.
func Profiles() map[string]Profile {
	return map[string]Profile{
		"baseline": Baseline(),
		"breakout": Breakout(),
		"pullback": Pullback(),
	}
}

// Validate checks all thresholds; invalid profiles fail engine construction.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("fusion profile: empty name")
	}
	switch p.Mode {
	case ModeRSICross, ModeBreakout, ModePullback:
	default:
		return fmt.Errorf("fusion profile %s: unknown entry mode %q", p.Name, p.Mode)
	}
	if err := p.Indicators.Validate(); err != nil {
		return fmt.Errorf("fusion profile %s: %w", p.Name, err)
	}
	for label, v := range map[string]float64{
		"rsi_buy_level": p.RSIBuyLevel, "rsi_sell_level": p.RSISellLevel,
		"rsi_exit_high": p.RSIExitHigh, "rsi_exit_low": p.RSIExitLow,
		"rsi_pullback": p.RSIPullback,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("fusion profile %s: %s=%g outside [0,100]", p.Name, label, v)
		}
	}
	if p.ATRPctMin < 0 || p.ATRPctMax <= p.ATRPctMin {
		return fmt.Errorf("fusion profile %s: atr_pct band [%g,%g] invalid", p.Name, p.ATRPctMin, p.ATRPctMax)
	}
	if p.MinADX < 0 || p.MinADX > 100 {
		return fmt.Errorf("fusion profile %s: min_adx=%g outside [0,100]", p.Name, p.MinADX)
	}
	if p.UseExternal {
		if p.EntryScoreMin <= 0 || p.EntryScoreMin > 1 {
			return fmt.Errorf("fusion profile %s: entry_score_min=%g outside (0,1]", p.Name, p.EntryScoreMin)
		}
		if w := p.Weights; w.Onchain < 0 || w.Dex < 0 || w.News < 0 || w.ML < 0 {
			return fmt.Errorf("fusion profile %s: negative score weight", p.Name)
		}
	}
	if w := p.TradingHours; w != nil {
		if w.Start < 0 || w.Start > 23 || w.End < 0 || w.End > 24 {
			return fmt.Errorf("fusion profile %s: trading hours [%d,%d) invalid", p.Name, w.Start, w.End)
		}
	}
	return nil
}
