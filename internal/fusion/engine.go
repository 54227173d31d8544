package fusion

import (
	"fmt"
	"math"
	"time"

	"fusion-systemv1/internal/indicator"
	"fusion-systemv1/internal/model"
	"fusion-systemv1/internal/signals"
)

// Signal is the raw fusion outcome for one bar, before protection gating.
type Signal struct {
	EnterLong  bool
	EnterShort bool
	ExitLong   bool
	ExitShort  bool

	// ExternalScore is the combined weighted source+ML score used for the
	// entry gate (0 when UseExternal is off).
	ExternalScore float64
}

// Inputs is everything Evaluate needs for one closed bar. Prev is the row
// one bar earlier; HavePrev is false on the very first bar.
type Inputs struct {
	TS       time.Time
	Row      indicator.Row
	Prev     indicator.Row
	HavePrev bool

	Votes []signals.Vote
	ML    model.PredictionResult
}

// Engine evaluates one profile. Pure and deterministic: identical inputs
// always produce identical signals, nothing is fetched or cached here.
type Engine struct {
	profile Profile
}

// NewEngine validates the profile and builds the engine.
func NewEngine(p Profile) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("fusion: %w", err)
	}
	return &Engine{profile: p}, nil
}

// Profile returns the engine's profile.
func (e *Engine) Profile() Profile { return e.profile }

// Combine folds source votes and the ML prediction into one score.
// A stale ML result contributes 0 regardless of weight.
func (e *Engine) Combine(votes []signals.Vote, ml model.PredictionResult) float64 {
	w := e.profile.Weights
	var score float64
	for _, v := range votes {
		switch v.SourceID {
		case "onchain":
			score += w.Onchain * float64(v.Vote)
		case "dex":
			score += w.Dex * float64(v.Vote)
		case "news":
			score += w.News * float64(v.Vote)
		}
	}
	if !ml.Stale {
		score += w.ML * float64(ml.Direction) * ml.Confidence
	}
	return score
}

// Evaluate computes the signal for one closed bar. Undefined (NaN) indicator
// values make every condition involving them false: warm-up bars produce no
// entries and no exits.
func (e *Engine) Evaluate(in Inputs) Signal {
	p := e.profile
	row := in.Row

	var sig Signal
	if p.UseExternal {
		sig.ExternalScore = e.Combine(in.Votes, in.ML)
	}

	// Shared entry gates. NaN comparisons are false, so an undefined
	// ATRPct or EMA never opens a gate.
	volBand := row.ATRPct >= p.ATRPctMin && row.ATRPct <= p.ATRPctMax
	trendUp := row.EMAFast > row.EMASlow || row.RegimeLong
	trendDown := row.EMAFast < row.EMASlow || row.RegimeShort
	hours := p.TradingHours == nil || p.TradingHours.Contains(in.TS.UTC().Hour())

	entryOK := volBand && row.VolumeAbove && hours

	if entryOK && trendUp && e.longTrigger(in) && e.scoreAllowsLong(sig.ExternalScore) {
		sig.EnterLong = true
	}
	if p.CanShort && entryOK && trendDown && e.shortTrigger(in) && e.scoreAllowsShort(sig.ExternalScore) {
		sig.EnterShort = true
	}

	// Exits are single-condition and ignore the entry gates: momentum
	// exhaustion or a close through the fast EMA.
	sig.ExitLong = row.RSI > p.RSIExitHigh || row.Close < row.EMAFast
	if p.CanShort {
		sig.ExitShort = row.RSI < p.RSIExitLow || row.Close > row.EMAFast
	}

	return sig
}

// longTrigger evaluates the profile's momentum trigger for longs.
func (e *Engine) longTrigger(in Inputs) bool {
	p := e.profile
	row := in.Row
	switch p.Mode {
	case ModeRSICross:
		// Crossing bar only: below the level on the previous bar, at or
		// above it now.
		return in.HavePrev && in.Prev.RSI < p.RSIBuyLevel && row.RSI >= p.RSIBuyLevel
	case ModeBreakout:
		// Close breaks the previous bar's channel top. The current bar's
		// channel already contains its own high, so the comparison uses
		// the prior row.
		return in.HavePrev && row.Close > in.Prev.DonchianHigh && row.ADX >= p.MinADX
	case ModePullback:
		// RSI dip with momentum still positive.
		return row.RSI <= p.RSIPullback && row.MACDHist > 0
	}
	return false
}

// shortTrigger mirrors longTrigger.
func (e *Engine) shortTrigger(in Inputs) bool {
	p := e.profile
	row := in.Row
	switch p.Mode {
	case ModeRSICross:
		return in.HavePrev && in.Prev.RSI > p.RSISellLevel && row.RSI <= p.RSISellLevel
	case ModeBreakout:
		return in.HavePrev && row.Close < in.Prev.DonchianLow && row.ADX >= p.MinADX
	case ModePullback:
		return row.RSI >= 100-p.RSIPullback && row.MACDHist < 0
	}
	return false
}

func (e *Engine) scoreAllowsLong(score float64) bool {
	if !e.profile.UseExternal {
		return true
	}
	return score >= e.profile.EntryScoreMin
}

func (e *Engine) scoreAllowsShort(score float64) bool {
	if !e.profile.UseExternal {
		return true
	}
	return score <= -e.profile.EntryScoreMin
}

// Decision assembles the published per-bar decision from a signal.
func (e *Engine) Decision(pair string, in Inputs, sig Signal, blockReasons []string) model.Decision {
	score := sig.ExternalScore
	if math.IsNaN(score) {
		score = 0
	}
	return model.Decision{
		Pair:          pair,
		Timeframe:     e.profile.Timeframe,
		TS:            in.TS,
		EnterLong:     sig.EnterLong,
		EnterShort:    sig.EnterShort,
		ExitLong:      sig.ExitLong,
		ExitShort:     sig.ExitShort,
		ExternalScore: score,
		MLDirection:   in.ML.Direction,
		MLConfidence:  in.ML.Confidence,
		BlockReasons:  blockReasons,
	}
}
