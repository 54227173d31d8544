package fusion

import (
	"math"
	"testing"
	"time"

	"fusion-systemv1/internal/indicator"
	"fusion-systemv1/internal/model"
	"fusion-systemv1/internal/signals"
)

// trendingRow builds a fully warmed-up row in an uptrend with the
// volatility and volume gates open.
func trendingRow(rsi float64) indicator.Row {
	return indicator.Row{
		Close:       105,
		EMAFast:     104,
		EMASlow:     100,
		RSI:         rsi,
		ATR:         1.05,
		ATRPct:      0.01,
		MACD:        0.5,
		MACDSignal:  0.3,
		MACDHist:    0.2,
		ADX:         30,
		VolumeAbove: true,
		RegimeLong:  true,
	}
}

func noExternal(p Profile) Profile {
	p.UseExternal = false
	return p
}

func ts(i int) time.Time {
	return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC).Add(time.Duration(i) * 5 * time.Minute)
}

func TestEvaluate_RSICrossFiresOnCrossingBarOnly(t *testing.T) {
	e, err := NewEngine(noExternal(Baseline()))
	if err != nil {
		t.Fatal(err)
	}

	// RSI path 45 → 55 → 60: the 55 bar crosses the 50 level, the 60 bar
	// is merely above it.
	path := []float64{45, 55, 60}
	var entries []int
	prev := indicator.Row{}
	for i, rsi := range path {
		in := Inputs{TS: ts(i), Row: trendingRow(rsi), Prev: prev, HavePrev: i > 0}
		if e.Evaluate(in).EnterLong {
			entries = append(entries, i)
		}
		prev = in.Row
	}
	if len(entries) != 1 || entries[0] != 1 {
		t.Errorf("entries on bars %v, want exactly bar 1 (the crossing bar)", entries)
	}
}

func TestEvaluate_VolumeGateBlocksAllEntries(t *testing.T) {
	e, err := NewEngine(noExternal(Baseline()))
	if err != nil {
		t.Fatal(err)
	}

	// 500 bars oscillating RSI around the buy level, all perfect except
	// the volume flag: zero entries.
	prev := indicator.Row{}
	for i := 0; i < 500; i++ {
		rsi := 45.0
		if i%2 == 1 {
			rsi = 55
		}
		row := trendingRow(rsi)
		row.VolumeAbove = false
		in := Inputs{TS: ts(i), Row: row, Prev: prev, HavePrev: i > 0}
		if sig := e.Evaluate(in); sig.EnterLong || sig.EnterShort {
			t.Fatalf("bar %d: entry despite failed volume gate", i)
		}
		prev = row
	}
}

func TestEvaluate_WarmupRowsAreInert(t *testing.T) {
	e, err := NewEngine(noExternal(Baseline()))
	if err != nil {
		t.Fatal(err)
	}
	// Everything undefined, RSI neutral: no entries, no exits, no panic.
	nan := math.NaN()
	row := indicator.Row{
		Close: 100, EMAFast: nan, EMASlow: nan, RSI: 50,
		ATR: nan, ATRPct: nan, MACD: nan, MACDSignal: nan, MACDHist: nan,
		ADX: nan, DonchianHigh: nan, DonchianLow: nan,
	}
	sig := e.Evaluate(Inputs{TS: ts(0), Row: row})
	if sig.EnterLong || sig.EnterShort || sig.ExitLong || sig.ExitShort {
		t.Errorf("warm-up row produced a signal: %+v", sig)
	}
}

func TestEvaluate_ExitConditions(t *testing.T) {
	e, err := NewEngine(noExternal(Baseline()))
	if err != nil {
		t.Fatal(err)
	}

	// Momentum exhaustion: RSI above the exit band.
	hot := trendingRow(75)
	if !e.Evaluate(Inputs{TS: ts(0), Row: hot}).ExitLong {
		t.Error("RSI 75 > exit 70 must exit longs")
	}

	// Close through the fast EMA.
	broken := trendingRow(55)
	broken.Close = 103
	broken.EMAFast = 104
	if !e.Evaluate(Inputs{TS: ts(0), Row: broken}).ExitLong {
		t.Error("close below fast EMA must exit longs")
	}

	// Healthy trend bar: no exit.
	if e.Evaluate(Inputs{TS: ts(0), Row: trendingRow(55)}).ExitLong {
		t.Error("healthy bar exited")
	}
}

func TestEvaluate_CanShortFalseForcesShortsOff(t *testing.T) {
	p := noExternal(Breakout())
	p.CanShort = false
	e, err := NewEngine(p)
	if err != nil {
		t.Fatal(err)
	}

	// Clean downside breakout bar.
	prev := trendingRow(40)
	prev.DonchianLow = 101
	row := indicator.Row{
		Close: 99, EMAFast: 100, EMASlow: 104, RSI: 25,
		ATRPct: 0.01, ADX: 35, DonchianLow: 98, DonchianHigh: 110,
		VolumeAbove: true, RegimeShort: true,
	}
	sig := e.Evaluate(Inputs{TS: ts(1), Row: row, Prev: prev, HavePrev: true})
	if sig.EnterShort || sig.ExitShort {
		t.Errorf("CanShort=false leaked a short signal: %+v", sig)
	}
}

func TestEvaluate_BreakoutNeedsADX(t *testing.T) {
	e, err := NewEngine(noExternal(Breakout()))
	if err != nil {
		t.Fatal(err)
	}
	prev := trendingRow(60)
	prev.DonchianHigh = 104

	row := trendingRow(60)
	row.Close = 105 // above the prior channel top
	row.ADX = 15    // but no trend strength
	if e.Evaluate(Inputs{TS: ts(1), Row: row, Prev: prev, HavePrev: true}).EnterLong {
		t.Error("breakout without ADX floor entered")
	}

	row.ADX = 30
	if !e.Evaluate(Inputs{TS: ts(1), Row: row, Prev: prev, HavePrev: true}).EnterLong {
		t.Error("clean breakout with ADX did not enter")
	}
}

func TestEvaluate_ExternalScoreGate(t *testing.T) {
	p := Baseline() // UseExternal on, EntryScoreMin 0.3
	e, err := NewEngine(p)
	if err != nil {
		t.Fatal(err)
	}

	cross := Inputs{
		TS: ts(1), Row: trendingRow(55), Prev: trendingRow(45), HavePrev: true,
	}

	// All sources neutral: score 0 < 0.3, no entry.
	if e.Evaluate(cross).EnterLong {
		t.Error("neutral external score cleared the gate")
	}

	// Two bullish votes: 0.3*1 + 0.3*1 = 0.6 >= 0.3.
	cross.Votes = []signals.Vote{
		{SourceID: "onchain", Vote: 1},
		{SourceID: "dex", Vote: 1},
		{SourceID: "news", Vote: 0},
	}
	sig := e.Evaluate(cross)
	if !sig.EnterLong {
		t.Error("bullish external score did not clear the gate")
	}
	if math.Abs(sig.ExternalScore-0.6) > 1e-9 {
		t.Errorf("combined score %.4f, want 0.6", sig.ExternalScore)
	}
}

func TestCombine_Weighting(t *testing.T) {
	e, err := NewEngine(Baseline())
	if err != nil {
		t.Fatal(err)
	}
	votes := []signals.Vote{
		{SourceID: "onchain", Vote: 1},
		{SourceID: "dex", Vote: -1},
		{SourceID: "news", Vote: 1},
	}
	ml := model.PredictionResult{Direction: 1, Confidence: 0.8}
	// 0.3 - 0.3 + 0.2 + 0.2*0.8 = 0.36
	got := e.Combine(votes, ml)
	if math.Abs(got-0.36) > 1e-9 {
		t.Errorf("combined %.4f, want 0.36", got)
	}

	// A stale ML result contributes nothing.
	ml.Stale = true
	if got := e.Combine(votes, ml); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("stale ML combined %.4f, want 0.2", got)
	}
}

func TestEvaluate_TradingHoursGate(t *testing.T) {
	p := noExternal(Baseline())
	p.TradingHours = &HourWindow{Start: 8, End: 20}
	e, err := NewEngine(p)
	if err != nil {
		t.Fatal(err)
	}

	cross := Inputs{Row: trendingRow(55), Prev: trendingRow(45), HavePrev: true}

	cross.TS = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	if !e.Evaluate(cross).EnterLong {
		t.Error("entry inside trading hours blocked")
	}

	cross.TS = time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	if e.Evaluate(cross).EnterLong {
		t.Error("entry outside trading hours allowed")
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	e, err := NewEngine(Baseline())
	if err != nil {
		t.Fatal(err)
	}
	in := Inputs{
		TS: ts(3), Row: trendingRow(55), Prev: trendingRow(45), HavePrev: true,
		Votes: []signals.Vote{{SourceID: "onchain", Vote: 1}, {SourceID: "dex", Vote: 1}},
		ML:    model.PredictionResult{Direction: 1, Confidence: 0.7},
	}
	first := e.Evaluate(in)
	for i := 0; i < 100; i++ {
		if got := e.Evaluate(in); got != first {
			t.Fatalf("evaluation %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestHourWindow_Wrapping(t *testing.T) {
	w := HourWindow{Start: 22, End: 4}
	for _, h := range []int{22, 23, 0, 3} {
		if !w.Contains(h) {
			t.Errorf("hour %d should be inside the wrapped window", h)
		}
	}
	for _, h := range []int{4, 12, 21} {
		if w.Contains(h) {
			t.Errorf("hour %d should be outside the wrapped window", h)
		}
	}
}

func TestNewEngine_RejectsBadProfiles(t *testing.T) {
	p := Baseline()
	p.Mode = "momentum"
	if _, err := NewEngine(p); err == nil {
		t.Error("unknown entry mode accepted")
	}

	p = Baseline()
	p.ATRPctMax = p.ATRPctMin
	if _, err := NewEngine(p); err == nil {
		t.Error("empty atr band accepted")
	}

	p = Baseline()
	p.EntryScoreMin = 1.5
	if _, err := NewEngine(p); err == nil {
		t.Error("entry score threshold above 1 accepted")
	}
}
