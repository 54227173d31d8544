package indicator

import (
	"math"
	"testing"
	"time"
)

func feed(e *Engine, i int, close float64) Row {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 5 * time.Minute)
	return e.Update(ts, close, close+0.5, close-0.5, close, 1000)
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.EMAFastPeriod = 5
	cfg.EMASlowPeriod = 10
	cfg.RegimeEMAPeriod = 10
	cfg.DonchianPeriod = 5
	cfg.VolumeWindow = 5
	return cfg
}

func TestEngine_ConfigValidation(t *testing.T) {
	bad := DefaultConfig()
	bad.RSIPeriod = -1
	if _, err := NewEngine(bad); err == nil {
		t.Error("negative RSI period must fail at construction")
	}

	bad = DefaultConfig()
	bad.EMAFastPeriod = 200
	bad.EMASlowPeriod = 50
	if _, err := NewEngine(bad); err == nil {
		t.Error("fast >= slow EMA must fail at construction")
	}

	bad = DefaultConfig()
	bad.VolumeQuantile = 1.5
	if _, err := NewEngine(bad); err == nil {
		t.Error("quantile outside (0,1) must fail at construction")
	}
}

func TestEngine_NoLookahead(t *testing.T) {
	// Two engines fed the same first 60 candles; one then receives 40 more.
	// The first 60 rows must be bitwise identical: row i depends only on
	// candles [0..i].
	a, err := NewEngine(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewEngine(smallConfig())
	if err != nil {
		t.Fatal(err)
	}

	price, seed := 100.0, uint64(99)
	closes := make([]float64, 100)
	for i := range closes {
		seed = seed*6364136223846793005 + 1442695040888963407
		price += float64(int64(seed>>33)%200-100) / 100.0
		closes[i] = price
	}

	for i := 0; i < 60; i++ {
		feed(a, i, closes[i])
	}
	for i := 0; i < 100; i++ {
		feed(b, i, closes[i])
	}

	for i := 0; i < 60; i++ {
		ra, rb := a.At(i), b.At(i)
		if !rowsEqual(ra, rb) {
			t.Fatalf("row %d changed after appending future candles:\n a=%+v\n b=%+v", i, ra, rb)
		}
	}
}

func rowsEqual(a, b Row) bool {
	eq := func(x, y float64) bool {
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y
	}
	return a.TS.Equal(b.TS) && eq(a.Close, b.Close) &&
		eq(a.EMAFast, b.EMAFast) && eq(a.EMASlow, b.EMASlow) &&
		eq(a.RSI, b.RSI) && eq(a.ATR, b.ATR) && eq(a.ATRPct, b.ATRPct) &&
		eq(a.MACD, b.MACD) && eq(a.MACDSignal, b.MACDSignal) && eq(a.MACDHist, b.MACDHist) &&
		eq(a.ADX, b.ADX) && eq(a.DonchianHigh, b.DonchianHigh) && eq(a.DonchianLow, b.DonchianLow) &&
		a.VolumeAbove == b.VolumeAbove && a.RegimeLong == b.RegimeLong && a.RegimeShort == b.RegimeShort
}

func TestEngine_WarmupRowsUndefined(t *testing.T) {
	e, err := NewEngine(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	row := feed(e, 0, 100)

	// First row: trend EMAs, ATR, ADX, Donchian all still warming up.
	if !math.IsNaN(row.EMAFast) || !math.IsNaN(row.EMASlow) {
		t.Error("EMA defined on first row")
	}
	if !math.IsNaN(row.ATR) || !math.IsNaN(row.ATRPct) {
		t.Error("ATR defined on first row")
	}
	if !math.IsNaN(row.DonchianHigh) {
		t.Error("Donchian defined on first row")
	}
	if row.RSI != 50 {
		t.Errorf("warm-up RSI=%.2f, want neutral 50", row.RSI)
	}
	if row.RegimeLong || row.RegimeShort {
		t.Error("regime flags set during warm-up")
	}
	if row.VolumeAbove {
		t.Error("volume flag set during warm-up")
	}
}

func TestEngine_RegimeFlags(t *testing.T) {
	cfg := smallConfig()
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	// Steady uptrend: once warmed up, price sits above a rising regime EMA.
	var last Row
	for i := 0; i < 40; i++ {
		last = feed(e, i, 100+float64(i))
	}
	if !last.RegimeLong {
		t.Error("uptrend: RegimeLong should be set")
	}
	if last.RegimeShort {
		t.Error("uptrend: RegimeShort should not be set")
	}
}

func TestEngine_HistoricalRowsIdempotent(t *testing.T) {
	e, err := NewEngine(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		feed(e, i, 100+float64(i%7))
	}
	first := e.At(12)
	for i := 30; i < 50; i++ {
		feed(e, i, 100+float64(i%7))
	}
	if !rowsEqual(first, e.At(12)) {
		t.Error("historical row mutated by later updates")
	}
}
