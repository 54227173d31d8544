package indicator

import (
	"math"
	"testing"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// Trend EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): alpha = 2/(3+1) = 0.5, seeded with the first price.
	// Prices: 100, 102, 104, 103, 105
	// ema[0] = 100
	// ema[1] = 0.5*102 + 0.5*100    = 101
	// ema[2] = 0.5*104 + 0.5*101    = 102.5
	// ema[3] = 0.5*103 + 0.5*102.5  = 102.75
	// ema[4] = 0.5*105 + 0.5*102.75 = 103.875
	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{100, 101, 102.5, 102.75, 103.875}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(p)
		if ema.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		assertClose(t, "EMA(3)", ema.Value(), expected[i], 1e-9)
	}
}

func TestWilderEMA_Correctness(t *testing.T) {
	// WilderEMA(3): alpha = 1/3, seeded with the first sample.
	// Samples: 3, 6, 9
	// v[0] = 3
	// v[1] = 6/3 + 2*3/3 = 4
	// v[2] = 9/3 + 2*4/3 = 5.666667
	w := NewWilderEMA(3)
	samples := []float64{3, 6, 9}
	expected := []float64{3, 4, 5.0 + 2.0/3.0}
	ready := []bool{false, false, true}

	for i, s := range samples {
		w.Update(s)
		if w.Ready() != ready[i] {
			t.Errorf("sample %d: Ready()=%v, want %v", i, w.Ready(), ready[i])
		}
		assertClose(t, "WilderEMA(3)", w.Value(), expected[i], 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period2(t *testing.T) {
	// RSI(2), Wilder alpha = 1/2.
	// Prices: 100, 101, 99, 102
	// delta +1: avgGain=1,    avgLoss=0    (warm-up → 50)
	// delta -2: avgGain=0.5,  avgLoss=1    → RS=0.5, RSI=33.3333
	// delta +3: avgGain=1.75, avgLoss=0.5  → RS=3.5, RSI=77.7778
	rsi := NewRSI(2)

	rsi.Update(100)
	assertClose(t, "RSI warm-up", rsi.Value(), 50, 1e-9)

	rsi.Update(101)
	assertClose(t, "RSI warm-up 2", rsi.Value(), 50, 1e-9)
	if rsi.Ready() {
		t.Error("RSI ready too early")
	}

	rsi.Update(99)
	if !rsi.Ready() {
		t.Error("RSI not ready after period deltas")
	}
	assertClose(t, "RSI after -2", rsi.Value(), 100-100/1.5, 1e-6)

	rsi.Update(102)
	assertClose(t, "RSI after +3", rsi.Value(), 100-100/4.5, 1e-6)
}

func TestRSI_NeutralWhenLossZero(t *testing.T) {
	// Strictly rising prices keep avgLoss at exactly 0 → RSI degenerates
	// to the neutral 50, never a divide-by-zero.
	rsi := NewRSI(3)
	for p := 100.0; p < 120; p++ {
		rsi.Update(p)
	}
	if !rsi.Ready() {
		t.Fatal("RSI not ready")
	}
	assertClose(t, "RSI avgLoss=0", rsi.Value(), 50, 1e-9)
}

func TestRSI_WithinBounds(t *testing.T) {
	// Deterministic pseudo-random walk: RSI must stay within [0,100].
	rsi := NewRSI(14)
	price, seed := 100.0, uint64(42)
	for i := 0; i < 1000; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		step := float64(int64(seed>>33)%200-100) / 100.0
		price += step
		rsi.Update(price)
		v := rsi.Value()
		if v < 0 || v > 100 {
			t.Fatalf("candle %d: RSI=%.4f out of [0,100]", i, v)
		}
	}
}

// ────────────────────────────────────────────────────────────
// ATR
// ────────────────────────────────────────────────────────────

func TestATR_Correctness_Period2(t *testing.T) {
	// ATR(2), Wilder alpha = 1/2.
	// Bar 1 (102/98/100):  TR = 4 (no prev close)        → v=4
	// Bar 2 (103/99/102):  TR = max(4, 3, 1)   = 4       → v=4
	// Bar 3 (110/101/108): TR = max(9, 8, 1)   = 9       → v=6.5
	atr := NewATR(2)
	atr.UpdateHLC(102, 98, 100)
	atr.UpdateHLC(103, 99, 102)
	if !atr.Ready() {
		t.Fatal("ATR not ready after 2 bars")
	}
	assertClose(t, "ATR bar2", atr.Value(), 4, 1e-9)

	atr.UpdateHLC(110, 101, 108)
	assertClose(t, "ATR bar3", atr.Value(), 6.5, 1e-9)
	assertClose(t, "ATR pct", atr.Pct(108), 6.5/108, 1e-9)
}

func TestATR_NonNegative(t *testing.T) {
	atr := NewATR(14)
	price, seed := 50.0, uint64(7)
	for i := 0; i < 500; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		step := float64(int64(seed>>33)%100-50) / 50.0
		price += step
		atr.UpdateHLC(price+0.8, price-0.8, price)
		if atr.Ready() && atr.Value() < 0 {
			t.Fatalf("candle %d: ATR=%.6f negative", i, atr.Value())
		}
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_FlatAndTrend(t *testing.T) {
	// Constant prices: fast == slow → macd, signal, hist all 0.
	m := NewMACD(12, 26, 9)
	for i := 0; i < 60; i++ {
		m.Update(100)
	}
	assertClose(t, "MACD flat line", m.Line(), 0, 1e-9)
	assertClose(t, "MACD flat hist", m.Hist(), 0, 1e-9)

	// Steady rise: fast EMA tracks price more closely → macd > 0.
	m2 := NewMACD(12, 26, 9)
	for i := 0; i < 60; i++ {
		m2.Update(100 + float64(i))
	}
	if m2.Line() <= 0 {
		t.Errorf("MACD on uptrend: line=%.6f, want > 0", m2.Line())
	}
	if m2.Hist() <= 0 {
		t.Errorf("MACD hist on accelerating trend: %.6f, want > 0", m2.Hist())
	}
}

// ────────────────────────────────────────────────────────────
// ADX
// ────────────────────────────────────────────────────────────

func TestADX_TrendStrength(t *testing.T) {
	// A clean uptrend must produce +DI > -DI and a high ADX.
	adx := NewADX(14)
	for i := 0; i < 100; i++ {
		base := 100 + float64(i)*2
		adx.UpdateHLC(base+1, base-1, base)
	}
	if !adx.Ready() {
		t.Fatal("ADX not ready after 100 bars")
	}
	if adx.PlusDI() <= adx.MinusDI() {
		t.Errorf("uptrend: +DI=%.2f <= -DI=%.2f", adx.PlusDI(), adx.MinusDI())
	}
	if v := adx.Value(); v < 20 || v > 100 {
		t.Errorf("uptrend ADX=%.2f, want strong trend in [20,100]", v)
	}
}

func TestADX_FlatMarketFallback(t *testing.T) {
	// Perfectly flat bars have zero true range and zero directional
	// movement; DX degenerates and must fall back to 20, not NaN.
	adx := NewADX(14)
	for i := 0; i < 60; i++ {
		adx.UpdateHLC(100, 100, 100)
	}
	if !adx.Ready() {
		t.Fatal("ADX not ready")
	}
	assertClose(t, "ADX flat fallback", adx.Value(), adxFallback, 1e-9)
	if math.IsNaN(adx.Value()) || math.IsInf(adx.Value(), 0) {
		t.Error("ADX degenerate produced NaN/Inf")
	}
}

// ────────────────────────────────────────────────────────────
// Donchian
// ────────────────────────────────────────────────────────────

func TestDonchian_Correctness(t *testing.T) {
	d := NewDonchian(3)
	d.UpdateHL(5, 1)
	d.UpdateHL(7, 2)
	if d.Ready() {
		t.Error("Donchian ready before window full")
	}
	if !math.IsNaN(d.High()) || !math.IsNaN(d.Low()) {
		t.Error("Donchian bounds defined before window full")
	}

	d.UpdateHL(6, 3)
	if !d.Ready() {
		t.Fatal("Donchian not ready after 3 bars")
	}
	assertClose(t, "Donchian high", d.High(), 7, 1e-9)
	assertClose(t, "Donchian low", d.Low(), 1, 1e-9)

	// Window slides: the (5,1) bar drops out.
	d.UpdateHL(4, 2)
	assertClose(t, "Donchian high slide", d.High(), 7, 1e-9)
	assertClose(t, "Donchian low slide", d.Low(), 2, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Volume quantile
// ────────────────────────────────────────────────────────────

func TestVolumeQuantile_Correctness(t *testing.T) {
	// Window 4, q=0.5: sorted [10 20 30 40], pos=1.5 → 25.
	v := NewVolumeQuantile(4, 0.5)
	for _, vol := range []float64{10, 20, 30, 40} {
		v.Update(vol)
	}
	if !v.Ready() {
		t.Fatal("not ready after window filled")
	}
	assertClose(t, "median", v.Quantile(), 25, 1e-9)
	if !v.Above() {
		t.Error("volume 40 >= 25 should be above")
	}

	v.Update(5) // window now [20 30 40 5], median 25
	if v.Above() {
		t.Error("volume 5 < 25 should not be above")
	}
}

func TestVolumeQuantile_WarmupIsNoSignal(t *testing.T) {
	v := NewVolumeQuantile(10, 0.5)
	v.Update(1e9)
	if v.Above() {
		t.Error("warm-up must report false, not a default pass")
	}
}
