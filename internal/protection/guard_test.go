package protection

import (
	"reflect"
	"testing"

	"fusion-systemv1/internal/model"
)

func smallConfig() Config {
	return Config{
		CooldownBars:      3,
		StoplossLookback:  50,
		StoplossLimit:     2,
		StoplossStopBars:  10,
		DrawdownLookback:  50,
		MaxDrawdown:       0.08,
		DrawdownStopBars:  20,
		DrawdownMinTrades: 3,
	}
}

func mustGuard(t *testing.T, cfg Config) *Guard {
	t.Helper()
	g, err := NewGuard(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func closeAt(g *Guard, bar int, pair string, pnl float64, stoploss bool) {
	g.OnTradeClose(bar, model.TradeClose{Pair: pair, PnLRatio: pnl, Stoploss: stoploss})
}

func TestGuard_CooldownAfterEveryClose(t *testing.T) {
	g := mustGuard(t, smallConfig())
	closeAt(g, 100, "BTC/USDT", 0.02, false)

	for bar := 100; bar < 103; bar++ {
		st := g.Check(bar, "BTC/USDT")
		if !st.Blocked {
			t.Errorf("bar %d: cooldown not active", bar)
		}
		if !reflect.DeepEqual(st.Reasons, []string{ReasonCooldown}) {
			t.Errorf("bar %d: reasons %v", bar, st.Reasons)
		}
	}
	if g.Check(103, "BTC/USDT").Blocked {
		t.Error("cooldown did not expire at bar 103")
	}
	if g.Check(101, "ETH/USDT").Blocked {
		t.Error("cooldown leaked to another pair")
	}
}

func TestGuard_StoplossStreakBlocksExactWindow(t *testing.T) {
	g := mustGuard(t, smallConfig())

	// First stoploss close: only the cooldown arms.
	closeAt(g, 100, "BTC/USDT", -0.012, true)
	if st := g.Check(104, "BTC/USDT"); st.Blocked {
		t.Errorf("one stoploss must not arm the guard: %v", st.Reasons)
	}

	// Second stoploss within the lookback: blocked for exactly 10 bars.
	closeAt(g, 110, "BTC/USDT", -0.012, true)
	st := g.Check(115, "BTC/USDT")
	if !st.Blocked || !contains(st.Reasons, ReasonStoploss) {
		t.Fatalf("bar 115: %+v, want stoploss block", st)
	}
	if st.ExpiresAtBar != 120 {
		t.Errorf("expiry bar %d, want 120", st.ExpiresAtBar)
	}
	if g.Check(119, "BTC/USDT").Blocked != true {
		t.Error("bar 119 should still be blocked")
	}
	if st := g.Check(120, "BTC/USDT"); st.Blocked {
		t.Errorf("bar 120 should be OPEN again, got %v", st.Reasons)
	}
}

func TestGuard_StoplossOutsideLookbackIgnored(t *testing.T) {
	g := mustGuard(t, smallConfig())
	closeAt(g, 10, "BTC/USDT", -0.012, true)
	// 60 bars later, outside the 50-bar lookback: the streak resets.
	closeAt(g, 70, "BTC/USDT", -0.012, true)
	if st := g.Check(75, "BTC/USDT"); contains(st.Reasons, ReasonStoploss) {
		t.Error("stale stoploss counted into the streak")
	}
}

func TestGuard_DrawdownBlocksAllPairs(t *testing.T) {
	g := mustGuard(t, smallConfig())

	// Losses across pairs summing past the 8% drawdown ceiling.
	closeAt(g, 100, "BTC/USDT", -0.03, false)
	closeAt(g, 105, "ETH/USDT", -0.03, false)
	closeAt(g, 110, "SOL/USDT", -0.03, false)

	for _, pair := range []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "DOGE/USDT"} {
		st := g.Check(115, pair)
		if !st.Blocked || !contains(st.Reasons, ReasonDrawdown) {
			t.Errorf("pair %s: %+v, want global drawdown block", pair, st)
		}
	}
	// Expires 20 bars after the triggering close.
	if g.Check(130, "DOGE/USDT").Blocked {
		t.Error("drawdown block did not expire at bar 130")
	}
}

func TestGuard_DrawdownUsesPeakToTrough(t *testing.T) {
	g := mustGuard(t, smallConfig())

	// +10% then -9%: cumulative PnL is positive but the fall from the peak
	// exceeds the ceiling.
	closeAt(g, 100, "BTC/USDT", 0.10, false)
	closeAt(g, 101, "BTC/USDT", -0.05, false)
	closeAt(g, 102, "ETH/USDT", -0.04, false)

	if st := g.Check(103, "SOL/USDT"); !contains(st.Reasons, ReasonDrawdown) {
		t.Errorf("peak-to-trough drawdown not detected: %+v", st)
	}
}

func TestGuard_DrawdownNeedsMinTrades(t *testing.T) {
	g := mustGuard(t, smallConfig())

	// Two losers summing far past the ceiling: below the 3-trade floor, the
	// drawdown test must not apply.
	closeAt(g, 100, "BTC/USDT", -0.06, false)
	closeAt(g, 101, "ETH/USDT", -0.06, false)
	if st := g.Check(102, "SOL/USDT"); contains(st.Reasons, ReasonDrawdown) {
		t.Errorf("drawdown tripped on two trades: %+v", st)
	}

	// The third close reaches the floor and the block arms.
	closeAt(g, 102, "SOL/USDT", -0.01, false)
	if st := g.Check(103, "DOGE/USDT"); !contains(st.Reasons, ReasonDrawdown) {
		t.Errorf("drawdown not armed at the trade floor: %+v", st)
	}
}

func TestGuard_ReasonsAreUnion(t *testing.T) {
	g := mustGuard(t, smallConfig())
	closeAt(g, 100, "BTC/USDT", -0.012, true)
	closeAt(g, 101, "BTC/USDT", -0.012, true) // streak → stoploss block
	closeAt(g, 102, "ETH/USDT", -0.09, false) // → global drawdown

	st := g.Check(102, "BTC/USDT")
	want := []string{ReasonCooldown, ReasonDrawdown, ReasonStoploss}
	if !reflect.DeepEqual(st.Reasons, want) {
		t.Errorf("reasons %v, want sorted union %v", st.Reasons, want)
	}
}

func TestGuard_ConfigValidation(t *testing.T) {
	bad := smallConfig()
	bad.StoplossLimit = 0
	if _, err := NewGuard(bad); err == nil {
		t.Error("zero stoploss limit accepted")
	}
	bad = smallConfig()
	bad.MaxDrawdown = 1.2
	if _, err := NewGuard(bad); err == nil {
		t.Error("drawdown ceiling above 1 accepted")
	}
	bad = smallConfig()
	bad.DrawdownMinTrades = 0
	if _, err := NewGuard(bad); err == nil {
		t.Error("zero drawdown trade floor accepted")
	}
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
