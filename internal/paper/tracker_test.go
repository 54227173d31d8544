package paper

import (
	"math"
	"testing"
	"time"

	"fusion-systemv1/internal/model"
)

func dec(pair string, enterLong, exitLong bool) model.Decision {
	return model.Decision{
		Pair: pair, Timeframe: "5m",
		TS:        time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		EnterLong: enterLong, ExitLong: exitLong,
	}
}

func TestTracker_RoundTrip(t *testing.T) {
	tr, err := NewTracker(-0.012, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Entry fills at close plus slippage.
	tr.OnBar(0, dec("BTC/USDT", true, false), 101, 99, 100)
	pos, ok := tr.Open("BTC/USDT")
	if !ok {
		t.Fatal("no position after entry decision")
	}
	if math.Abs(pos.EntryPrice-100.05) > 1e-9 {
		t.Errorf("entry price %.4f, want 100.05 (0.05%% slippage)", pos.EntryPrice)
	}

	// Signal exit at a higher close: positive PnL, not a stoploss.
	trade, closed := tr.OnBar(5, dec("BTC/USDT", false, true), 103, 101, 102)
	if !closed {
		t.Fatal("exit decision did not close the position")
	}
	if trade.Stoploss {
		t.Error("signal exit marked as stoploss")
	}
	if trade.PnLRatio <= 0 {
		t.Errorf("pnl %.4f, want positive", trade.PnLRatio)
	}
	if _, open := tr.Open("BTC/USDT"); open {
		t.Error("position still open after exit")
	}
}

func TestTracker_StoplossFiresIntrabar(t *testing.T) {
	var closes []model.TradeClose
	tr, err := NewTracker(-0.012, func(bar int, tc model.TradeClose) {
		closes = append(closes, tc)
	})
	if err != nil {
		t.Fatal(err)
	}

	tr.OnBar(0, dec("BTC/USDT", true, false), 101, 99, 100)
	// Low pierces entry*(1-0.012) even though the close recovered.
	trade, closed := tr.OnBar(1, dec("BTC/USDT", false, false), 101, 98, 100.5)
	if !closed || !trade.Stoploss {
		t.Fatalf("stoploss did not fire: closed=%v trade=%+v", closed, trade)
	}
	if math.Abs(trade.PnLRatio-(-0.012)) > 1e-9 {
		t.Errorf("stoploss pnl %.5f, want -0.012", trade.PnLRatio)
	}
	if len(closes) != 1 || !closes[0].Stoploss {
		t.Errorf("close hook saw %+v, want one stoploss event", closes)
	}
}

func TestTracker_NoReentryOnStoplossBar(t *testing.T) {
	tr, err := NewTracker(-0.012, nil)
	if err != nil {
		t.Fatal(err)
	}

	tr.OnBar(10, dec("BTC/USDT", true, false), 101, 99, 100)
	// Stoploss pierced intrabar while the decision still carries an entry
	// signal. The close must win and the bar must end flat.
	trade, closed := tr.OnBar(11, dec("BTC/USDT", true, false), 101, 98, 99.55)
	if !closed || !trade.Stoploss {
		t.Fatalf("stoploss did not fire: closed=%v trade=%+v", closed, trade)
	}
	if pos, open := tr.Open("BTC/USDT"); open {
		t.Fatalf("re-entered on the stoploss bar: %+v", pos)
	}

	// The next bar's entry signal opens normally again.
	tr.OnBar(12, dec("BTC/USDT", true, false), 101, 99, 100)
	if _, open := tr.Open("BTC/USDT"); !open {
		t.Error("entry after the close bar rejected")
	}
}

func TestTracker_NoReentryOnExitBar(t *testing.T) {
	tr, err := NewTracker(-0.012, nil)
	if err != nil {
		t.Fatal(err)
	}

	tr.OnBar(0, dec("BTC/USDT", true, false), 101, 99, 100)
	// Exit and entry on the same decision: the exit closes, the entry waits.
	trade, closed := tr.OnBar(4, dec("BTC/USDT", true, true), 103, 101, 102)
	if !closed || trade.Stoploss {
		t.Fatalf("signal exit did not close cleanly: closed=%v trade=%+v", closed, trade)
	}
	if _, open := tr.Open("BTC/USDT"); open {
		t.Error("re-entered on the exit bar")
	}
}

func TestTracker_EntryWhilePositionOpenIgnored(t *testing.T) {
	tr, err := NewTracker(0, nil) // default stoploss
	if err != nil {
		t.Fatal(err)
	}
	tr.OnBar(0, dec("BTC/USDT", true, false), 101, 99, 100)
	tr.OnBar(1, dec("BTC/USDT", true, false), 121, 119, 120)

	pos, _ := tr.Open("BTC/USDT")
	if pos.EntryBar != 0 {
		t.Errorf("second entry replaced the open position (entry bar %d)", pos.EntryBar)
	}
}

func TestTracker_ShortPnLAndStop(t *testing.T) {
	tr, err := NewTracker(-0.012, nil)
	if err != nil {
		t.Fatal(err)
	}
	d := model.Decision{Pair: "SOL/USDT", EnterShort: true, TS: time.Now()}
	tr.OnBar(0, d, 101, 99, 100)
	pos, _ := tr.Open("SOL/USDT")
	if !pos.Short {
		t.Fatal("short entry opened a long")
	}

	// Price falls: profitable short exit.
	exit := model.Decision{Pair: "SOL/USDT", ExitShort: true, TS: time.Now()}
	trade, closed := tr.OnBar(3, exit, 96, 94, 95)
	if !closed || trade.PnLRatio <= 0 {
		t.Errorf("short into falling price: closed=%v pnl=%.4f", closed, trade.PnLRatio)
	}

	// Short stop triggers when the high runs above entry.
	tr.OnBar(4, d, 101, 99, 100)
	trade, closed = tr.OnBar(5, model.Decision{Pair: "SOL/USDT"}, 102, 100, 101)
	if !closed || !trade.Stoploss {
		t.Errorf("short stoploss did not fire: %+v", trade)
	}
	if trade.PnLRatio >= 0 {
		t.Errorf("short stop pnl %.4f, want negative", trade.PnLRatio)
	}
}

func TestTracker_RejectsNonNegativeStoploss(t *testing.T) {
	if _, err := NewTracker(0.01, nil); err == nil {
		t.Error("positive stoploss accepted")
	}
}
