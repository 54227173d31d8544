// Package paper tracks simulated positions over decision streams: entries
// and exits fill at the bar close, a static stoploss closes losers
// intrabar. The tracker produces the trade-close events the protection
// guard consumes, both in backtests and in the live paper loop.
package paper

import (
	"fmt"
	"log"
	"sync"
	"time"

	"fusion-systemv1/internal/model"
)

// DefaultStoploss is the static loss ratio at which a position closes.
const DefaultStoploss = -0.012

// Position is one open simulated position.
type Position struct {
	Pair       string
	Short      bool
	EntryPrice float64
	EntryBar   int
	EntryTS    time.Time
}

// Trade is one completed round trip.
type Trade struct {
	Position
	ExitPrice float64
	ExitBar   int
	ExitTS    time.Time
	PnLRatio  float64
	Stoploss  bool
}

// Tracker fills entries and exits from decisions. One position per pair,
// entries while a position is open are ignored. Safe for concurrent pairs.
type Tracker struct {
	mu       sync.Mutex
	stoploss float64
	open     map[string]*Position
	trades   []Trade
	onClose  func(bar int, tc model.TradeClose)
	tradeSeq int64
	slippage float64 // fraction applied against the fill, e.g. 0.0005
}

// NewTracker creates a tracker. onClose, when non-nil, receives every trade
// close as it happens (the protection guard hook). stoploss must be
// negative; 0 selects DefaultStoploss.
func NewTracker(stoploss float64, onClose func(bar int, tc model.TradeClose)) (*Tracker, error) {
	if stoploss == 0 {
		stoploss = DefaultStoploss
	}
	if stoploss >= 0 {
		return nil, fmt.Errorf("paper: stoploss must be negative, got %g", stoploss)
	}
	return &Tracker{
		stoploss: stoploss,
		open:     make(map[string]*Position),
		onClose:  onClose,
		slippage: 0.0005,
	}, nil
}

// OnBar processes one closed bar for a pair: stoploss check on the bar's
// low/high first, then the decision's exit, then its entry. A bar that
// closes a trade never opens a new one: the close arms the pair's
// cooldown, which covers the closing bar itself. Returns the trade closed
// this bar, if any.
func (t *Tracker) OnBar(bar int, d model.Decision, high, low, close float64) (Trade, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos := t.open[d.Pair]

	// Stoploss fires on the intrabar extreme before any signal exit.
	if pos != nil {
		if price, hit := t.stopPrice(pos, high, low); hit {
			return t.closeLocked(pos, bar, d.TS, price, true), true
		}
	}

	// Closing a long sells, closing a short buys back.
	if pos != nil && t.exitRequested(pos, d) {
		return t.closeLocked(pos, bar, d.TS, t.fill(close, pos.Short), false), true
	}

	t.maybeEnter(bar, d, close)
	return Trade{}, false
}

// Open returns the open position for a pair.
func (t *Tracker) Open(pair string) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos := t.open[pair]; pos != nil {
		return *pos, true
	}
	return Position{}, false
}

// Trades returns a snapshot of all completed trades.
func (t *Tracker) Trades() []Trade {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]Trade, len(t.trades))
	copy(cp, t.trades)
	return cp
}

func (t *Tracker) maybeEnter(bar int, d model.Decision, close float64) {
	if t.open[d.Pair] != nil || close <= 0 {
		return
	}
	var short bool
	switch {
	case d.EnterLong:
		short = false
	case d.EnterShort:
		short = true
	default:
		return
	}
	t.tradeSeq++
	t.open[d.Pair] = &Position{
		Pair:       d.Pair,
		Short:      short,
		EntryPrice: t.fill(close, !short), // buys fill above, sells below
		EntryBar:   bar,
		EntryTS:    d.TS,
	}
	log.Printf("[paper] open pair=%s short=%v price=%.6f bar=%d seq=%d",
		d.Pair, short, t.open[d.Pair].EntryPrice, bar, t.tradeSeq)
}

func (t *Tracker) exitRequested(pos *Position, d model.Decision) bool {
	if pos.Short {
		return d.ExitShort
	}
	return d.ExitLong
}

// stopPrice returns the stoploss fill price when the bar's extreme pierces
// the stop level.
func (t *Tracker) stopPrice(pos *Position, high, low float64) (float64, bool) {
	if pos.Short {
		stop := pos.EntryPrice * (1 - t.stoploss) // above entry for shorts
		if high >= stop {
			return stop, true
		}
		return 0, false
	}
	stop := pos.EntryPrice * (1 + t.stoploss)
	if low <= stop {
		return stop, true
	}
	return 0, false
}

// fill applies slippage against the taker: buys fill higher, sells lower.
func (t *Tracker) fill(price float64, buying bool) float64 {
	if buying {
		return price * (1 + t.slippage)
	}
	return price * (1 - t.slippage)
}

func (t *Tracker) closeLocked(pos *Position, bar int, ts time.Time, price float64, stoploss bool) Trade {
	pnl := price/pos.EntryPrice - 1
	if pos.Short {
		pnl = -pnl
	}
	trade := Trade{
		Position:  *pos,
		ExitPrice: price,
		ExitBar:   bar,
		ExitTS:    ts,
		PnLRatio:  pnl,
		Stoploss:  stoploss,
	}
	t.trades = append(t.trades, trade)
	delete(t.open, pos.Pair)

	log.Printf("[paper] close pair=%s pnl=%.4f stoploss=%v bars=%d",
		pos.Pair, pnl, stoploss, bar-pos.EntryBar)

	if t.onClose != nil {
		t.onClose(bar, model.TradeClose{Pair: pos.Pair, TS: ts, PnLRatio: pnl, Stoploss: stoploss})
	}
	return trade
}
