// Package protection implements the trade veto layer: per-pair cooldowns
// after every trade close, a stoploss-streak block, and a global drawdown
// block. The guard never creates entries, it only suppresses them; exits
// always pass.
package protection

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"fusion-systemv1/internal/model"
)

// Block reasons, reported as a sorted union when several apply.
const (
	ReasonCooldown = "cooldown"
	ReasonStoploss = "stoploss_guard"
	ReasonDrawdown = "max_drawdown"
)

// Config holds the guard windows, all measured in bars of the evaluated
// timeframe.
type Config struct {
	// CooldownBars blocks a pair after every trade close.
	CooldownBars int

	// StoplossLookback/StoplossLimit/StoplossStopBars: a pair with >= limit
	// stoploss exits within the lookback is blocked for stop bars.
	StoplossLookback int
	StoplossLimit    int
	StoplossStopBars int

	// DrawdownLookback/MaxDrawdown/DrawdownStopBars: cumulative PnL drawdown
	// over the lookback beyond MaxDrawdown blocks ALL pairs for stop bars.
	// The test applies only once DrawdownMinTrades closes fall inside the
	// lookback; a couple of outsized losers alone do not count as a drawdown.
	DrawdownLookback  int
	MaxDrawdown       float64
	DrawdownStopBars  int
	DrawdownMinTrades int
}

// DefaultConfig returns the production guard windows (5m bars: the 288-bar
// lookbacks cover one day).
func DefaultConfig() Config {
	return Config{
		CooldownBars:      5,
		StoplossLookback:  288,
		StoplossLimit:     2,
		StoplossStopBars:  30,
		DrawdownLookback:  288,
		MaxDrawdown:       0.08,
		DrawdownStopBars:  60,
		DrawdownMinTrades: 10,
	}
}

// Validate checks all windows.
func (c Config) Validate() error {
	for label, v := range map[string]int{
		"cooldown_bars": c.CooldownBars,
		"stoploss_lookback": c.StoplossLookback, "stoploss_limit": c.StoplossLimit,
		"stoploss_stop_bars": c.StoplossStopBars,
		"drawdown_lookback": c.DrawdownLookback, "drawdown_stop_bars": c.DrawdownStopBars,
		"drawdown_min_trades": c.DrawdownMinTrades,
	} {
		if v <= 0 {
			return fmt.Errorf("protection config: %s must be positive, got %d", label, v)
		}
	}
	if c.MaxDrawdown <= 0 || c.MaxDrawdown >= 1 {
		return fmt.Errorf("protection config: max_drawdown=%g outside (0,1)", c.MaxDrawdown)
	}
	return nil
}

// closeEvent is one recorded trade close, stamped with the bar index it
// arrived on.
type closeEvent struct {
	bar      int
	pair     string
	pnl      float64
	stoploss bool
}

// Status is the guard verdict for one pair at one bar.
type Status struct {
	Blocked bool
	Reasons []string // sorted union of active blocks
	// ExpiresAtBar is the first bar at which all current blocks have
	// lapsed; 0 when not blocked.
	ExpiresAtBar int
}

// Guard tracks trade closes and answers per-bar block queries. Expiry is
// strictly by bar-count comparison, so replayed histories give identical
// verdicts. Safe for concurrent use across pair evaluators.
type Guard struct {
	mu  sync.Mutex
	cfg Config

	closes []closeEvent

	cooldownUntil map[string]int // pair → first unblocked bar
	stoplossUntil map[string]int
	drawdownUntil int // global
}

// NewGuard creates a guard, failing fast on invalid windows.
func NewGuard(cfg Config) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Guard{
		cfg:           cfg,
		cooldownUntil: make(map[string]int),
		stoplossUntil: make(map[string]int),
	}, nil
}

// OnTradeClose records a trade close at the given bar index and arms the
// applicable blocks.
func (g *Guard) OnTradeClose(bar int, tc model.TradeClose) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closes = append(g.closes, closeEvent{bar: bar, pair: tc.Pair, pnl: tc.PnLRatio, stoploss: tc.Stoploss})

	// Cooldown arms on every close.
	if until := bar + g.cfg.CooldownBars; until > g.cooldownUntil[tc.Pair] {
		g.cooldownUntil[tc.Pair] = until
	}

	if tc.Stoploss && g.stoplossCount(bar, tc.Pair) >= g.cfg.StoplossLimit {
		until := bar + g.cfg.StoplossStopBars
		if until > g.stoplossUntil[tc.Pair] {
			g.stoplossUntil[tc.Pair] = until
			log.Printf("[protection] pair=%s stoploss guard armed until bar %d", tc.Pair, until)
		}
	}

	if n, dd := g.drawdown(bar); n >= g.cfg.DrawdownMinTrades && dd > g.cfg.MaxDrawdown {
		until := bar + g.cfg.DrawdownStopBars
		if until > g.drawdownUntil {
			g.drawdownUntil = until
			log.Printf("[protection] global drawdown %.4f > %.4f, all pairs blocked until bar %d",
				dd, g.cfg.MaxDrawdown, until)
		}
	}

	g.prune(bar)
}

// Check returns the block status for a pair at the given bar. A block whose
// expiry bar equals the queried bar has already lapsed.
func (g *Guard) Check(bar int, pair string) Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	var st Status
	add := func(reason string, until int) {
		if bar < until {
			st.Blocked = true
			st.Reasons = append(st.Reasons, reason)
			if until > st.ExpiresAtBar {
				st.ExpiresAtBar = until
			}
		}
	}
	add(ReasonCooldown, g.cooldownUntil[pair])
	add(ReasonStoploss, g.stoplossUntil[pair])
	add(ReasonDrawdown, g.drawdownUntil)
	sort.Strings(st.Reasons)
	return st
}

// stoplossCount counts stoploss closes for a pair within the lookback
// ending at bar, the just-recorded close included.
func (g *Guard) stoplossCount(bar int, pair string) int {
	from := bar - g.cfg.StoplossLookback
	n := 0
	for _, c := range g.closes {
		if c.pair == pair && c.stoploss && c.bar > from && c.bar <= bar {
			n++
		}
	}
	return n
}

// drawdown computes the peak-to-current drawdown of cumulative PnL over the
// lookback window ending at bar, together with the number of closes inside
// the window.
func (g *Guard) drawdown(bar int) (int, float64) {
	from := bar - g.cfg.DrawdownLookback
	n := 0
	var cum, peak, maxDD float64
	for _, c := range g.closes {
		if c.bar <= from || c.bar > bar {
			continue
		}
		n++
		cum += c.pnl
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return n, maxDD
}

// prune discards closes older than the widest lookback; they can never
// influence a future verdict.
func (g *Guard) prune(bar int) {
	widest := g.cfg.StoplossLookback
	if g.cfg.DrawdownLookback > widest {
		widest = g.cfg.DrawdownLookback
	}
	cutoff := bar - widest
	keep := g.closes[:0]
	for _, c := range g.closes {
		if c.bar > cutoff {
			keep = append(keep, c)
		}
	}
	g.closes = keep
}
