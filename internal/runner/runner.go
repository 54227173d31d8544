// Package runner wires the per-bar pipeline: candles flow from the ingest
// into per-pair ring buffers, each pair's evaluator updates its series and
// indicators, collects external votes and the ML prediction, runs fusion,
// applies the protection guard and publishes the decision. Pairs evaluate
// concurrently; within a pair everything is strictly sequential.
package runner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"fusion-systemv1/internal/fusion"
	"fusion-systemv1/internal/indicator"
	"fusion-systemv1/internal/metrics"
	"fusion-systemv1/internal/mlpredict"
	"fusion-systemv1/internal/model"
	"fusion-systemv1/internal/notification"
	"fusion-systemv1/internal/paper"
	"fusion-systemv1/internal/protection"
	"fusion-systemv1/internal/ringbuf"
	"fusion-systemv1/internal/series"
	"fusion-systemv1/internal/sigcache"
	"fusion-systemv1/internal/signals"
	redisstore "fusion-systemv1/internal/store/redis"
	sqlitestore "fusion-systemv1/internal/store/sqlite"
)

const (
	defaultRingCapacity  = 1024
	defaultTrainLookback = 3000
	// mlBarsCap bounds the per-pair bar history kept for predictions; trimmed
	// to mlBarsKeep when exceeded.
	mlBarsCap  = 1024
	mlBarsKeep = 512
)

// Config holds the runner parameters.
type Config struct {
	Pairs           []string
	Profile         fusion.Profile
	Stoploss        float64       // negative ratio; 0 selects the paper default
	RetrainInterval time.Duration // 0 selects mlpredict.DefaultRetrainInterval
	TrainLookback   int           // candles read per retrain, 0 selects default
	RingCapacity    int
}

// Deps are the runner's collaborators. Signals, Publisher, Store, History,
// Notifier and Health may be nil; Predictor, Guard and Metrics are required.
type Deps struct {
	Signals   *signals.Set
	Cache     *sigcache.Cache
	Predictor *mlpredict.Predictor
	Guard     *protection.Guard
	Publisher *redisstore.BufferedWriter
	Store     *sqlitestore.Writer
	History   *sqlitestore.Reader
	Metrics   *metrics.Metrics
	Notifier  notification.Notifier
	Health    *metrics.HealthStatus

	// CandleSink receives every closed candle for persistence (the SQLite
	// writer channel). Non-blocking: a full sink drops with a log line.
	CandleSink chan<- model.Candle

	// OnDecision, when non-nil, receives every decision after publishing.
	// Called from the pair's evaluator goroutine.
	OnDecision func(model.Decision)
}

// pairState is the sequential evaluation state for one pair.
type pairState struct {
	pair    string
	ring    *ringbuf.Ring
	wake    chan struct{}
	series  *series.Series
	ind     *indicator.Engine
	mlBars  []mlpredict.Bar
	blocked bool // last guard verdict, for transition alerts
}

// Runner owns the pair evaluators and the shared fusion state.
type Runner struct {
	cfg  Config
	deps Deps

	fus     *fusion.Engine
	tracker *paper.Tracker
	pairs   map[string]*pairState

	// Source outage tracking for transition alerts.
	srcMu   sync.Mutex
	srcDown map[string]bool

	staleMu      sync.Mutex
	staleAlerted bool
}

// New validates the configuration and builds all per-pair state.
func New(cfg Config, deps Deps) (*Runner, error) {
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("runner: no pairs configured")
	}
	if deps.Predictor == nil || deps.Guard == nil || deps.Metrics == nil {
		return nil, fmt.Errorf("runner: predictor, guard and metrics are required")
	}
	if cfg.RetrainInterval == 0 {
		cfg.RetrainInterval = mlpredict.DefaultRetrainInterval
	}
	if cfg.TrainLookback == 0 {
		cfg.TrainLookback = defaultTrainLookback
	}
	if cfg.RingCapacity == 0 {
		cfg.RingCapacity = defaultRingCapacity
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewLogNotifier()
	}

	fus, err := fusion.NewEngine(cfg.Profile)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:     cfg,
		deps:    deps,
		fus:     fus,
		pairs:   make(map[string]*pairState, len(cfg.Pairs)),
		srcDown: make(map[string]bool),
	}

	r.tracker, err = paper.NewTracker(cfg.Stoploss, func(bar int, tc model.TradeClose) {
		deps.Guard.OnTradeClose(bar, tc)
	})
	if err != nil {
		return nil, err
	}

	for _, pair := range cfg.Pairs {
		ind, err := indicator.NewEngine(cfg.Profile.Indicators)
		if err != nil {
			return nil, err
		}
		r.pairs[pair] = &pairState{
			pair:   pair,
			ring:   ringbuf.New(cfg.RingCapacity),
			wake:   make(chan struct{}, 1),
			series: series.New(pair, cfg.Profile.Timeframe),
			ind:    ind,
		}
	}

	return r, nil
}

// Tracker exposes the paper tracker (backtest summaries, tests).
func (r *Runner) Tracker() *paper.Tracker { return r.tracker }

// Run consumes candles until ctx is cancelled or candleCh is closed. On a
// closed channel every pair drains its remaining backlog before Run returns,
// so replayed histories are evaluated completely.
func (r *Runner) Run(ctx context.Context, candleCh <-chan model.Candle) error {
	done := make(chan struct{})
	var wg sync.WaitGroup

	for _, ps := range r.pairs {
		wg.Add(1)
		go func(ps *pairState) {
			defer wg.Done()
			r.pairLoop(ctx, ps, done)
		}(ps)
	}

	go r.retrainLoop(ctx)

	r.dispatch(ctx, candleCh)
	close(done)
	wg.Wait()
	return nil
}

// dispatch routes incoming candles to their pair's ring buffer.
func (r *Runner) dispatch(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			ps, known := r.pairs[c.Pair]
			if !known || c.Timeframe != r.cfg.Profile.Timeframe {
				continue
			}
			if r.deps.Health != nil {
				r.deps.Health.SetLastCandleTime(c.TS)
			}
			if c.Forming {
				ps.series.SetForming(c)
				continue
			}

			r.deps.Metrics.CandlesTotal.Inc()
			if r.deps.CandleSink != nil {
				select {
				case r.deps.CandleSink <- c:
				default:
					log.Printf("[runner] candle sink full, dropping %s", c.Key())
				}
			}

			if !ps.ring.Push(c) {
				r.deps.Metrics.RingBufDrops.Inc()
				log.Printf("[runner] ring full, dropping %s candle at %s", c.Pair, c.TS.Format(time.RFC3339))
				continue
			}
			select {
			case ps.wake <- struct{}{}:
			default:
			}
		}
	}
}

// pairLoop drains the pair's ring buffer, evaluating one candle at a time.
func (r *Runner) pairLoop(ctx context.Context, ps *pairState, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ps.wake:
			r.drain(ctx, ps)
		case <-done:
			r.drain(ctx, ps)
			return
		}
	}
}

func (r *Runner) drain(ctx context.Context, ps *pairState) {
	for {
		c, ok := ps.ring.Pop()
		if !ok {
			return
		}
		r.evaluate(ctx, ps, c)
	}
}
