package runner

import (
	"context"
	"errors"
	"log"
	"time"

	"fusion-systemv1/internal/fusion"
	"fusion-systemv1/internal/mlpredict"
	"fusion-systemv1/internal/model"
	"fusion-systemv1/internal/notification"
	"fusion-systemv1/internal/protection"
	"fusion-systemv1/internal/series"
	"fusion-systemv1/internal/signals"
)

// evaluate runs the full per-bar pipeline for one closed candle.
func (r *Runner) evaluate(ctx context.Context, ps *pairState, c model.Candle) {
	start := time.Now()

	if err := ps.series.Append(c); err != nil {
		if errors.Is(err, series.ErrOutOfOrder) {
			r.deps.Metrics.StaleCandles.Inc()
		}
		log.Printf("[runner] %s append rejected: %v", c.Pair, err)
		return
	}

	row := ps.ind.Update(c.TS, c.Open, c.High, c.Low, c.Close, c.Volume)
	prev, havePrev := ps.ind.Prev()
	bar := ps.ind.Len() - 1

	ps.mlBars = append(ps.mlBars, mlpredict.Bar{
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
		RSI:    row.RSI,
	})
	if len(ps.mlBars) > mlBarsCap {
		ps.mlBars = append(ps.mlBars[:0], ps.mlBars[len(ps.mlBars)-mlBarsKeep:]...)
	}

	var votes []signals.Vote
	if r.cfg.Profile.UseExternal && r.deps.Signals != nil {
		votes = r.collectVotes(ctx, c.BaseAsset())
	}

	ml := r.deps.Predictor.Predict(ps.mlBars)
	r.observePrediction(ml)

	in := fusion.Inputs{
		TS:       c.TS,
		Row:      row,
		Prev:     prev,
		HavePrev: havePrev,
		Votes:    votes,
		ML:       ml,
	}
	sig := r.fus.Evaluate(in)

	status := r.deps.Guard.Check(bar, c.Pair)
	var reasons []string
	if status.Blocked {
		reasons = status.Reasons
		if sig.EnterLong || sig.EnterShort {
			for _, reason := range reasons {
				r.deps.Metrics.GuardBlocks.WithLabelValues(reason).Inc()
			}
		}
		sig.EnterLong, sig.EnterShort = false, false
	}
	r.alertGuardTransition(ctx, ps, status)

	d := r.fus.Decision(c.Pair, in, sig, reasons)

	if d.EnterLong {
		r.deps.Metrics.EntriesTotal.WithLabelValues(c.Pair, "long").Inc()
	}
	if d.EnterShort {
		r.deps.Metrics.EntriesTotal.WithLabelValues(c.Pair, "short").Inc()
	}

	trade, closed := r.tracker.OnBar(bar, d, c.High, c.Low, c.Close)
	if closed {
		side := "long"
		if trade.Short {
			side = "short"
		}
		r.deps.Metrics.ExitsTotal.WithLabelValues(c.Pair, side).Inc()
		if r.deps.Store != nil {
			if err := r.deps.Store.SaveTrade(trade.Pair, trade.Short, trade.EntryTS, trade.ExitTS, trade.PnLRatio, trade.Stoploss); err != nil {
				log.Printf("[runner] trade persist failed: %v", err)
			}
		}
	}

	r.publish(d)
	if r.deps.OnDecision != nil {
		r.deps.OnDecision(d)
	}

	r.deps.Metrics.EvalDur.Observe(time.Since(start).Seconds())
	r.deps.Metrics.DecisionsLag.Set(time.Since(c.TS).Seconds())
}

// collectVotes gathers the external source votes, tracks cache hit rate and
// publishes the fresh scores. Outage transitions raise one alert per episode.
func (r *Runner) collectVotes(ctx context.Context, asset string) []signals.Vote {
	sources := r.deps.Signals.Sources()

	if r.deps.Cache != nil {
		for _, src := range sources {
			if _, ok := r.deps.Cache.Peek(src.ID(), asset, src.Bucket()); ok {
				r.deps.Metrics.CacheHits.Inc()
			} else {
				r.deps.Metrics.CacheMisses.Inc()
			}
		}
	}

	votes := r.deps.Signals.Collect(ctx, asset)

	for i, v := range votes {
		// Elapsed is zero on a cache hit; only fresh fetches carry latency.
		if v.Elapsed > 0 {
			r.deps.Metrics.SourceFetchDur.WithLabelValues(v.SourceID).Observe(v.Elapsed.Seconds())
		}
		if v.Err != nil {
			r.deps.Metrics.SourceFetches.WithLabelValues(v.SourceID, "error").Inc()
			r.markSourceDown(ctx, v.SourceID, v.Err)
			continue
		}
		r.deps.Metrics.SourceFetches.WithLabelValues(v.SourceID, "ok").Inc()
		r.markSourceUp(v.SourceID)

		// Publish the cached score backing this vote for observability.
		if r.deps.Cache != nil && r.deps.Publisher != nil && i < len(sources) {
			if score, ok := r.deps.Cache.Peek(sources[i].ID(), asset, sources[i].Bucket()); ok {
				r.deps.Publisher.WriteScore(score)
			}
		}
	}
	return votes
}

func (r *Runner) markSourceDown(ctx context.Context, sourceID string, err error) {
	r.srcMu.Lock()
	wasDown := r.srcDown[sourceID]
	r.srcDown[sourceID] = true
	r.srcMu.Unlock()
	if !wasDown {
		r.deps.Notifier.Send(ctx, notification.SourceDown(sourceID, err))
	}
}

func (r *Runner) markSourceUp(sourceID string) {
	r.srcMu.Lock()
	r.srcDown[sourceID] = false
	r.srcMu.Unlock()
}

func (r *Runner) observePrediction(ml model.PredictionResult) {
	direction := "neutral"
	switch ml.Direction {
	case 1:
		direction = "up"
	case -1:
		direction = "down"
	}
	r.deps.Metrics.MLPredictions.WithLabelValues(direction).Inc()

	if !ml.Stale {
		return
	}
	r.deps.Metrics.MLStale.Inc()

	r.staleMu.Lock()
	alerted := r.staleAlerted
	r.staleAlerted = true
	r.staleMu.Unlock()
	if !alerted {
		r.deps.Notifier.Send(context.Background(), notification.ModelStale(ml.ModelVersion))
	}
}

func (r *Runner) alertGuardTransition(ctx context.Context, ps *pairState, status protection.Status) {
	if status.Blocked == ps.blocked {
		return
	}
	ps.blocked = status.Blocked
	if status.Blocked {
		r.deps.Notifier.Send(ctx, notification.GuardBlocked(ps.pair, status.Reasons, status.ExpiresAtBar))
	} else {
		r.deps.Notifier.Send(ctx, notification.GuardReleased(ps.pair))
	}
}

// publish sends the decision through the buffered Redis writer.
func (r *Runner) publish(d model.Decision) {
	if r.deps.Publisher == nil {
		return
	}
	start := time.Now()
	if err := r.deps.Publisher.WriteDecision(d); err != nil {
		log.Printf("[runner] decision publish failed: %v", err)
		return
	}
	r.deps.Metrics.RedisWriteDur.Observe(time.Since(start).Seconds())
	r.deps.Metrics.DecisionsPublished.Inc()
}
