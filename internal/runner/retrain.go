package runner

import (
	"context"
	"log"
	"time"

	"fusion-systemv1/internal/indicator"
	"fusion-systemv1/internal/mlpredict"
	"fusion-systemv1/internal/model"
)

// retrainLoop trains the predictor once at startup and then on every retrain
// interval. Without a history reader the predictor stays untrained and
// predictions degrade to flagged neutral.
func (r *Runner) retrainLoop(ctx context.Context) {
	if r.deps.History == nil {
		log.Println("[runner] no candle history reader, ML predictor stays untrained")
		return
	}

	r.trainOnce()

	ticker := time.NewTicker(r.cfg.RetrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.trainOnce()
		}
	}
}

// trainOnce fits the ensemble on the deepest stored pair history.
func (r *Runner) trainOnce() {
	var best []model.Candle
	for _, pair := range r.cfg.Pairs {
		candles, err := r.deps.History.ReadRecentCandles(pair, r.cfg.Profile.Timeframe, r.cfg.TrainLookback)
		if err != nil {
			log.Printf("[runner] train read %s: %v", pair, err)
			continue
		}
		if len(candles) > len(best) {
			best = candles
		}
	}
	if len(best) == 0 {
		log.Println("[runner] no stored candles to train on")
		return
	}

	bars := trainingBars(best, r.cfg.Profile.Indicators.RSIPeriod)

	start := time.Now()
	if err := r.deps.Predictor.Train(bars); err != nil {
		log.Printf("[runner] train failed: %v", err)
		return
	}
	r.deps.Metrics.MLTrainDur.Observe(time.Since(start).Seconds())

	r.staleMu.Lock()
	r.staleAlerted = false
	r.staleMu.Unlock()
	if r.deps.Health != nil {
		r.deps.Health.SetPredictorFresh(true)
	}
}

// trainingBars converts stored candles to predictor bars, computing RSI with
// the same period the live indicator engine uses.
func trainingBars(candles []model.Candle, rsiPeriod int) []mlpredict.Bar {
	rsi := indicator.NewRSI(rsiPeriod)
	bars := make([]mlpredict.Bar, 0, len(candles))
	for _, c := range candles {
		rsi.Update(c.Close)
		bars = append(bars, mlpredict.Bar{
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
			RSI:    rsi.Value(),
		})
	}
	return bars
}
