// Package replay provides a candle replayer that reads historical data from
// SQLite and emits it at configurable speed for backtesting. Candles come out
// in strict timestamp order, so two runs over the same database produce the
// same evaluation sequence.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"fusion-systemv1/internal/model"
	sqlitestore "fusion-systemv1/internal/store/sqlite"
)

// Replayer reads historical candles from SQLite and replays them
// at a configurable speed multiplier.
type Replayer struct {
	reader *sqlitestore.Reader
}

// New creates a Replayer backed by a SQLite reader.
func New(reader *sqlitestore.Reader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays all candles for the given pairs and timeframe, emitting them
// into outCh in timestamp order.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
// fromTS filters candles to those after this Unix timestamp (0 = all).
func (r *Replayer) Run(ctx context.Context, pairs []string, timeframe string, fromTS int64, speed float64, outCh chan<- model.Candle) error {
	var allCandles []model.Candle
	for _, pair := range pairs {
		candles, err := r.reader.ReadCandles(pair, timeframe, fromTS)
		if err != nil {
			return err
		}
		allCandles = append(allCandles, candles...)
	}

	if len(allCandles) == 0 {
		log.Println("[replay] no candles found in SQLite")
		return nil
	}

	// Interleave pairs into one time-ordered stream. Stable sort keeps the
	// pair order deterministic when two pairs close on the same bar.
	sort.SliceStable(allCandles, func(i, j int) bool {
		return allCandles[i].TS.Before(allCandles[j].TS)
	})

	log.Printf("[replay] loaded %d candles across %d pairs, speed=%.1fx", len(allCandles), len(pairs), speed)

	var prevTS time.Time
	emitted := 0

	for _, c := range allCandles {
		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d candles", emitted)
			return ctx.Err()
		default:
		}

		// Simulate time gaps between candles
		if speed > 0 && !prevTS.IsZero() {
			gap := c.TS.Sub(prevTS)
			if gap > 0 {
				scaledGap := time.Duration(float64(gap) / speed)
				// Cap max sleep to avoid very long waits
				if scaledGap > 5*time.Second {
					scaledGap = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaledGap):
				}
			}
		}
		prevTS = c.TS

		// Stored candles are always closed
		c.Forming = false
		outCh <- c
		emitted++
	}

	log.Printf("[replay] completed: %d candles replayed", emitted)
	return nil
}
