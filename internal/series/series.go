// Package series owns the per-pair candle buffers that indicators read from.
//
// A Series is append-only and time-ordered: closed candles are immutable,
// only the forming (open) candle may be replaced until it closes. Timestamp
// ordering is enforced on append so downstream recurrences never see
// out-of-order bars.
package series

import (
	"errors"
	"fmt"
	"sync"

	"fusion-systemv1/internal/model"
)

var (
	// ErrOutOfOrder is returned when an appended candle does not advance time.
	ErrOutOfOrder = errors.New("series: candle timestamp not after previous")
	// ErrForming is returned when a forming candle is appended as closed.
	ErrForming = errors.New("series: forming candle cannot be appended as closed")
)

// Series holds the ordered closed candles for one (pair, timeframe) plus an
// optional forming candle. Designed for single-goroutine append per pair;
// the mutex only protects concurrent readers (status queries, snapshots).
type Series struct {
	mu      sync.RWMutex
	pair    string
	tf      string
	candles []model.Candle
	forming *model.Candle
}

// New creates an empty series for a pair and timeframe.
func New(pair, timeframe string) *Series {
	return &Series{
		pair:    pair,
		tf:      timeframe,
		candles: make([]model.Candle, 0, 512),
	}
}

// Append adds a closed candle. The timestamp must be strictly after the last
// closed candle; gaps are allowed (indicators degrade gracefully), equal or
// earlier timestamps are rejected. A pending forming candle for the same
// bucket is discarded.
func (s *Series) Append(c model.Candle) error {
	if c.Forming {
		return ErrForming
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.candles); n > 0 && !c.TS.After(s.candles[n-1].TS) {
		return fmt.Errorf("%w: %s then %s", ErrOutOfOrder,
			s.candles[n-1].TS.Format("15:04:05"), c.TS.Format("15:04:05"))
	}
	s.candles = append(s.candles, c)
	s.forming = nil
	return nil
}

// SetForming replaces the forming candle. It is not part of the closed
// history and is never seen by indicator recurrences.
func (s *Series) SetForming(c model.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Forming = true
	s.forming = &c
}

// Forming returns the current forming candle, if any.
func (s *Series) Forming() (model.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.forming == nil {
		return model.Candle{}, false
	}
	return *s.forming, true
}

// Len returns the number of closed candles.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

// At returns the closed candle at index i (0 = oldest).
func (s *Series) At(i int) model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.candles[i]
}

// Last returns the most recent closed candle, or false if empty.
func (s *Series) Last() (model.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return model.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Tail copies the most recent n closed candles (fewer if the series is
// shorter). The returned slice is owned by the caller.
func (s *Series) Tail(n int) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.candles) {
		n = len(s.candles)
	}
	out := make([]model.Candle, n)
	copy(out, s.candles[len(s.candles)-n:])
	return out
}

// Pair returns the trading pair of this series.
func (s *Series) Pair() string { return s.pair }

// Timeframe returns the timeframe of this series.
func (s *Series) Timeframe() string { return s.tf }
