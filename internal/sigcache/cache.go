// Package sigcache provides the time-bucketed memoization layer behind the
// external signal sources.
//
// Scores are cached per (source, asset, bucket) where bucket = floor(now /
// bucketWidth). The core guarantee is at-most-once-per-bucket: even under
// concurrent callers the compute function runs once per bucket and everyone
// else waits for (and shares) that result. Failures are returned as neutral
// scores and never cached, so a flaky source retries on the next call
// instead of poisoning the bucket.
package sigcache

import (
	"context"
	"sync"
	"time"

	"fusion-systemv1/internal/model"
)

// ComputeFunc produces a fresh score for an asset. It is called at most once
// per (key, bucket); errors are recovered as neutral and not cached.
type ComputeFunc func(ctx context.Context) (float64, error)

// entry is one in-flight or completed bucket computation.
type entry struct {
	bucketID int64
	done     chan struct{} // closed when compute finishes
	score    model.SignalScore
	err      error
}

// Cache memoizes scores per key and time bucket. Safe for concurrent use;
// access per key is serialized through the single-flight entry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	// now is replaceable in tests for deterministic bucket boundaries.
	now func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*entry, 16),
		now:     time.Now,
	}
}

// GetOrCompute returns the cached score for (sourceID, assetKey) in the
// current bucket, computing it exactly once if missing. A stale bucket is a
// cache miss, not an error. On compute failure the returned score is the
// neutral 0 with the compute error attached; the failure is NOT cached.
func (c *Cache) GetOrCompute(ctx context.Context, sourceID, assetKey string, bucketWidth time.Duration, fn ComputeFunc) (model.SignalScore, error) {
	key := sourceID + ":" + assetKey
	bucketID := c.now().UnixNano() / int64(bucketWidth)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.bucketID == bucketID {
		c.mu.Unlock()
		// Another caller owns this bucket: wait for its result.
		select {
		case <-e.done:
		case <-ctx.Done():
			return neutral(sourceID, assetKey, bucketID, c.now()), ctx.Err()
		}
		if e.err != nil {
			return neutral(sourceID, assetKey, bucketID, c.now()), e.err
		}
		return e.score, nil
	}

	// Miss (or stale bucket, lazily evicted by overwrite): this caller
	// computes; the entry is visible before we release the lock, so
	// concurrent callers of the same bucket wait instead of recomputing.
	e := &entry{bucketID: bucketID, done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	value, err := fn(ctx)
	computedAt := c.now()

	if err != nil {
		e.err = err
		close(e.done)
		// Drop the failed entry so the next caller retries, even within
		// the same bucket.
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return neutral(sourceID, assetKey, bucketID, computedAt), err
	}

	e.score = model.SignalScore{
		SourceID:   sourceID,
		AssetKey:   assetKey,
		BucketID:   bucketID,
		Value:      clamp(value),
		ComputedAt: computedAt,
	}
	close(e.done)
	return e.score, nil
}

// Peek returns the cached score for the current bucket without computing.
func (c *Cache) Peek(sourceID, assetKey string, bucketWidth time.Duration) (model.SignalScore, bool) {
	key := sourceID + ":" + assetKey
	bucketID := c.now().UnixNano() / int64(bucketWidth)

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok || e.bucketID != bucketID {
		return model.SignalScore{}, false
	}
	select {
	case <-e.done:
	default:
		return model.SignalScore{}, false // still computing
	}
	if e.err != nil {
		return model.SignalScore{}, false
	}
	return e.score, true
}

func neutral(sourceID, assetKey string, bucketID int64, ts time.Time) model.SignalScore {
	return model.SignalScore{
		SourceID:   sourceID,
		AssetKey:   assetKey,
		BucketID:   bucketID,
		Value:      0,
		ComputedAt: ts,
	}
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
