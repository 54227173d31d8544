// Package signals implements the external signal sources: on-chain flow,
// DEX/whale activity and news sentiment. Each source produces a raw score in
// [-1,1] for an asset, which is discretized to a {-1,0,+1} vote by a
// per-source symmetric threshold. Sources are remote and unreliable: every
// fetch goes through the bucket cache, failures degrade to the neutral vote
// and never block an evaluation pass.
package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"fusion-systemv1/internal/sigcache"
)

// Source is one external score provider.
type Source interface {
	// ID is the stable cache/metrics identifier ("onchain", "dex", "news").
	ID() string
	// Bucket is the memoization bucket width for this source.
	Bucket() time.Duration
	// Threshold is the symmetric discretization threshold in (0,1).
	Threshold() float64
	// Fetch computes a fresh raw score in [-1,1] for the base asset.
	// Called at most once per (asset, bucket) via the cache.
	Fetch(ctx context.Context, asset string) (float64, error)
}

// Vote is the discretized outcome of one source for one asset.
type Vote struct {
	SourceID string
	Raw      float64       // cached raw score in [-1,1]
	Vote     int           // -1, 0, +1
	Elapsed  time.Duration // duration of the fresh fetch; zero on a cache hit
	Err      error         // non-nil when the source failed (vote is neutral)
}

// Discretize maps a raw score to a vote by a symmetric threshold:
// raw >= +t → +1, raw <= -t → -1, else 0.
func Discretize(raw, threshold float64) int {
	switch {
	case raw >= threshold:
		return 1
	case raw <= -threshold:
		return -1
	default:
		return 0
	}
}

// Imbalance is the bounded two-sided ratio (a-b)/(a+b), 0 when both sides
// are empty. Always in [-1,1] for non-negative inputs.
func Imbalance(a, b float64) float64 {
	if a < 0 {
		a = 0
	}
	if b < 0 {
		b = 0
	}
	total := a + b
	if total == 0 {
		return 0
	}
	return (a - b) / total
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

// Set evaluates a group of sources for an asset, each through the shared
// bucket cache, in parallel with a bounded per-pass timeout.
type Set struct {
	sources []Source
	cache   *sigcache.Cache
	timeout time.Duration
}

// NewSet builds a source set over a shared cache. timeout bounds the whole
// collection pass; a source that cannot answer in time yields a neutral vote.
func NewSet(cache *sigcache.Cache, timeout time.Duration, sources ...Source) *Set {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Set{sources: sources, cache: cache, timeout: timeout}
}

// Sources returns the configured sources in collection order.
func (s *Set) Sources() []Source { return s.sources }

// Collect fetches all sources for one asset concurrently and returns the
// votes in source order. Never returns an error: a failed source is a
// neutral vote carrying its error for logging.
func (s *Set) Collect(ctx context.Context, asset string) []Vote {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	votes := make([]Vote, len(s.sources))
	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			var fetchDur time.Duration
			score, err := s.cache.GetOrCompute(ctx, src.ID(), asset, src.Bucket(), func(ctx context.Context) (float64, error) {
				start := time.Now()
				raw, fetchErr := src.Fetch(ctx, asset)
				fetchDur = time.Since(start)
				return raw, fetchErr
			})
			v := Vote{SourceID: src.ID(), Raw: score.Value, Elapsed: fetchDur, Err: err}
			if err != nil {
				log.Printf("[signals] source=%s asset=%s fetch failed, neutral: %v", src.ID(), asset, err)
			} else {
				v.Vote = Discretize(score.Value, src.Threshold())
			}
			votes[i] = v
		}(i, src)
	}
	wg.Wait()
	return votes
}

// getJSON performs a GET and decodes the JSON body into out.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(client, req, out)
}

// postJSON performs a POST with a JSON body and decodes the response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
