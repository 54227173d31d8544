// Package redis publishes fusion decisions and external scores to Redis
// Streams for downstream consumers (execution, dashboards). Writes go
// through a circuit breaker with local buffering, so a Redis outage
// degrades to delayed delivery instead of blocking evaluation.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"fusion-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: ~1 day of 5m decisions per pair plus buffer.
	decisionStreamMaxLen = 512
	scoreStreamMaxLen    = 1024
	defaultLatestTTL     = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes decisions and signal scores to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads decisions from decisionCh and writes them to Redis.
// Blocks until ctx is cancelled or decisionCh is closed.
func (w *Writer) Run(ctx context.Context, decisionCh <-chan model.Decision) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-decisionCh:
			if !ok {
				return
			}
			w.writeDecision(ctx, d)
		}
	}
}

// writeDecision performs the pipelined writes for one decision:
// XADD to the per-pair stream, SET latest, PUBLISH for live subscribers.
func (w *Writer) writeDecision(ctx context.Context, d model.Decision) {
	streamKey := d.StreamKey()
	latestKey := "decision:latest:" + d.Pair + "@" + d.Timeframe
	pubsubCh := "pub:" + streamKey
	jsonData := string(d.JSON())

	pipe := w.client.Pipeline()

	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: decisionStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": jsonData,
		},
	})
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[redis] decision pipeline error for %s: %v", streamKey, err)
	}
}

// WriteScore publishes one external source score for observability:
// stream per source, latest key per (source, asset).
func (w *Writer) WriteScore(ctx context.Context, s model.SignalScore) {
	streamKey := "score:" + s.SourceID
	latestKey := "score:latest:" + s.SourceID + ":" + s.AssetKey
	raw, err := json.Marshal(s)
	if err != nil {
		log.Printf("[redis] score marshal error for %s/%s: %v", s.SourceID, s.AssetKey, err)
		return
	}
	jsonData := string(raw)

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: scoreStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)

	if _, err = pipe.Exec(ctx); err != nil {
		log.Printf("[redis] score pipeline error for %s/%s: %v", s.SourceID, s.AssetKey, err)
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
