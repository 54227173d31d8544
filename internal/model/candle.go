package model

import (
	"encoding/json"
	"time"
)

// Candle represents one closed OHLCV bar for a single trading pair.
// Crypto venues quote fractional prices, so all fields are float64;
// callers must never feed NaN/Inf values into the pipeline.
type Candle struct {
	Pair      string    `json:"pair"`      // e.g. "SOL/USDT"
	Timeframe string    `json:"timeframe"` // e.g. "5m"
	TS        time.Time `json:"ts"`        // bucket open time (UTC, TF-aligned)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Forming   bool      `json:"forming"` // true while the bucket is still open
}

// Key returns a unique key for this candle's series: "pair@timeframe".
func (c *Candle) Key() string {
	return c.Pair + "@" + c.Timeframe
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// BaseAsset extracts the base currency from the pair ("SOL/USDT" → "SOL").
// External signal sources are keyed by base asset, not by pair, so two pairs
// sharing a base currency share cached scores.
func (c *Candle) BaseAsset() string {
	for i := 0; i < len(c.Pair); i++ {
		if c.Pair[i] == '/' || c.Pair[i] == '-' || c.Pair[i] == ':' {
			return c.Pair[:i]
		}
	}
	return c.Pair
}
