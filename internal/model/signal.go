package model

import (
	"encoding/json"
	"time"
)

// SignalScore is one cached external-source score for an asset.
// Value is always within [-1, 1]; BucketID identifies the time bucket the
// score was computed for (floor(now / bucketWidth)).
type SignalScore struct {
	SourceID   string    `json:"source_id"`
	AssetKey   string    `json:"asset_key"`
	BucketID   int64     `json:"bucket_id"`
	Value      float64   `json:"value"`
	ComputedAt time.Time `json:"computed_at"`
}

// PredictionResult is the output of the ML predictor for one bar.
// Direction is -1 (down), 0 (neutral) or 1 (up). Stale predictions carry
// Direction 0 and Confidence 0 and set Stale so fusion can report them.
type PredictionResult struct {
	Direction    int       `json:"direction"`
	Confidence   float64   `json:"confidence"` // [0, 1]
	ModelVersion string    `json:"model_version"`
	ComputedAt   time.Time `json:"computed_at"`
	Stale        bool      `json:"stale"`
}

// Decision is the per-bar output of the fusion engine for one pair,
// after protection gating. Score fields are carried for observability
// so downstream consumers can tell a blocked bar from a quiet one.
type Decision struct {
	Pair      string    `json:"pair"`
	Timeframe string    `json:"timeframe"`
	TS        time.Time `json:"ts"` // closing bar timestamp

	EnterLong  bool `json:"enter_long"`
	EnterShort bool `json:"enter_short"`
	ExitLong   bool `json:"exit_long"`
	ExitShort  bool `json:"exit_short"`

	ExternalScore float64  `json:"external_score"` // combined weighted source+ML score
	MLDirection   int      `json:"ml_direction"`
	MLConfidence  float64  `json:"ml_confidence"`
	BlockReasons  []string `json:"block_reasons,omitempty"` // protection vetoes, if any
}

// JSON returns the JSON-encoded decision.
func (d *Decision) JSON() []byte {
	b, _ := json.Marshal(d)
	return b
}

// StreamKey returns the Redis stream key for decisions: "decision:{pair}@{tf}".
func (d *Decision) StreamKey() string {
	return "decision:" + d.Pair + "@" + d.Timeframe
}

// TradeClose is a trade lifecycle event consumed by the protection guard.
// PnLRatio is the realized profit ratio of the closed trade (e.g. -0.012
// for a 1.2% loss); Stoploss marks exits triggered by the stoploss.
type TradeClose struct {
	Pair     string    `json:"pair"`
	TS       time.Time `json:"ts"`
	PnLRatio float64   `json:"pnl_ratio"`
	Stoploss bool      `json:"stoploss"`
}
