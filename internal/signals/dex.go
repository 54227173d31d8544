package signals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Default DEX/whale source parameters.
const (
	dexBucket    = 5 * time.Minute
	dexThreshold = 0.6

	wLargeTx  = 0.4
	wDexSwaps = 0.4
	wWhaleAcc = 0.2

	// DEX swaps lead spot on the tracked chains, so the swap imbalance is
	// amplified before the final clamp.
	dexAmplification = 1.5
)

// dexTransaction is one parsed enriched transaction from the REST API.
type dexTransaction struct {
	Type      string  `json:"type"`      // "SWAP" or "TRANSFER"
	Side      string  `json:"side"`      // "buy" or "sell"
	AmountUSD float64 `json:"amountUsd"` // notional
	Whale     bool    `json:"whale"`     // known large wallet
}

type dexResponse struct {
	Transactions []dexTransaction `json:"transactions"`
}

// DexActivitySource scores an asset from recent enriched DEX transaction
// history (Helius-style REST). Three sub-scores: large-transaction
// imbalance, amplified swap imbalance and whale accumulation.
type DexActivitySource struct {
	endpoint string
	apiKey   string
	client   *http.Client

	// largeTxUSD is the notional above which a transaction counts as large.
	largeTxUSD float64
}

// NewDexActivitySource creates the DEX/whale activity source.
func NewDexActivitySource(endpoint, apiKey string) *DexActivitySource {
	return &DexActivitySource{
		endpoint:   endpoint,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 10 * time.Second},
		largeTxUSD: 25_000,
	}
}

func (s *DexActivitySource) ID() string            { return "dex" }
func (s *DexActivitySource) Bucket() time.Duration { return dexBucket }
func (s *DexActivitySource) Threshold() float64    { return dexThreshold }

func (s *DexActivitySource) Fetch(ctx context.Context, asset string) (float64, error) {
	u := fmt.Sprintf("%s/v0/assets/%s/transactions?api-key=%s",
		s.endpoint, url.PathEscape(asset), url.QueryEscape(s.apiKey))

	var resp dexResponse
	if err := getJSON(ctx, s.client, u, nil, &resp); err != nil {
		return 0, fmt.Errorf("dex: %w", err)
	}

	var largeBuy, largeSell float64
	var swapBuy, swapSell float64
	var whaleBuy, whaleSell float64

	for _, tx := range resp.Transactions {
		buy := tx.Side == "buy"
		if tx.AmountUSD >= s.largeTxUSD {
			if buy {
				largeBuy += tx.AmountUSD
			} else {
				largeSell += tx.AmountUSD
			}
		}
		if tx.Type == "SWAP" {
			if buy {
				swapBuy += tx.AmountUSD
			} else {
				swapSell += tx.AmountUSD
			}
		}
		if tx.Whale {
			if buy {
				whaleBuy += tx.AmountUSD
			} else {
				whaleSell += tx.AmountUSD
			}
		}
	}

	largeTx := Imbalance(largeBuy, largeSell)
	swaps := clamp(Imbalance(swapBuy, swapSell) * dexAmplification)
	whales := Imbalance(whaleBuy, whaleSell)

	return clamp(wLargeTx*largeTx + wDexSwaps*swaps + wWhaleAcc*whales), nil
}
