package signals

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Default on-chain source parameters.
const (
	onchainBucket    = 10 * time.Minute
	onchainThreshold = 0.5

	// Sub-score weights: wallet transfers, DEX trades, whale accumulation,
	// exchange flows.
	wTransfers = 0.30
	wDexTrades = 0.25
	wWhales    = 0.25
	wExchange  = 0.20
)

// onchainResponse is the flow aggregate returned by the GraphQL endpoint.
// All values are USD over the query window.
type onchainResponse struct {
	Data struct {
		Flows struct {
			TransferInUSD  float64 `json:"transferInUSD"`
			TransferOutUSD float64 `json:"transferOutUSD"`

			DexBuyUSD  float64 `json:"dexBuyUSD"`
			DexSellUSD float64 `json:"dexSellUSD"`

			WhaleBuyUSD  float64 `json:"whaleBuyUSD"`
			WhaleSellUSD float64 `json:"whaleSellUSD"`

			ExchangeInflowUSD  float64 `json:"exchangeInflowUSD"`
			ExchangeOutflowUSD float64 `json:"exchangeOutflowUSD"`
		} `json:"flows"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// OnchainFlowSource scores an asset from aggregated on-chain money flow
// (GraphQL API). Four bounded sub-scores, each an (a-b)/(a+b) imbalance,
// weighted into the final score. Thin flow below the materiality floor
// contributes 0, so illiquid assets do not produce spurious extremes.
type OnchainFlowSource struct {
	endpoint string
	apiKey   string
	client   *http.Client

	// minNotionalUSD is the per-sub-score materiality floor.
	minNotionalUSD float64
}

// NewOnchainFlowSource creates the on-chain flow source.
func NewOnchainFlowSource(endpoint, apiKey string) *OnchainFlowSource {
	return &OnchainFlowSource{
		endpoint:       endpoint,
		apiKey:         apiKey,
		client:         &http.Client{Timeout: 10 * time.Second},
		minNotionalUSD: 50_000,
	}
}

func (s *OnchainFlowSource) ID() string            { return "onchain" }
func (s *OnchainFlowSource) Bucket() time.Duration { return onchainBucket }
func (s *OnchainFlowSource) Threshold() float64    { return onchainThreshold }

func (s *OnchainFlowSource) Fetch(ctx context.Context, asset string) (float64, error) {
	query := fmt.Sprintf(`{ flows(currency: %q, window: "10m") {
		transferInUSD transferOutUSD
		dexBuyUSD dexSellUSD
		whaleBuyUSD whaleSellUSD
		exchangeInflowUSD exchangeOutflowUSD } }`, asset)

	var resp onchainResponse
	headers := map[string]string{"X-API-KEY": s.apiKey}
	if err := postJSON(ctx, s.client, s.endpoint, headers, map[string]string{"query": query}, &resp); err != nil {
		return 0, fmt.Errorf("onchain: %w", err)
	}
	if len(resp.Errors) > 0 {
		return 0, fmt.Errorf("onchain: graphql error: %s", resp.Errors[0].Message)
	}

	f := resp.Data.Flows

	// Wallet transfers into the asset = accumulation; exchange outflow =
	// supply leaving order books. Both read bullish.
	transfers := s.material(f.TransferInUSD, f.TransferOutUSD)
	dex := s.material(f.DexBuyUSD, f.DexSellUSD)
	whales := s.material(f.WhaleBuyUSD, f.WhaleSellUSD)
	exchange := s.material(f.ExchangeOutflowUSD, f.ExchangeInflowUSD)

	score := wTransfers*transfers + wDexTrades*dex + wWhales*whales + wExchange*exchange
	return clamp(score), nil
}

// material returns the imbalance of (a,b), or 0 when total notional is below
// the materiality floor.
func (s *OnchainFlowSource) material(a, b float64) float64 {
	if a+b < s.minNotionalUSD {
		return 0
	}
	return Imbalance(a, b)
}
