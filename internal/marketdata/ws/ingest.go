// Package ws provides the live candle feed: a WebSocket client for a
// Binance-style combined kline stream that normalizes kline events into
// model.Candle values, forming and closed alike.
//
// One connection carries all subscribed pairs. The combined-stream envelope is
//
//	{"stream":"solusdt@kline_5m","data":{"e":"kline","k":{...}}}
//
// and the kline payload closes (k.x == true) exactly once per bucket, which is
// what drives downstream evaluation.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"fusion-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the kline WS ingest.
type Config struct {
	// BaseURL of the combined stream endpoint, e.g. "wss://stream.binance.com:9443".
	BaseURL string

	// Pairs to subscribe, in display form ("SOL/USDT").
	Pairs []string

	// Timeframe of the kline stream ("5m", "15m", ...).
	Timeframe string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to the kline stream and pushes model.Candle values into
// candleCh. Reconnects with exponential backoff on disconnect.
type Ingest struct {
	cfg Config
	url string

	// pairBySymbol maps the lowercase stream symbol back to the display pair.
	pairBySymbol map[string]string

	// Optional hooks for metrics and health reporting.
	OnReconnect func()
	OnCandle    func(c model.Candle)
}

// New creates a new Ingest. Returns an error on empty configuration.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ws ingest: empty base URL")
	}
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("ws ingest: no pairs to subscribe")
	}
	if cfg.Timeframe == "" {
		return nil, fmt.Errorf("ws ingest: empty timeframe")
	}

	pairBySymbol := make(map[string]string, len(cfg.Pairs))
	streams := make([]string, 0, len(cfg.Pairs))
	for _, pair := range cfg.Pairs {
		sym := streamSymbol(pair)
		pairBySymbol[sym] = pair
		streams = append(streams, sym+"@kline_"+cfg.Timeframe)
	}

	return &Ingest{
		cfg:          cfg,
		url:          cfg.BaseURL + "/stream?streams=" + strings.Join(streams, "/"),
		pairBySymbol: pairBySymbol,
	}, nil
}

// streamSymbol converts "SOL/USDT" to the stream form "solusdt".
func streamSymbol(pair string) string {
	s := strings.NewReplacer("/", "", "-", "", ":", "").Replace(pair)
	return strings.ToLower(s)
}

// Start connects to the stream and pushes candles into candleCh.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, candleCh chan<- model.Candle) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, candleCh)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[ws] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, candleCh chan<- model.Candle) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[ws] connected, %d kline streams @%s", len(ing.pairBySymbol), ing.cfg.Timeframe)

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		candle, ok, err := ing.parseKline(raw)
		if err != nil {
			log.Printf("[ws] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if !ok {
			continue
		}

		if ing.OnCandle != nil {
			ing.OnCandle(candle)
		}

		select {
		case candleCh <- candle:
		default:
			log.Printf("[ws] candleCh full, dropping %s candle", candle.Key())
		}
	}
}

// combinedEvent is the combined-stream envelope.
type combinedEvent struct {
	Stream string     `json:"stream"`
	Data   klineEvent `json:"data"`
}

type klineEvent struct {
	EventType string `json:"e"`
	Kline     kline  `json:"k"`
}

// kline carries prices as decimal strings, the venue's convention.
type kline struct {
	OpenTime int64  `json:"t"` // epoch milliseconds, bucket open
	Symbol   string `json:"s"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"`
}

// parseKline converts one raw stream message into a model.Candle.
// Returns ok=false for non-kline events and unknown symbols.
func (ing *Ingest) parseKline(raw []byte) (model.Candle, bool, error) {
	var ev combinedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return model.Candle{}, false, err
	}
	if ev.Data.EventType != "kline" {
		return model.Candle{}, false, nil
	}

	k := ev.Data.Kline
	pair, known := ing.pairBySymbol[strings.ToLower(k.Symbol)]
	if !known {
		return model.Candle{}, false, nil
	}

	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return model.Candle{}, false, fmt.Errorf("open %q: %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return model.Candle{}, false, fmt.Errorf("high %q: %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return model.Candle{}, false, fmt.Errorf("low %q: %w", k.Low, err)
	}
	closeP, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return model.Candle{}, false, fmt.Errorf("close %q: %w", k.Close, err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return model.Candle{}, false, fmt.Errorf("volume %q: %w", k.Volume, err)
	}

	return model.Candle{
		Pair:      pair,
		Timeframe: ing.cfg.Timeframe,
		TS:        time.Unix(0, k.OpenTime*int64(time.Millisecond)).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
		Forming:   !k.Closed,
	}, true, nil
}
