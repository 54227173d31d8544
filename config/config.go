package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Trading universe
	Pairs     []string // e.g. ["SOL/USDT", "ETH/USDT"]
	Timeframe string   // e.g. "5m"
	Profile   string   // fusion profile name: baseline, breakout, pullback

	// Market data
	WSBaseURL string

	// External signal sources. An empty endpoint disables that source.
	OnchainEndpoint string
	OnchainAPIKey   string
	DexEndpoint     string
	DexAPIKey       string
	NewsEndpoint    string
	NewsAPIKey      string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string

	// Paper trading
	Stoploss float64 // negative ratio, e.g. -0.012
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Pairs:     splitList(getEnv("PAIRS", "SOL/USDT,ETH/USDT")),
		Timeframe: getEnv("TIMEFRAME", "5m"),
		Profile:   getEnv("PROFILE", "baseline"),

		WSBaseURL: getEnv("WS_BASE_URL", "wss://stream.binance.com:9443"),

		OnchainEndpoint: getEnv("ONCHAIN_ENDPOINT", ""),
		OnchainAPIKey:   getEnv("ONCHAIN_API_KEY", ""),
		DexEndpoint:     getEnv("DEX_ENDPOINT", ""),
		DexAPIKey:       getEnv("DEX_API_KEY", ""),
		NewsEndpoint:    getEnv("NEWS_ENDPOINT", ""),
		NewsAPIKey:      getEnv("NEWS_API_KEY", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		Stoploss: getEnvFloat("STOPLOSS", -0.012),
	}
}

// Validate fails fast on configuration that would only break deep inside the
// pipeline. Called once at startup.
func (c *Config) Validate() error {
	if len(c.Pairs) == 0 {
		return fmt.Errorf("config: PAIRS is empty")
	}
	for _, p := range c.Pairs {
		if !strings.ContainsAny(p, "/-:") {
			return fmt.Errorf("config: pair %q has no base/quote separator", p)
		}
	}
	if c.Timeframe == "" {
		return fmt.Errorf("config: TIMEFRAME is empty")
	}
	if c.Profile == "" {
		return fmt.Errorf("config: PROFILE is empty")
	}
	if c.WSBaseURL == "" {
		return fmt.Errorf("config: WS_BASE_URL is empty")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("config: SQLITE_PATH is empty")
	}
	if c.Stoploss >= 0 {
		return fmt.Errorf("config: STOPLOSS must be negative, got %v", c.Stoploss)
	}
	if c.OnchainEndpoint != "" && c.OnchainAPIKey == "" {
		return fmt.Errorf("config: ONCHAIN_ENDPOINT set but ONCHAIN_API_KEY empty")
	}
	if c.DexEndpoint != "" && c.DexAPIKey == "" {
		return fmt.Errorf("config: DEX_ENDPOINT set but DEX_API_KEY empty")
	}
	if c.NewsEndpoint != "" && c.NewsAPIKey == "" {
		return fmt.Errorf("config: NEWS_ENDPOINT set but NEWS_API_KEY empty")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}
