// cmd/fusion is the live signal engine: WebSocket klines in, fused
// entry/exit decisions out to Redis, candle history to SQLite.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fusion-systemv1/config"
	"fusion-systemv1/internal/fusion"
	"fusion-systemv1/internal/logger"
	"fusion-systemv1/internal/marketdata/ws"
	"fusion-systemv1/internal/metrics"
	"fusion-systemv1/internal/mlpredict"
	"fusion-systemv1/internal/model"
	"fusion-systemv1/internal/notification"
	"fusion-systemv1/internal/protection"
	"fusion-systemv1/internal/runner"
	"fusion-systemv1/internal/sigcache"
	"fusion-systemv1/internal/signals"
	redisstore "fusion-systemv1/internal/store/redis"
	sqlitestore "fusion-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("fusion", parseLogLevel(getEnv("LOG_LEVEL", "info")))
	log.Println("[fusion] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[fusion] %v", err)
	}

	profile, ok := fusion.Profiles()[cfg.Profile]
	if !ok {
		log.Fatalf("[fusion] unknown profile %q", cfg.Profile)
	}
	profile.Timeframe = cfg.Timeframe

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledPairs(cfg.Pairs)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite: candle history + trades (off hot path) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[fusion] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }
	health.SetSQLiteOK(true)

	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[fusion] WARNING: sqlite reader init failed: %v (ML training disabled)", err)
		sqlReader = nil
	} else {
		defer sqlReader.Close()
	}

	sqliteCandleCh := make(chan model.Candle, 5000)
	go sqlWriter.Run(ctx, sqliteCandleCh)

	// ---- Redis: decision publishing through the circuit breaker ----
	var publisher *redisstore.BufferedWriter
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Printf("[fusion] WARNING: redis init failed: %v (decisions logged only)", err)
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)
		cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
			log.Printf("[fusion] redis circuit breaker %v -> %v", from, to)
		}
		publisher = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 10000)
		publisher.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- External signal sources ----
	cache := sigcache.New()
	var sources []signals.Source
	if cfg.OnchainEndpoint != "" {
		sources = append(sources, signals.NewOnchainFlowSource(cfg.OnchainEndpoint, cfg.OnchainAPIKey))
	}
	if cfg.DexEndpoint != "" {
		sources = append(sources, signals.NewDexActivitySource(cfg.DexEndpoint, cfg.DexAPIKey))
	}
	if cfg.NewsEndpoint != "" {
		sources = append(sources, signals.NewNewsSentimentSource(cfg.NewsEndpoint, cfg.NewsAPIKey))
	}
	var sourceSet *signals.Set
	if len(sources) > 0 {
		sourceSet = signals.NewSet(cache, 10*time.Second, sources...)
	} else if profile.UseExternal {
		log.Println("[fusion] no external sources configured, disabling external score gate")
		profile.UseExternal = false
	}

	// ---- Notifier ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		backends = append(backends, notification.NewTelegramNotifier(token, os.Getenv("TELEGRAM_CHAT_ID")))
	}
	if url := os.Getenv("NOTIFY_WEBHOOK_URL"); url != "" {
		backends = append(backends, notification.NewWebhookNotifier(url))
	}
	notifier := notification.NewMulti(backends...)

	// ---- Protection guard & predictor ----
	guard, err := protection.NewGuard(protection.DefaultConfig())
	if err != nil {
		log.Fatalf("[fusion] guard init failed: %v", err)
	}
	predictor := mlpredict.New()

	// ---- Runner ----
	run, err := runner.New(runner.Config{
		Pairs:    cfg.Pairs,
		Profile:  profile,
		Stoploss: cfg.Stoploss,
	}, runner.Deps{
		Signals:    sourceSet,
		Cache:      cache,
		Predictor:  predictor,
		Guard:      guard,
		Publisher:  publisher,
		Store:      sqlWriter,
		History:    sqlReader,
		Metrics:    prom,
		Notifier:   notifier,
		Health:     health,
		CandleSink: sqliteCandleCh,
	})
	if err != nil {
		log.Fatalf("[fusion] runner init failed: %v", err)
	}

	// ---- WebSocket kline ingest ----
	ingest, err := ws.New(ws.Config{
		BaseURL:   cfg.WSBaseURL,
		Pairs:     cfg.Pairs,
		Timeframe: cfg.Timeframe,
	})
	if err != nil {
		log.Fatalf("[fusion] ws init failed: %v", err)
	}
	ingest.OnReconnect = func() {
		prom.WSReconnects.Inc()
		health.SetWSConnected(false)
	}
	ingest.OnCandle = func(model.Candle) { health.SetWSConnected(true) }

	candleCh := make(chan model.Candle, 5000)
	go func() {
		if err := ingest.Start(ctx, candleCh); err != nil {
			log.Printf("[fusion] ws ingest error: %v", err)
		}
		close(candleCh)
	}()

	go run.Run(ctx, candleCh)

	log.Println("[fusion] ╔════════════════════════════════════════════════════════╗")
	log.Println("[fusion] ║  Signal Fusion Engine Active                           ║")
	log.Println("[fusion] ║                                                        ║")
	log.Println("[fusion] ║  [Klines] → [Indicators + Sources + ML] → [Decisions]  ║")
	log.Printf("[fusion] ║  Profile: %-10s  Timeframe: %-4s                  ║", profile.Name, cfg.Timeframe)
	log.Printf("[fusion] ║  Pairs: %-40v       ║", cfg.Pairs)
	log.Printf("[fusion] ║  External sources: %-2d                                  ║", len(sources))
	log.Println("[fusion] ╚════════════════════════════════════════════════════════╝")
	log.Println("[fusion] all systems running. Press Ctrl+C to stop.")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[fusion] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}

	log.Println("[fusion] shutdown complete.")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
