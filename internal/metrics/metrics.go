package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the fusion engine.
type Metrics struct {
	CandlesTotal       prometheus.Counter
	WSReconnects       prometheus.Counter
	StaleCandles       prometheus.Counter
	RingBufDrops       prometheus.Counter
	EvalDur            prometheus.Histogram
	DecisionsLag       prometheus.Gauge
	EntriesTotal       *prometheus.CounterVec // labels: pair, side
	ExitsTotal         *prometheus.CounterVec // labels: pair, side
	DecisionsPublished prometheus.Counter

	// External sources
	SourceFetches  *prometheus.CounterVec // labels: source, result=ok|error
	SourceFetchDur *prometheus.HistogramVec
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter

	// ML predictor
	MLPredictions *prometheus.CounterVec // labels: direction=up|down|neutral
	MLStale       prometheus.Counter
	MLTrainDur    prometheus.Histogram

	// Protection guard
	GuardBlocks *prometheus.CounterVec // labels: reason

	// Stores
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram

	// Redis circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_candles_total",
			Help: "Total closed candles ingested",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		StaleCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_stale_candles_rejected_total",
			Help: "Candles rejected for out-of-order timestamps",
		}),
		RingBufDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_ringbuf_drops_total",
			Help: "Candles dropped on ring buffer overflow",
		}),
		EvalDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fusion_eval_duration_seconds",
			Help:    "Per-bar fusion evaluation latency (indicators through decision)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		DecisionsLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fusion_decision_lag_seconds",
			Help: "Lag between candle close time and decision emission",
		}),
		EntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_entries_total",
			Help: "Entry signals emitted (by pair and side)",
		}, []string{"pair", "side"}),
		ExitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_exits_total",
			Help: "Exit signals emitted (by pair and side)",
		}, []string{"pair", "side"}),
		DecisionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_decisions_published_total",
			Help: "Decisions published to the output stream",
		}),

		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_source_fetches_total",
			Help: "External source fetches (by source and result)",
		}, []string{"source", "result"}),
		SourceFetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fusion_source_fetch_duration_seconds",
			Help:    "External source fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_signal_cache_hits_total",
			Help: "Signal cache bucket hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_signal_cache_misses_total",
			Help: "Signal cache bucket misses (fresh computes)",
		}),

		MLPredictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_ml_predictions_total",
			Help: "ML predictions (by resolved direction)",
		}, []string{"direction"}),
		MLStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_ml_stale_predictions_total",
			Help: "Predictions served while the model was stale or untrained",
		}),
		MLTrainDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fusion_ml_train_duration_seconds",
			Help:    "Ensemble training latency",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),

		GuardBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_guard_blocks_total",
			Help: "Entries vetoed by the protection guard (by reason)",
		}, []string{"reason"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fusion_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fusion_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fusion_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_redis_buffered_writes_total",
			Help: "Writes buffered locally while the circuit breaker was open",
		}),
	}

	prometheus.MustRegister(
		m.CandlesTotal,
		m.WSReconnects,
		m.StaleCandles,
		m.RingBufDrops,
		m.EvalDur,
		m.DecisionsLag,
		m.EntriesTotal,
		m.ExitsTotal,
		m.DecisionsPublished,
		m.SourceFetches,
		m.SourceFetchDur,
		m.CacheHits,
		m.CacheMisses,
		m.MLPredictions,
		m.MLStale,
		m.MLTrainDur,
		m.GuardBlocks,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	PredictorFresh bool      `json:"predictor_fresh"`
	EnabledPairs   []string  `json:"enabled_pairs"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetPredictorFresh(v bool) {
	h.mu.Lock()
	h.PredictorFresh = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledPairs(pairs []string) {
	h.mu.Lock()
	h.EnabledPairs = pairs
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.WSConnected || !h.RedisConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Candle age
	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		WSConnected     bool     `json:"ws_connected"`
		LastCandleTime  string   `json:"last_candle_time"`
		CandleAge       string   `json:"candle_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		PredictorFresh  bool     `json:"predictor_fresh"`
		EnabledPairs    []string `json:"enabled_pairs"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		PredictorFresh:  h.PredictorFresh,
		EnabledPairs:    h.EnabledPairs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
