// cmd/backtest replays stored candle history through the full fusion
// pipeline (indicators, ML, guard, paper fills) and prints a trade summary.
// Replay is deterministic: the same database produces the same trades.
//
// Usage:
//
//	go run ./cmd/backtest --pairs=SOL/USDT --tf=5m --profile=baseline --speed=0
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fusion-systemv1/internal/fusion"
	"fusion-systemv1/internal/marketdata/replay"
	"fusion-systemv1/internal/metrics"
	"fusion-systemv1/internal/mlpredict"
	"fusion-systemv1/internal/model"
	"fusion-systemv1/internal/paper"
	"fusion-systemv1/internal/protection"
	"fusion-systemv1/internal/runner"
	sqlitestore "fusion-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	pairsStr := flag.String("pairs", "", "Comma-separated pairs (default: all pairs in the database)")
	tf := flag.String("tf", "5m", "Timeframe to replay")
	profileName := flag.String("profile", "baseline", "Fusion profile: baseline, breakout, pullback")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	dbPath := flag.String("db", "data/candles.db", "Path to SQLite database")
	stoploss := flag.Float64("stoploss", paper.DefaultStoploss, "Stoploss ratio (negative)")
	train := flag.Bool("train", false, "Pre-train the ML predictor on stored history (lookahead!)")
	flag.Parse()

	profile, ok := fusion.Profiles()[*profileName]
	if !ok {
		log.Fatalf("[backtest] unknown profile %q", *profileName)
	}
	profile.Timeframe = *tf
	// Remote sources have no place in a deterministic replay.
	profile.UseExternal = false

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	pairs := parsePairs(*pairsStr)
	if len(pairs) == 0 {
		pairs = storedPairs(reader, *tf)
	}
	if len(pairs) == 0 {
		log.Fatalf("[backtest] no pairs for timeframe %s in %s", *tf, *dbPath)
	}

	guard, err := protection.NewGuard(protection.DefaultConfig())
	if err != nil {
		log.Fatalf("[backtest] guard init failed: %v", err)
	}

	var history *sqlitestore.Reader
	if *train {
		history = reader
	}

	run, err := runner.New(runner.Config{
		Pairs:    pairs,
		Profile:  profile,
		Stoploss: *stoploss,
	}, runner.Deps{
		Predictor: mlpredict.New(),
		Guard:     guard,
		History:   history,
		Metrics:   metrics.NewMetrics(),
	})
	if err != nil {
		log.Fatalf("[backtest] runner init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	candleCh := make(chan model.Candle, 10000)
	go func() {
		if err := replay.New(reader).Run(ctx, pairs, *tf, *fromTS, *speed, candleCh); err != nil {
			log.Printf("[backtest] replay error: %v", err)
		}
		close(candleCh)
	}()

	if err := run.Run(ctx, candleCh); err != nil {
		log.Fatalf("[backtest] run failed: %v", err)
	}

	printSummary(pairs, run.Tracker().Trades())
}

func printSummary(pairs []string, trades []paper.Trade) {
	wins, stops := 0, 0
	var totalPnL float64
	perPair := map[string]float64{}
	for _, t := range trades {
		totalPnL += t.PnLRatio
		perPair[t.Pair] += t.PnLRatio
		if t.PnLRatio > 0 {
			wins++
		}
		if t.Stoploss {
			stops++
		}
	}

	winRate := 0.0
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades)) * 100
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Pairs:          %-19d ║\n", len(pairs))
	fmt.Printf("║  Trades:         %-19d ║\n", len(trades))
	fmt.Printf("║  Win rate:       %-18.1f%% ║\n", winRate)
	fmt.Printf("║  Stoploss exits: %-19d ║\n", stops)
	fmt.Printf("║  Total PnL:      %+-18.4f ║\n", totalPnL)
	fmt.Println("╚══════════════════════════════════════╝")
	for pair, pnl := range perPair {
		fmt.Printf("  %-12s %+.4f\n", pair, pnl)
	}
}

func parsePairs(s string) []string {
	var pairs []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// storedPairs lists every pair in the database carrying the timeframe.
func storedPairs(reader *sqlitestore.Reader, tf string) []string {
	keys, err := reader.Pairs()
	if err != nil {
		log.Printf("[backtest] pair discovery failed: %v", err)
		return nil
	}
	var pairs []string
	for _, k := range keys {
		if k.Timeframe == tf {
			pairs = append(pairs, k.Pair)
		}
	}
	return pairs
}
