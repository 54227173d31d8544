package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"fusion-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to stored candles for replay and ML
// training feeds.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles reads closed candles for one pair and timeframe, timestamps
// strictly after afterTS, ordered ascending for correct replay order.
func (r *Reader) ReadCandles(pair, timeframe string, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT pair, timeframe, ts, open, high, low, close, volume
		FROM candles
		WHERE pair = ? AND timeframe = ? AND ts > ?
		ORDER BY ts ASC
	`, pair, timeframe, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// ReadRecentCandles reads the newest `limit` closed candles for a pair and
// timeframe, returned oldest-first (the training-feed shape).
func (r *Reader) ReadRecentCandles(pair, timeframe string, limit int) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT pair, timeframe, ts, open, high, low, close, volume
		FROM (
			SELECT pair, timeframe, ts, open, high, low, close, volume
			FROM candles
			WHERE pair = ? AND timeframe = ?
			ORDER BY ts DESC
			LIMIT ?
		)
		ORDER BY ts ASC
	`, pair, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query recent candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// PairKey is one stored (pair, timeframe) combination.
type PairKey struct {
	Pair      string
	Timeframe string
}

// Pairs lists the distinct (pair, timeframe) combinations in the store.
func (r *Reader) Pairs() ([]PairKey, error) {
	rows, err := r.db.Query(`SELECT DISTINCT pair, timeframe FROM candles ORDER BY pair`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query pairs: %w", err)
	}
	defer rows.Close()

	var out []PairKey
	for rows.Next() {
		var k PairKey
		if err := rows.Scan(&k.Pair, &k.Timeframe); err != nil {
			return nil, fmt.Errorf("sqlite scan pairs: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func scanCandles(rows *sql.Rows) ([]model.Candle, error) {
	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		if err := rows.Scan(&c.Pair, &c.Timeframe, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
