package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
	pkgch "FinSim/pkg/clickhouse"
	applogger "FinSim/pkg/logger"
)

const (
	barTable        = "ohlcv_intraday"
	barChunkSize    = 2000
	defaultBarLimit = 500000
	// HasData wants at least this many rows before trusting the store.
	minStoredBars = 10
)

// BarSchema creates the intraday bar table. ReplacingMergeTree keeps the last
// write for a (symbol, interval, ts) key so re-ingesting a day is idempotent.
var BarSchema = []string{
	`CREATE TABLE IF NOT EXISTS ohlcv_intraday (
        symbol     LowCardinality(String),
        ts         DateTime('UTC'),
        interval   LowCardinality(String),
        open       Float64,
        high       Float64,
        low        Float64,
        close      Float64,
        volume     Float64,
        source     LowCardinality(String),
        updated_at DateTime DEFAULT now()
    ) ENGINE = ReplacingMergeTree(updated_at)
    ORDER BY (symbol, interval, ts)`,
}

// CHBarStore implements BarRepository backed by ClickHouse.
type CHBarStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, l *applogger.Logger) *CHBarStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarStore{db: ch.DB(), l: l}
}

// Save inserts bars in chunks of multi-row VALUES statements. Invalid bars are
// dropped; the number of rows written is returned.
func (s *CHBarStore) Save(ctx context.Context, symbol string, tf domrepo.Timeframe, bars []models.Bar, source string) (int, error) {
	written := 0
	for start := 0; start < len(bars); start += barChunkSize {
		end := start + barChunkSize
		if end > len(bars) {
			end = len(bars)
		}

		q, args := buildBarInsert(symbol, tf, bars[start:end], source)
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse save_bars error",
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Int("written", written),
				applogger.Error(err),
			)
			return written, fmt.Errorf("insert bars: %w", err)
		}
		written += len(args) / barColumns
	}
	return written, nil
}

const barColumns = 9

func buildBarInsert(symbol string, tf domrepo.Timeframe, bars []models.Bar, source string) (string, []interface{}) {
	values := make([]string, 0, len(bars))
	args := make([]interface{}, 0, len(bars)*barColumns)
	for _, b := range bars {
		if !b.Valid() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, symbol, b.Timestamp, string(tf), b.Open, b.High, b.Low, b.Close, b.Volume, source)
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, ts, interval, open, high, low, close, volume, source) VALUES %s",
		barTable, strings.Join(values, ","))
	return q, args
}

// Get returns bars in [from, to) in ascending time order.
func (s *CHBarStore) Get(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	start := time.Now()
	if limit <= 0 {
		limit = defaultBarLimit
	}
	const q = `
        SELECT ts, open, high, low, close, volume
        FROM ohlcv_intraday FINAL
        WHERE symbol = ? AND interval = ? AND ts >= ? AND ts < ?
        ORDER BY ts ASC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), from, to, limit)
	if err != nil {
		s.l.Error("clickhouse get_bars query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out, err := scanBars(rows, 1024)
	if err != nil {
		return nil, err
	}
	s.l.Debug("clickhouse get_bars ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// HasData reports whether the store already covers the range.
func (s *CHBarStore) HasData(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) (bool, error) {
	const q = `
        SELECT count()
        FROM ohlcv_intraday
        WHERE symbol = ? AND interval = ? AND ts >= ? AND ts < ?
    `
	var n uint64
	if err := s.db.QueryRowContext(ctx, q, symbol, string(tf), from, to).Scan(&n); err != nil {
		return false, fmt.Errorf("count bars: %w", err)
	}
	return n >= minStoredBars, nil
}

// Latest returns the newest n bars in ascending order.
func (s *CHBarStore) Latest(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.Bar, error) {
	const q = `
        SELECT ts, open, high, low, close, volume
        FROM ohlcv_intraday FINAL
        WHERE symbol = ? AND interval = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest bars: %w", err)
	}
	defer rows.Close()

	out, err := scanBars(rows, n)
	if err != nil {
		return nil, err
	}
	reverseBars(out)
	return out, nil
}

func scanBars(rows *sql.Rows, capHint int) ([]models.Bar, error) {
	out := make([]models.Bar, 0, capHint)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		// ClickHouse hands DateTime back in the server zone; bars are naive.
		b.Timestamp = naive(b.Timestamp)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func reverseBars(b []models.Bar) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
