package market

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// PoolInterface defines the interface for database pool operations
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// PostgresProvider reads candles from the candlesticks table
type PostgresProvider struct {
	pool     PoolInterface
	exchange string
}

// NewPostgresProvider creates a provider reading bars recorded for exchange
func NewPostgresProvider(pool PoolInterface, exchange string) *PostgresProvider {
	if exchange == "" {
		exchange = "binance"
	}
	return &PostgresProvider{pool: pool, exchange: exchange}
}

// FetchCandles loads the bars of one bucket ordered by timestamp
func (p *PostgresProvider) FetchCandles(ctx context.Context, req BucketRequest) ([]Candle, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database connection not available")
	}

	start, end := req.Range()

	query := `
		SELECT timestamp, open, high, low, close, volume
		FROM candlesticks
		WHERE symbol = $1 AND exchange = $2 AND interval = $3
			AND timestamp >= $4 AND timestamp < $5
		ORDER BY timestamp ASC
	`

	rows, err := p.pool.Query(ctx, query, req.Ticker, p.exchange, req.Interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query candlesticks: %w", err)
	}
	defer rows.Close()

	candles := make([]Candle, 0)
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candlestick: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return candles, nil
}

// SaveCandles upserts bars into the candlesticks table
func (p *PostgresProvider) SaveCandles(ctx context.Context, symbol string, interval int, candles []Candle) error {
	if p.pool == nil {
		return fmt.Errorf("database connection not available")
	}

	query := `
		INSERT INTO candlesticks (
			timestamp, symbol, exchange, interval,
			open, high, low, close, volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (timestamp, symbol, exchange, interval)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`

	for _, c := range candles {
		_, err := p.pool.Exec(ctx, query,
			c.Timestamp, symbol, p.exchange, interval,
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("failed to store candlestick at %s: %w", c.Timestamp.Format(time.RFC3339), err)
		}
	}

	log.Debug().
		Str("symbol", symbol).
		Int("interval", interval).
		Int("candlesticks_count", len(candles)).
		Msg("Stored candlesticks")

	return nil
}

// RecordingProvider fetches from a source provider and records every bucket
// into Postgres so later runs can read it back with PostgresProvider
type RecordingProvider struct {
	source Provider
	sink   *PostgresProvider
}

// NewRecordingProvider creates a write-through provider
func NewRecordingProvider(source Provider, sink *PostgresProvider) *RecordingProvider {
	return &RecordingProvider{source: source, sink: sink}
}

// FetchCandles fetches from the source, then stores the bars. A storage
// failure is logged and does not fail the fetch.
func (r *RecordingProvider) FetchCandles(ctx context.Context, req BucketRequest) ([]Candle, error) {
	candles, err := r.source.FetchCandles(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := r.sink.SaveCandles(ctx, req.Ticker, req.Interval, candles); err != nil {
		log.Warn().
			Err(err).
			Str("symbol", req.Ticker).
			Int64("period_key", req.PeriodKey).
			Msg("Failed to record candlesticks")
	}

	return candles, nil
}
