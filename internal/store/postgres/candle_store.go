package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// CandleStore implements domain.CandleStore using PostgreSQL. It backs
// internal/feed's persisted history for timeframes coarser than the live
// ring buffer, and the 1-minute base candles StartPolling writes on every
// minute rollover.
type CandleStore struct {
	pool *pgxpool.Pool
}

// NewCandleStore creates a new CandleStore backed by the given connection pool.
func NewCandleStore(pool *pgxpool.Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Insert appends one OHLCV candle. No uniqueness constraint is enforced —
// a repeated backfill may insert duplicates. The feed's merge step keeps one
// candle per timestamp: the ring buffer's candle wins over persisted rows,
// and among persisted duplicates the last row List returns is kept.
func (s *CandleStore) Insert(ctx context.Context, asset, timeframe string, c domain.Candle) error {
	const query = `
		INSERT INTO candles (asset, timeframe, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query, asset, timeframe, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("postgres: insert candle %s/%s: %w", asset, timeframe, err)
	}
	return nil
}

// List returns the most recent limit candles for asset/timeframe, oldest first.
func (s *CandleStore) List(ctx context.Context, asset, timeframe string, limit int) ([]domain.Candle, error) {
	const query = `
		SELECT timestamp, open, high, low, close, volume
		FROM (
			SELECT timestamp, open, high, low, close, volume
			FROM candles
			WHERE asset = $1 AND timeframe = $2
			ORDER BY timestamp DESC
			LIMIT $3
		) recent
		ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, asset, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list candles %s/%s: %w", asset, timeframe, err)
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan candle %s/%s: %w", asset, timeframe, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list candles rows %s/%s: %w", asset, timeframe, err)
	}
	return out, nil
}
