package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// SignalLogStore implements domain.SignalLogStore using PostgreSQL.
type SignalLogStore struct {
	pool *pgxpool.Pool
}

// NewSignalLogStore creates a new SignalLogStore backed by the given connection pool.
func NewSignalLogStore(pool *pgxpool.Pool) *SignalLogStore {
	return &SignalLogStore{pool: pool}
}

const signalLogSelectCols = `id, vault_address, strategy_id, direction, confidence, size_pct,
	current_price, stop_price, take_price, asset, timeframe, strategy_slug, reason, created_at`

func scanSignalLogRows(rows pgx.Rows) ([]domain.SignalLog, error) {
	var out []domain.SignalLog
	for rows.Next() {
		var l domain.SignalLog
		if err := rows.Scan(
			&l.ID, &l.VaultAddress, &l.StrategyID,
			&l.Signal.Direction, &l.Signal.Confidence, &l.Signal.SizePct,
			&l.Signal.CurrentPrice, &l.Signal.StopPrice, &l.Signal.TakePrice,
			&l.Signal.Asset, &l.Signal.Timeframe, &l.Signal.StrategySlug, &l.Signal.Reason,
			&l.CreatedAt,
		); err != nil {
			return nil, err
		}
		l.Signal.CreatedAt = l.CreatedAt
		out = append(out, l)
	}
	return out, rows.Err()
}

// Create persists one signal log entry. Every main_loop tick that produces a
// signal logs it here unconditionally, whether or not it is actionable.
func (s *SignalLogStore) Create(ctx context.Context, l domain.SignalLog) error {
	const query = `
		INSERT INTO signal_logs (
			vault_address, strategy_id, direction, confidence, size_pct,
			current_price, stop_price, take_price, asset, timeframe, strategy_slug, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.pool.Exec(ctx, query,
		l.VaultAddress, l.StrategyID, l.Signal.Direction, l.Signal.Confidence, l.Signal.SizePct,
		l.Signal.CurrentPrice, l.Signal.StopPrice, l.Signal.TakePrice,
		l.Signal.Asset, l.Signal.Timeframe, l.Signal.StrategySlug, l.Signal.Reason, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create signal log for vault %s: %w", l.VaultAddress, err)
	}
	return nil
}

// ListByVault returns signal logs for a vault with pagination and optional
// time filtering.
func (s *SignalLogStore) ListByVault(ctx context.Context, vaultAddress string, opts domain.ListOpts) ([]domain.SignalLog, error) {
	query := `SELECT ` + signalLogSelectCols + ` FROM signal_logs WHERE vault_address = $1`
	args := []any{vaultAddress}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signal logs for vault %s: %w", vaultAddress, err)
	}
	defer rows.Close()

	out, err := scanSignalLogRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan signal logs for vault %s: %w", vaultAddress, err)
	}
	return out, nil
}
