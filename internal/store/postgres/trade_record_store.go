package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// TradeRecordStore implements domain.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *pgxpool.Pool
}

// NewTradeRecordStore creates a new TradeRecordStore backed by the given connection pool.
func NewTradeRecordStore(pool *pgxpool.Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

const tradeRecordSelectCols = `id, vault_address, strategy_id, side, asset, size, entry_price,
	result, tx_hash, error_message, timestamp, trade_num`

func scanTradeRecordRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		var side, result string
		if err := rows.Scan(
			&r.ID, &r.VaultAddress, &r.StrategyID, &side, &r.Asset, &r.Size, &r.EntryPrice,
			&result, &r.TxHash, &r.ErrorMessage, &r.Timestamp, &r.TradeNum,
		); err != nil {
			return nil, err
		}
		r.Side = domain.TradeSide(side)
		r.Result = domain.TradeResultKind(result)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Create persists a trade attempt's outcome. TradeNum must already be
// allocated via NextTradeNum in the same logical tick.
func (s *TradeRecordStore) Create(ctx context.Context, rec domain.TradeRecord) (domain.TradeRecord, error) {
	const query = `
		INSERT INTO trade_records (
			vault_address, strategy_id, side, asset, size, entry_price,
			result, tx_hash, error_message, timestamp, trade_num
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	err := s.pool.QueryRow(ctx, query,
		rec.VaultAddress, rec.StrategyID, string(rec.Side), rec.Asset, rec.Size, rec.EntryPrice,
		string(rec.Result), rec.TxHash, rec.ErrorMessage, rec.Timestamp, rec.TradeNum,
	).Scan(&rec.ID)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("postgres: create trade record for vault %s: %w", rec.VaultAddress, err)
	}
	return rec, nil
}

// NextTradeNum allocates the next gap-free trade_num for a vault: the
// current max plus one, or 1 if the vault has no trade history yet.
func (s *TradeRecordStore) NextTradeNum(ctx context.Context, vaultAddress string) (int64, error) {
	var max *int64
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(trade_num) FROM trade_records WHERE vault_address = $1`, vaultAddress).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("postgres: next trade_num for vault %s: %w", vaultAddress, err)
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

// ListByVault returns trade records for a vault with pagination and optional
// time filtering.
func (s *TradeRecordStore) ListByVault(ctx context.Context, vaultAddress string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeRecordSelectCols + ` FROM trade_records WHERE vault_address = $1`
	args := []any{vaultAddress}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"

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
		return nil, fmt.Errorf("postgres: list trade records for vault %s: %w", vaultAddress, err)
	}
	defer rows.Close()

	out, err := scanTradeRecordRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade records for vault %s: %w", vaultAddress, err)
	}
	return out, nil
}
