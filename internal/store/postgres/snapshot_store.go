package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Positions
// are stored as a JSONB array — they are derived, read-only state, never
// queried column-by-column, so there is no benefit to normalizing them into
// their own table.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotSelectCols = `id, vault_address, timestamp, tvl, share_price, depositor_count, positions, unrealized_pnl`

func scanSnapshotRow(row pgx.Row) (domain.PerformanceSnapshot, error) {
	var snap domain.PerformanceSnapshot
	var positionsJSON []byte
	if err := row.Scan(
		&snap.ID, &snap.VaultAddress, &snap.Timestamp, &snap.TVL, &snap.SharePrice,
		&snap.DepositorCount, &positionsJSON, &snap.UnrealizedPnL,
	); err != nil {
		return domain.PerformanceSnapshot{}, err
	}
	if len(positionsJSON) > 0 {
		if err := json.Unmarshal(positionsJSON, &snap.Positions); err != nil {
			return domain.PerformanceSnapshot{}, fmt.Errorf("unmarshal snapshot positions: %w", err)
		}
	}
	return snap, nil
}

// Create persists one hourly PerformanceSnapshot.
func (s *SnapshotStore) Create(ctx context.Context, snap domain.PerformanceSnapshot) error {
	positionsJSON, err := json.Marshal(snap.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot positions for vault %s: %w", snap.VaultAddress, err)
	}

	const query = `
		INSERT INTO performance_snapshots (vault_address, timestamp, tvl, share_price, depositor_count, positions, unrealized_pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.pool.Exec(ctx, query,
		snap.VaultAddress, snap.Timestamp, snap.TVL, snap.SharePrice, snap.DepositorCount, positionsJSON, snap.UnrealizedPnL)
	if err != nil {
		return fmt.Errorf("postgres: create snapshot for vault %s: %w", snap.VaultAddress, err)
	}
	return nil
}

// Latest returns the most recent snapshot for a vault.
func (s *SnapshotStore) Latest(ctx context.Context, vaultAddress string) (domain.PerformanceSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotSelectCols+` FROM performance_snapshots WHERE vault_address = $1 ORDER BY timestamp DESC LIMIT 1`,
		vaultAddress)
	snap, err := scanSnapshotRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PerformanceSnapshot{}, domain.ErrNotFound
		}
		return domain.PerformanceSnapshot{}, fmt.Errorf("postgres: latest snapshot for vault %s: %w", vaultAddress, err)
	}
	return snap, nil
}

// ListOlderThan returns every snapshot older than the given time, for the
// blob archiver to pick up. The rows stay in the hot store.
func (s *SnapshotStore) ListOlderThan(ctx context.Context, before time.Time) ([]domain.PerformanceSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotSelectCols+` FROM performance_snapshots WHERE timestamp < $1 ORDER BY timestamp ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots older than %s: %w", before, err)
	}
	defer rows.Close()

	var out []domain.PerformanceSnapshot
	for rows.Next() {
		var snap domain.PerformanceSnapshot
		var positionsJSON []byte
		if err := rows.Scan(
			&snap.ID, &snap.VaultAddress, &snap.Timestamp, &snap.TVL, &snap.SharePrice,
			&snap.DepositorCount, &positionsJSON, &snap.UnrealizedPnL,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		if len(positionsJSON) > 0 {
			if err := json.Unmarshal(positionsJSON, &snap.Positions); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal snapshot positions: %w", err)
			}
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots rows: %w", err)
	}
	return out, nil
}
