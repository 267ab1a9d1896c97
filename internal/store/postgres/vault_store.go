package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// VaultStore implements domain.VaultStore using PostgreSQL.
type VaultStore struct {
	pool *pgxpool.Pool
}

// NewVaultStore creates a new VaultStore backed by the given connection pool.
func NewVaultStore(pool *pgxpool.Pool) *VaultStore {
	return &VaultStore{pool: pool}
}

const vaultSelectCols = `address, strategy_id, status, check_interval, last_checked_at, created_at, updated_at`

func scanVaultRow(row pgx.Row) (domain.Vault, error) {
	var v domain.Vault
	var status, interval string
	if err := row.Scan(
		&v.Address, &v.StrategyID, &status, &interval,
		&v.LastCheckedAt, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return domain.Vault{}, err
	}
	v.Status = domain.VaultStatus(status)
	v.CheckInterval = domain.CheckInterval(interval)
	return v, nil
}

// Get retrieves a single vault by address.
func (s *VaultStore) Get(ctx context.Context, address string) (domain.Vault, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+vaultSelectCols+` FROM vaults WHERE address = $1`, address)
	v, err := scanVaultRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Vault{}, domain.ErrNotFound
		}
		return domain.Vault{}, fmt.Errorf("postgres: get vault %s: %w", address, err)
	}
	return v, nil
}

// ListActive returns every active vault joined to its linked strategy, the
// scheduler's main_loop query. A vault with no linked strategy is still
// returned (with a nil Strategy) so processVault can log and skip it rather
// than silently dropping it from the tick.
func (s *VaultStore) ListActive(ctx context.Context) ([]domain.VaultWithStrategy, error) {
	const query = `
		SELECT v.address, v.strategy_id, v.status, v.check_interval, v.last_checked_at, v.created_at, v.updated_at,
		       s.id, s.slug, s.name, s.type, s.asset, s.timeframe, s.artifact_path, s.stop_loss_pct, s.take_profit_pct, s.status
		FROM vaults v
		LEFT JOIN strategies s ON s.id = v.strategy_id
		WHERE v.status = 'active'
		ORDER BY v.address`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active vaults: %w", err)
	}
	defer rows.Close()

	var out []domain.VaultWithStrategy
	for rows.Next() {
		var v domain.Vault
		var vStatus, interval string
		var stratID *int64
		var slug, name, typ, asset, timeframe, artifactPath, stratStatus *string
		var stopLossPct, takeProfitPct *float64

		if err := rows.Scan(
			&v.Address, &v.StrategyID, &vStatus, &interval, &v.LastCheckedAt, &v.CreatedAt, &v.UpdatedAt,
			&stratID, &slug, &name, &typ, &asset, &timeframe, &artifactPath, &stopLossPct, &takeProfitPct, &stratStatus,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan active vault: %w", err)
		}
		v.Status = domain.VaultStatus(vStatus)
		v.CheckInterval = domain.CheckInterval(interval)

		vws := domain.VaultWithStrategy{Vault: v}
		if stratID != nil {
			vws.Strategy = &domain.Strategy{
				ID:            *stratID,
				Slug:          deref(slug),
				Name:          deref(name),
				Type:          deref(typ),
				Asset:         deref(asset),
				Timeframe:     deref(timeframe),
				ArtifactPath:  deref(artifactPath),
				StopLossPct:   derefF(stopLossPct),
				TakeProfitPct: derefF(takeProfitPct),
				Status:        domain.StrategyStatus(deref(stratStatus)),
			}
		}
		out = append(out, vws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active vaults rows: %w", err)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefF(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// Create inserts a new vault registration.
func (s *VaultStore) Create(ctx context.Context, v domain.Vault) error {
	const query = `
		INSERT INTO vaults (address, strategy_id, status, check_interval, last_checked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`
	_, err := s.pool.Exec(ctx, query, v.Address, v.StrategyID, string(v.Status), string(v.CheckInterval), v.LastCheckedAt)
	if err != nil {
		return fmt.Errorf("postgres: create vault %s: %w", v.Address, err)
	}
	return nil
}

// UpdateLastChecked stamps the vault's last_checked_at, unconditionally run
// at the end of every main_loop tick regardless of outcome.
func (s *VaultStore) UpdateLastChecked(ctx context.Context, address string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vaults SET last_checked_at = $2, updated_at = NOW() WHERE address = $1`, address, at)
	if err != nil {
		return fmt.Errorf("postgres: update last_checked_at for vault %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a vault between active and paused.
func (s *VaultStore) UpdateStatus(ctx context.Context, address string, status domain.VaultStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vaults SET status = $2, updated_at = NOW() WHERE address = $1`, address, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update status for vault %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Link assigns a strategy to a vault.
func (s *VaultStore) Link(ctx context.Context, address string, strategyID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vaults SET strategy_id = $2, updated_at = NOW() WHERE address = $1`, address, strategyID)
	if err != nil {
		return fmt.Errorf("postgres: link vault %s to strategy %d: %w", address, strategyID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
