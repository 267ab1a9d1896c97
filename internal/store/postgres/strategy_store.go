package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// StrategyStore implements domain.StrategyStore using PostgreSQL.
type StrategyStore struct {
	pool *pgxpool.Pool
}

// NewStrategyStore creates a new StrategyStore backed by the given connection pool.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

const strategySelectCols = `id, slug, name, type, asset, timeframe, artifact_path, stop_loss_pct, take_profit_pct, status`

func scanStrategyRow(row pgx.Row) (domain.Strategy, error) {
	var s domain.Strategy
	var status string
	if err := row.Scan(
		&s.ID, &s.Slug, &s.Name, &s.Type, &s.Asset, &s.Timeframe,
		&s.ArtifactPath, &s.StopLossPct, &s.TakeProfitPct, &status,
	); err != nil {
		return domain.Strategy{}, err
	}
	s.Status = domain.StrategyStatus(status)
	return s, nil
}

// Get retrieves a strategy by its numeric ID.
func (s *StrategyStore) Get(ctx context.Context, id int64) (domain.Strategy, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+strategySelectCols+` FROM strategies WHERE id = $1`, id)
	strat, err := scanStrategyRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Strategy{}, domain.ErrNotFound
		}
		return domain.Strategy{}, fmt.Errorf("postgres: get strategy %d: %w", id, err)
	}
	return strat, nil
}

// GetBySlug retrieves a strategy by its unique slug.
func (s *StrategyStore) GetBySlug(ctx context.Context, slug string) (domain.Strategy, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+strategySelectCols+` FROM strategies WHERE slug = $1`, slug)
	strat, err := scanStrategyRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Strategy{}, domain.ErrNotFound
		}
		return domain.Strategy{}, fmt.Errorf("postgres: get strategy by slug %s: %w", slug, err)
	}
	return strat, nil
}

// List returns every registered strategy.
func (s *StrategyStore) List(ctx context.Context) ([]domain.Strategy, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+strategySelectCols+` FROM strategies ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list strategies: %w", err)
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		var strat domain.Strategy
		var status string
		if err := rows.Scan(
			&strat.ID, &strat.Slug, &strat.Name, &strat.Type, &strat.Asset, &strat.Timeframe,
			&strat.ArtifactPath, &strat.StopLossPct, &strat.TakeProfitPct, &status,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan strategy: %w", err)
		}
		strat.Status = domain.StrategyStatus(status)
		out = append(out, strat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list strategies rows: %w", err)
	}
	return out, nil
}

// Create inserts a new strategy definition and returns its assigned ID.
func (s *StrategyStore) Create(ctx context.Context, strat domain.Strategy) (int64, error) {
	const query = `
		INSERT INTO strategies (slug, name, type, asset, timeframe, artifact_path, stop_loss_pct, take_profit_pct, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, query,
		strat.Slug, strat.Name, strat.Type, strat.Asset, strat.Timeframe,
		strat.ArtifactPath, strat.StopLossPct, strat.TakeProfitPct, string(strat.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create strategy %s: %w", strat.Slug, err)
	}
	return id, nil
}

// HealArtifactPath repoints a strategy's artifact_path, backing the
// registry's self-healing reload when an artifact moves on disk.
func (s *StrategyStore) HealArtifactPath(ctx context.Context, slug, path string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategies SET artifact_path = $2 WHERE slug = $1`, slug, path)
	if err != nil {
		return fmt.Errorf("postgres: heal artifact path for strategy %s: %w", slug, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
