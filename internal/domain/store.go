package domain

import (
	"context"
	"time"
)

// ListOpts bounds a listing query.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// VaultStore is the Persistence Gateway's registry surface. It is the only
// multi-table read in the scheduler's hot path (vault join strategy).
type VaultStore interface {
	Get(ctx context.Context, address string) (Vault, error)
	ListActive(ctx context.Context) ([]VaultWithStrategy, error)
	Create(ctx context.Context, v Vault) error
	UpdateLastChecked(ctx context.Context, address string, at time.Time) error
	UpdateStatus(ctx context.Context, address string, status VaultStatus) error
	Link(ctx context.Context, address string, strategyID int64) error
}

// StrategyStore manages strategy registry metadata.
type StrategyStore interface {
	Get(ctx context.Context, id int64) (Strategy, error)
	GetBySlug(ctx context.Context, slug string) (Strategy, error)
	List(ctx context.Context) ([]Strategy, error)
	Create(ctx context.Context, s Strategy) (int64, error)
	HealArtifactPath(ctx context.Context, slug, path string) error
}

// SignalLogStore persists the unconditional per-tick signal audit trail.
type SignalLogStore interface {
	Create(ctx context.Context, log SignalLog) error
	ListByVault(ctx context.Context, vaultAddress string, opts ListOpts) ([]SignalLog, error)
}

// TradeRecordStore persists trade outcomes and enforces the gap-free
// trade_num invariant.
type TradeRecordStore interface {
	Create(ctx context.Context, rec TradeRecord) (TradeRecord, error)
	NextTradeNum(ctx context.Context, vaultAddress string) (int64, error)
	ListByVault(ctx context.Context, vaultAddress string, opts ListOpts) ([]TradeRecord, error)
}

// SnapshotStore persists hourly PerformanceSnapshots.
type SnapshotStore interface {
	Create(ctx context.Context, snap PerformanceSnapshot) error
	Latest(ctx context.Context, vaultAddress string) (PerformanceSnapshot, error)
	ListOlderThan(ctx context.Context, before time.Time) ([]PerformanceSnapshot, error)
}

// CandleStore persists OHLCV candles for timeframes coarser than the live
// ring buffer, and the 1-minute base candles the ring buffer is merged
// against. No dedup constraint is required by the core (see SPEC_FULL.md
// §9) — repeated backfills may insert duplicates.
type CandleStore interface {
	Insert(ctx context.Context, asset, timeframe string, c Candle) error
	List(ctx context.Context, asset, timeframe string, limit int) ([]Candle, error)
}
