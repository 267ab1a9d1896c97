// Package scheduler is the heart of the system: a time-wheel over
// registered vaults that evaluates each due vault's strategy, reconciles
// the resulting signal against the vault's current on-chain position, and
// delegates execution to internal/executor. Three independent jobs share
// one errgroup: main_loop (per-vault trade ticks), snapshot_loop (hourly
// performance snapshots), and health_loop (observational), grounded on
// internal/app/modes.go's errgroup.WithContext fan-out.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/atlasxyz/vaultrunner/internal/domain"
	"github.com/atlasxyz/vaultrunner/internal/executor"
	"github.com/atlasxyz/vaultrunner/internal/strategy"
)

// ChainReader is the subset of chainreader.Reader the scheduler reads
// directly: current positions for the decision tree, plus the four reads
// snapshot_loop fires concurrently.
type ChainReader interface {
	Positions(ctx context.Context, vault common.Address) ([]domain.Position, error)
	TVL(ctx context.Context, vault common.Address) (float64, error)
	SharePrice(ctx context.Context, vault common.Address) (float64, error)
	DepositorCount(ctx context.Context, vault common.Address) (int, error)
}

// MarketDataFeed is the subset of feed.Feed the scheduler needs.
type MarketDataFeed interface {
	Candles(ctx context.Context, asset, timeframe string, limit int) ([]domain.Candle, error)
}

// StrategyRegistry is the subset of strategy.Registry the scheduler needs.
type StrategyRegistry interface {
	Get(slug string) (strategy.Strategy, error)
}

// TradeExecutor is the subset of executor.Executor the scheduler needs.
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, signal domain.Signal, vaultAddress string, sizeOverride float64) (executor.TradeOutcome, error)
	ExecuteClose(ctx context.Context, asset string, currentPrice, positionSizeUSD float64, vaultAddress string) (executor.TradeOutcome, error)
}

// Breaker is the subset of breaker.Breaker the scheduler needs.
type Breaker interface {
	Record(ctx context.Context, vault string, success bool)
	IsBroken(vault string) bool
}

// Config bundles the scheduler's tunables. Zero values are replaced with
// defaults in New.
type Config struct {
	MainLoopInterval   time.Duration
	HealthLoopInterval time.Duration
	CandleLookback     int
	// DefaultSizePct is the target TVL fraction assigned to an actionable
	// signal. Neither the strategy contract nor the decision tree carries a
	// per-signal sizing weight (GenerateSignals returns a bare direction
	// call), so the scheduler owns this knob; the executor's TVL×leverage
	// and collateral-balance caps still bound the final order size.
	DefaultSizePct float64
	// ReferralIndexerEnabled is surfaced as-is in health_loop's log line; the
	// referral indexer itself is out of scope here (see SPEC_FULL.md §6).
	ReferralIndexerEnabled bool
}

// Scheduler is the time-wheel over registered vaults.
type Scheduler struct {
	vaults    domain.VaultStore
	signals   domain.SignalLogStore
	trades    domain.TradeRecordStore
	snapshots domain.SnapshotStore

	chain    ChainReader
	feed     MarketDataFeed
	registry StrategyRegistry
	exec     TradeExecutor
	breaker  Breaker

	cfg    Config
	logger *slog.Logger

	// running is a single-slot semaphore: a tick that arrives while the
	// previous one is still processing vaults is skipped, not queued.
	running chan struct{}
}

// New constructs a Scheduler.
func New(
	vaults domain.VaultStore,
	signals domain.SignalLogStore,
	trades domain.TradeRecordStore,
	snapshots domain.SnapshotStore,
	chain ChainReader,
	feed MarketDataFeed,
	registry StrategyRegistry,
	exec TradeExecutor,
	brk Breaker,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	if cfg.MainLoopInterval <= 0 {
		cfg.MainLoopInterval = 60 * time.Second
	}
	if cfg.HealthLoopInterval <= 0 {
		cfg.HealthLoopInterval = 5 * time.Minute
	}
	if cfg.CandleLookback <= 0 {
		cfg.CandleLookback = 200
	}
	if cfg.DefaultSizePct <= 0 {
		cfg.DefaultSizePct = 1.0
	}
	return &Scheduler{
		vaults:    vaults,
		signals:   signals,
		trades:    trades,
		snapshots: snapshots,
		chain:     chain,
		feed:      feed,
		registry:  registry,
		exec:      exec,
		breaker:   brk,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "scheduler")),
		running:   make(chan struct{}, 1),
	}
}

// Run starts all three jobs under a shared errgroup and blocks until ctx is
// cancelled or one job returns a non-nil error.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.MainLoop(ctx) })
	g.Go(func() error { return s.SnapshotLoop(ctx) })
	g.Go(func() error { return s.HealthLoop(ctx) })
	return g.Wait()
}
