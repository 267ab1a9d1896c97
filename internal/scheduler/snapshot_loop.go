package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// SnapshotLoop fires at the top of every hour, walking every active vault
// and persisting a PerformanceSnapshot. The first fire is aligned to the
// next hour boundary via a one-shot time.Timer (the teacher's stack has no
// cron library), then a time.Ticker(1*time.Hour) takes over.
func (s *Scheduler) SnapshotLoop(ctx context.Context) error {
	wait := untilNextHour(time.Now().UTC())
	s.logger.InfoContext(ctx, "snapshot loop started", slog.Duration("first_fire_in", wait))

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
		s.runSnapshotTick(ctx)
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "snapshot loop stopped")
			return nil
		case <-ticker.C:
			s.runSnapshotTick(ctx)
		}
	}
}

func untilNextHour(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next.Sub(now)
}

func (s *Scheduler) runSnapshotTick(ctx context.Context) {
	vaults, err := s.vaults.ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "snapshot loop: listing active vaults failed", slog.String("error", err.Error()))
		return
	}

	for _, v := range vaults {
		s.snapshotVault(ctx, v)
	}
}

// vaultReads are the snapshot_loop's four mutually independent on-chain
// reads — the one point in the system where true intra-job parallelism is
// sanctioned, since these reads share no state and each is I/O-bound.
type vaultReads struct {
	positions      []domain.Position
	tvl            float64
	sharePrice     float64
	depositorCount int
}

func (s *Scheduler) snapshotVault(ctx context.Context, v domain.VaultWithStrategy) {
	log := s.logger.With(slog.String("vault", v.Address))
	addr := common.HexToAddress(v.Address)

	var reads vaultReads
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		positions, err := s.chain.Positions(gctx, addr)
		if err != nil {
			return err
		}
		reads.positions = positions
		return nil
	})
	g.Go(func() error {
		tvl, err := s.chain.TVL(gctx, addr)
		if err != nil {
			return err
		}
		reads.tvl = tvl
		return nil
	})
	g.Go(func() error {
		sharePrice, err := s.chain.SharePrice(gctx, addr)
		if err != nil {
			return err
		}
		reads.sharePrice = sharePrice
		return nil
	})
	g.Go(func() error {
		count, err := s.chain.DepositorCount(gctx, addr)
		if err != nil {
			return err
		}
		reads.depositorCount = count
		return nil
	})

	if err := g.Wait(); err != nil {
		log.ErrorContext(ctx, "snapshot: chain read failed", slog.String("error", err.Error()))
		return
	}

	var unrealized float64
	for _, p := range reads.positions {
		unrealized += p.UnrealizedPnL
	}

	snap := domain.PerformanceSnapshot{
		VaultAddress:   v.Address,
		Timestamp:      time.Now().UTC(),
		TVL:            reads.tvl,
		SharePrice:     reads.sharePrice,
		DepositorCount: reads.depositorCount,
		Positions:      reads.positions,
		UnrealizedPnL:  unrealized,
	}

	if err := s.snapshots.Create(ctx, snap); err != nil {
		log.ErrorContext(ctx, "snapshot persist failed", slog.String("error", err.Error()))
	}
}
