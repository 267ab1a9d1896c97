package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atlasxyz/vaultrunner/internal/domain"
	"github.com/atlasxyz/vaultrunner/internal/executor"
)

// MainLoop runs the per-vault trade tick on a fixed interval until ctx is
// cancelled. A tick that arrives while the previous one is still processing
// vaults is skipped, matching the teacher's non-blocking-channel-send idiom
// rather than queuing the overrun.
func (s *Scheduler) MainLoop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "main loop started", slog.Duration("interval", s.cfg.MainLoopInterval))

	s.runMainLoopTick(ctx)

	ticker := time.NewTicker(s.cfg.MainLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "main loop stopped")
			return nil
		case <-ticker.C:
			s.runMainLoopTick(ctx)
		}
	}
}

func (s *Scheduler) runMainLoopTick(ctx context.Context) {
	select {
	case s.running <- struct{}{}:
	default:
		s.logger.WarnContext(ctx, "main loop tick skipped: previous tick still in flight")
		return
	}
	defer func() { <-s.running }()

	vaults, err := s.vaults.ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "main loop: listing active vaults failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, v := range vaults {
		if !dueForCheck(v, now) {
			continue
		}
		s.processVault(ctx, v)
	}
}

func dueForCheck(v domain.VaultWithStrategy, now time.Time) bool {
	if v.LastCheckedAt == nil {
		return true
	}
	interval := time.Duration(v.CheckInterval.Seconds()) * time.Second
	return now.Sub(*v.LastCheckedAt) >= interval
}

// processVault runs one full tick for a single vault: load strategy,
// generate a signal, persist it unconditionally, reconcile it against the
// vault's current position, execute, and record the outcome. A panic
// anywhere in this path is recovered, logged with the vault address, and
// counted as a breaker failure so a misbehaving strategy can't take down
// the whole loop; processing then continues to the next vault.
func (s *Scheduler) processVault(ctx context.Context, v domain.VaultWithStrategy) {
	log := s.logger.With(slog.String("vault", v.Address))

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "panic processing vault", slog.Any("panic", r))
			s.breaker.Record(ctx, v.Address, false)
		}
	}()

	defer func() {
		if err := s.vaults.UpdateLastChecked(ctx, v.Address, time.Now().UTC()); err != nil {
			log.WarnContext(ctx, "failed updating last_checked_at", slog.String("error", err.Error()))
		}
	}()

	if s.breaker.IsBroken(v.Address) {
		log.DebugContext(ctx, "vault paused by circuit breaker, skipping tick")
		return
	}

	if v.Strategy == nil {
		log.WarnContext(ctx, "vault has no linked strategy, skipping tick")
		return
	}

	strat, err := s.registry.Get(v.Strategy.Slug)
	if err != nil {
		log.ErrorContext(ctx, "strategy lookup failed",
			slog.String("slug", v.Strategy.Slug), slog.String("error", err.Error()))
		return
	}
	meta := strat.Meta()

	candles, err := s.feed.Candles(ctx, meta.Asset, meta.Timeframe, s.cfg.CandleLookback)
	if err != nil {
		log.ErrorContext(ctx, "candle fetch failed", slog.String("error", err.Error()))
		return
	}
	if len(candles) == 0 {
		log.WarnContext(ctx, "no candle history available yet, skipping tick")
		return
	}

	calls, err := strat.GenerateSignals(candles)
	if err != nil {
		log.ErrorContext(ctx, "signal generation failed", slog.String("error", err.Error()))
		return
	}
	if len(calls) != len(candles) || len(calls) == 0 {
		log.ErrorContext(ctx, "strategy returned malformed signal slice",
			slog.Int("candles", len(candles)), slog.Int("signals", len(calls)))
		return
	}

	desiredDir := calls[len(calls)-1]
	last := candles[len(candles)-1]

	sig := domain.Signal{
		Direction:    desiredDir,
		SizePct:      sizePctFor(desiredDir, s.cfg.DefaultSizePct),
		CurrentPrice: last.Close,
		Asset:        meta.Asset,
		Timeframe:    meta.Timeframe,
		StrategySlug: v.Strategy.Slug,
		CreatedAt:    time.Now().UTC(),
	}

	s.logSignal(ctx, v, sig)

	positions, err := s.chain.Positions(ctx, common.HexToAddress(v.Address))
	if err != nil {
		log.ErrorContext(ctx, "position read failed", slog.String("error", err.Error()))
		return
	}
	assetPositions := filterByAsset(positions, meta.Asset)
	currentDir := domain.NetDirection(assetPositions)

	action := executor.Decide(desiredDir, currentDir, sig.IsActionable())
	if action == executor.ActionNoop {
		return
	}

	s.runAction(ctx, v, sig, action, domain.NetSizeUSD(assetPositions))
}

func sizePctFor(direction int8, defaultPct float64) float64 {
	if direction == 0 {
		return 0
	}
	return defaultPct
}

func filterByAsset(positions []domain.Position, asset string) []domain.Position {
	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.Asset == asset {
			out = append(out, p)
		}
	}
	return out
}

func (s *Scheduler) logSignal(ctx context.Context, v domain.VaultWithStrategy, sig domain.Signal) {
	entry := domain.SignalLog{
		VaultAddress: v.Address,
		StrategyID:   v.StrategyID,
		Signal:       sig,
		CreatedAt:    sig.CreatedAt,
	}
	if err := s.signals.Create(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "signal log persist failed",
			slog.String("vault", v.Address), slog.String("error", err.Error()))
	}
}

// runAction executes the action Decide chose, recording a TradeRecord and
// updating the breaker for every trade attempt it makes. A close leg that
// fails aborts before the open leg is attempted, per the close-then-open
// contract.
func (s *Scheduler) runAction(ctx context.Context, v domain.VaultWithStrategy, sig domain.Signal, action executor.Action, currentPositionSizeUSD float64) {
	log := s.logger.With(slog.String("vault", v.Address), slog.String("action", string(action)))

	switch action {
	case executor.ActionClose:
		s.executeCloseAndRecord(ctx, v, sig, currentPositionSizeUSD)

	case executor.ActionOpen:
		s.executeTradeAndRecord(ctx, v, sig)

	case executor.ActionCloseThenOpen:
		outcome := s.executeCloseAndRecord(ctx, v, sig, currentPositionSizeUSD)
		if !outcome.Success {
			log.WarnContext(ctx, "close leg failed, aborting open leg")
			return
		}
		s.executeTradeAndRecord(ctx, v, sig)

	default:
		log.WarnContext(ctx, "unhandled action")
	}
}

func (s *Scheduler) executeTradeAndRecord(ctx context.Context, v domain.VaultWithStrategy, sig domain.Signal) executor.TradeOutcome {
	outcome, err := s.exec.ExecuteTrade(ctx, sig, v.Address, 0)
	return s.recordOutcome(ctx, v, sig, outcome, err)
}

func (s *Scheduler) executeCloseAndRecord(ctx context.Context, v domain.VaultWithStrategy, sig domain.Signal, positionSizeUSD float64) executor.TradeOutcome {
	outcome, err := s.exec.ExecuteClose(ctx, sig.Asset, sig.CurrentPrice, positionSizeUSD, v.Address)
	closeSig := sig
	closeSig.Direction = 0
	return s.recordOutcome(ctx, v, closeSig, outcome, err)
}

func (s *Scheduler) recordOutcome(ctx context.Context, v domain.VaultWithStrategy, sig domain.Signal, outcome executor.TradeOutcome, err error) executor.TradeOutcome {
	log := s.logger.With(slog.String("vault", v.Address), slog.String("direction", sig.DirectionString()))

	if executor.CountsTowardBreaker(err) {
		s.breaker.Record(ctx, v.Address, false)
	} else if err == nil {
		s.breaker.Record(ctx, v.Address, true)
	}

	rec := domain.TradeRecord{
		VaultAddress: v.Address,
		StrategyID:   v.StrategyID,
		Side:         tradeSideFor(sig.Direction),
		Asset:        sig.Asset,
		Size:         outcome.Size,
		EntryPrice:   outcome.EntryPrice,
		Timestamp:    outcome.Timestamp,
	}
	if outcome.Success {
		rec.Result = domain.TradeResultSuccess
		rec.TxHash = outcome.TxHash
	} else {
		rec.Result = domain.TradeResultFailed
		rec.TxHash = outcome.TxHash
		if outcome.Error != nil {
			msg := outcome.Error.Error()
			rec.ErrorMessage = &msg
		}
	}

	num, numErr := s.trades.NextTradeNum(ctx, v.Address)
	if numErr != nil {
		log.ErrorContext(ctx, "trade_num allocation failed", slog.String("error", numErr.Error()))
	} else {
		rec.TradeNum = num
	}

	if _, createErr := s.trades.Create(ctx, rec); createErr != nil {
		log.ErrorContext(ctx, "trade record persist failed", slog.String("error", createErr.Error()))
	}

	return outcome
}

func tradeSideFor(direction int8) domain.TradeSide {
	switch {
	case direction > 0:
		return domain.TradeSideLong
	case direction < 0:
		return domain.TradeSideShort
	default:
		return domain.TradeSideNeutral
	}
}
