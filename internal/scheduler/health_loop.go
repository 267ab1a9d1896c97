package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// CandleBufferSizer reports the live ring buffer size per asset, for
// observational logging only.
type CandleBufferSizer interface {
	BufferSizes() map[string]int
}

// HealthLoop logs job-level observability every HealthLoopInterval. It takes
// no action on what it observes — purely a heartbeat for operators.
func (s *Scheduler) HealthLoop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "health loop started", slog.Duration("interval", s.cfg.HealthLoopInterval))

	ticker := time.NewTicker(s.cfg.HealthLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "health loop stopped")
			return nil
		case <-ticker.C:
			s.runHealthTick(ctx)
		}
	}
}

func (s *Scheduler) runHealthTick(ctx context.Context) {
	vaults, err := s.vaults.ListActive(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "health loop: listing active vaults failed", slog.String("error", err.Error()))
		return
	}

	var bufferSizes map[string]int
	if sizer, ok := s.feed.(CandleBufferSizer); ok {
		bufferSizes = sizer.BufferSizes()
	}

	s.logger.InfoContext(ctx, "health check",
		slog.Int("active_vaults", len(vaults)),
		slog.Any("candle_buffer_sizes", bufferSizes),
		slog.Bool("referral_indexer_enabled", s.cfg.ReferralIndexerEnabled),
	)
}
