// Package app wires together every dependency (stores, caches, blob
// storage, chain reader, executor, scheduler, and the minimal HTTP surface)
// and runs the vault execution scheduler until its context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlasxyz/vaultrunner/internal/config"
	"github.com/atlasxyz/vaultrunner/internal/server"
	"github.com/atlasxyz/vaultrunner/internal/server/handler"
)

// schedulerLeaderLockKey is the fixed advisory-lock key guarding against two
// vaultrunner processes pointed at the same database both running the
// scheduler against the same vault set.
const schedulerLeaderLockKey = "scheduler:leader"

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the market data feed, the scheduler's
// three jobs, and (if enabled) the minimal HTTP surface, all under one
// errgroup, and blocks until the context is cancelled or any goroutine
// returns an error.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if a.cfg.Scheduler.BackfillOnStartup {
		a.logger.InfoContext(ctx, "backfill_on_startup set, but candle backfill is an external-collaborator CLI; skipping in-process backfill")
	}

	lockTTL := 2 * a.cfg.Scheduler.MainLoopInterval.Duration
	unlock, err := deps.Lock.Acquire(ctx, schedulerLeaderLockKey, lockTTL)
	if err != nil {
		return fmt.Errorf("app: acquire scheduler leader lock: %w", err)
	}
	a.closers = append(a.closers, unlock)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Feed.StartPolling(ctx, a.cfg.Benchmark.PollEvery.Duration)
	})

	g.Go(func() error {
		return deps.Scheduler.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		}, server.Handlers{
			Health:  handler.NewHealthHandler(deps.PostgresPool(), deps.RedisClient(), a.logger),
			Trigger: handler.NewTriggerHandler(deps.Scheduler, a.logger),
		}, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
