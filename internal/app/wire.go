package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/atlasxyz/vaultrunner/internal/blob/s3"
	"github.com/atlasxyz/vaultrunner/internal/breaker"
	"github.com/atlasxyz/vaultrunner/internal/cache/redis"
	"github.com/atlasxyz/vaultrunner/internal/chainreader"
	"github.com/atlasxyz/vaultrunner/internal/config"
	"github.com/atlasxyz/vaultrunner/internal/crypto"
	"github.com/atlasxyz/vaultrunner/internal/domain"
	"github.com/atlasxyz/vaultrunner/internal/executor"
	"github.com/atlasxyz/vaultrunner/internal/feed"
	"github.com/atlasxyz/vaultrunner/internal/notify"
	"github.com/atlasxyz/vaultrunner/internal/scheduler"
	"github.com/atlasxyz/vaultrunner/internal/store/postgres"
	"github.com/atlasxyz/vaultrunner/internal/strategy"
)

// Dependencies bundles every concrete implementation the scheduler and the
// minimal HTTP surface need to operate. It is constructed by Wire and torn
// down by the returned cleanup function.
type Dependencies struct {
	Vaults     domain.VaultStore
	Strategies domain.StrategyStore
	Signals    domain.SignalLogStore
	Trades     domain.TradeRecordStore
	Snapshots  domain.SnapshotStore
	Candles    domain.CandleStore

	Chain    *chainreader.Reader
	Feed     *feed.Feed
	Registry *strategy.Registry
	Executor *executor.Executor
	Breaker  *breaker.Breaker
	Archiver domain.Archiver

	Scheduler *scheduler.Scheduler
	Notifier  *notify.Notifier
	Lock      domain.LockManager

	pgPool   pinger
	redisCli pinger
}

// pinger is the narrow interface the health handler's readiness probe needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// PostgresPool exposes the connection pool's Ping for the readiness probe.
func (d *Dependencies) PostgresPool() pinger { return d.pgPool }

// RedisClient exposes the Redis client's Ping for the readiness probe.
func (d *Dependencies) RedisClient() pinger { return d.redisCli }

// Wire constructs every dependency from the given configuration and returns
// them together with a cleanup function that releases resources on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.pgPool = pool
	deps.Vaults = postgres.NewVaultStore(pool)
	deps.Strategies = postgres.NewStrategyStore(pool)
	deps.Signals = postgres.NewSignalLogStore(pool)
	deps.Trades = postgres.NewTradeRecordStore(pool)
	deps.Snapshots = postgres.NewSnapshotStore(pool)
	deps.Candles = postgres.NewCandleStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.redisCli = redisClient

	priceCache := redis.NewPriceCache(redisClient)
	chainCache := redis.NewChainCache(redisClient)
	rpcLimiter := redis.NewRateLimiter(redisClient)
	leaderLock := redis.NewLockManager(redisClient)
	deps.Lock = leaderLock

	// --- Ethereum client ---
	ethClient, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ethclient: %w", err)
	}
	closers = append(closers, ethClient.Close)

	marketAddrs := make(map[string]common.Address, len(cfg.GMX.MarketAddresses))
	for asset, addr := range cfg.GMX.MarketAddresses {
		marketAddrs[asset] = common.HexToAddress(addr)
	}

	deps.Chain = chainreader.New(ethClient, chainCache, chainreader.Config{
		ReaderAddress:    common.HexToAddress(cfg.GMX.ReaderAddress),
		DataStoreAddress: common.HexToAddress(cfg.GMX.DataStoreAddress),
		MarketAddresses:  marketAddrs,
		CacheTTL:         time.Duration(cfg.Scheduler.ChainCacheTTLSeconds) * time.Second,
		MaxRetries:       cfg.Scheduler.MaxRetries,
		BackoffSeconds:   cfg.Scheduler.RetryBackoffSeconds,
		RateLimiter:      rpcLimiter,
	}, logger)

	// --- Market data feed ---
	benchmark := feed.NewBenchmarkClient(cfg.Benchmark.BaseURL)
	deps.Feed = feed.New(benchmark, deps.Chain, priceCache, deps.Candles, cfg.Benchmark.Assets, logger)

	// --- Strategy registry ---
	deps.Registry = buildRegistry()

	// --- Signer (only when trading is enabled) ---
	// Monitor mode never submits trades, whatever gmx.trading_enabled says.
	tradingEnabled := cfg.GMX.TradingEnabled && !strings.EqualFold(cfg.Mode, "monitor")
	var signer *crypto.Signer
	if tradingEnabled {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load signing key: %w", err)
		}
		signer, err = crypto.NewSigner(keyHex, cfg.Chain.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
	}

	feeFloor, ok := new(big.Int).SetString(cfg.GMX.ExecutionFeeFloorWei, 10)
	if !ok {
		cleanup()
		return nil, nil, fmt.Errorf("wire: gmx.execution_fee_wei %q is not a valid integer", cfg.GMX.ExecutionFeeFloorWei)
	}

	var execSigner executor.Signer
	if signer != nil {
		execSigner = signer
	}
	deps.Executor = executor.New(deps.Chain, ethClient, execSigner, executor.Config{
		TradingEnabled:        tradingEnabled,
		DefaultLeverage:       cfg.GMX.DefaultLeverage,
		SlippageBps:           cfg.GMX.SlippageBps,
		CollateralToken:       common.HexToAddress(cfg.GMX.USDCAddress),
		WETHAddress:           common.HexToAddress(cfg.GMX.WETHAddress),
		OrderVaultAddress:     common.HexToAddress(cfg.GMX.OrderVaultAddress),
		ExchangeRouterAddress: common.HexToAddress(cfg.GMX.ExchangeRouterAddr),
		ExecutionFeeFloorWei:  feeFloor,
		TxConfirmTimeout:      cfg.Scheduler.TxConfirmTimeout.Duration,
		TxPollInterval:        cfg.Scheduler.TxPollInterval.Duration,
	}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Circuit breaker ---
	brk := breaker.New(logger,
		breaker.WithThreshold(cfg.Scheduler.CBThreshold),
		breaker.WithCooldown(time.Duration(cfg.Scheduler.CBCooldownSeconds)*time.Second),
		breaker.WithNotifier(deps.Notifier),
	)
	deps.Breaker = brk

	// --- S3 archival ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Snapshots)
	}

	// --- Scheduler ---
	deps.Scheduler = scheduler.New(
		deps.Vaults, deps.Signals, deps.Trades, deps.Snapshots,
		deps.Chain, deps.Feed, deps.Registry, deps.Executor, brk,
		scheduler.Config{
			MainLoopInterval:       cfg.Scheduler.MainLoopInterval.Duration,
			HealthLoopInterval:     cfg.Scheduler.HealthLoopInterval.Duration,
			CandleLookback:         200,
			DefaultSizePct:         1.0,
			ReferralIndexerEnabled: cfg.Referral.Enabled,
		},
		logger,
	)

	return deps, cleanup, nil
}

// buildRegistry returns the statically-linked set of strategy
// implementations deployed in this binary. A strategy is "deployed" by
// registering it here and compiling it into the binary, never by reading a
// file path at runtime.
func buildRegistry() *strategy.Registry {
	reg := strategy.NewRegistry()
	reg.Register("trend-breakout-btc-1h", strategy.NewTrendBreakout(24, 0.5, strategy.Meta{
		Asset: "BTC", Timeframe: "1h", StopLossPct: 0.05, TakeProfitPct: 0.12,
	}))
	reg.Register("trend-breakout-eth-1h", strategy.NewTrendBreakout(24, 0.5, strategy.Meta{
		Asset: "ETH", Timeframe: "1h", StopLossPct: 0.06, TakeProfitPct: 0.14,
	}))
	reg.Register("mean-reversion-btc-1h", strategy.NewMeanReversion(20, 2.0, strategy.Meta{
		Asset: "BTC", Timeframe: "1h", StopLossPct: 0.04, TakeProfitPct: 0.08,
	}))
	return reg
}
