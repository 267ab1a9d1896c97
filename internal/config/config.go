// Package config defines the top-level configuration for the vault
// execution scheduler and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by unprefixed environment
// variables such as TRADING_ENABLED and MODE (see loader.go).
type Config struct {
	Wallet      WalletConfig      `toml:"wallet"`
	Chain       ChainConfig       `toml:"chain"`
	GMX         GMXConfig         `toml:"gmx"`
	Oracle      OracleConfig      `toml:"oracle"`
	Benchmark   BenchmarkConfig   `toml:"benchmark"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Referral    ReferralConfig    `toml:"referral"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// WalletConfig holds the trader signing key, either as a raw hex string or
// as a path to an encrypted key file (see internal/crypto.LoadKey).
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds chain RPC and id parameters. Chain id is strictly
// configuration-driven per SPEC_FULL.md §9 — never hardcoded.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int    `toml:"chain_id"`
}

// GMXConfig holds GMX-protocol-specific parameters consumed by the order
// builder and trade executor.
type GMXConfig struct {
	ReaderAddress        string            `toml:"reader_address"`
	DataStoreAddress     string            `toml:"datastore_address"`
	ExchangeRouterAddr   string            `toml:"exchange_router_address"`
	OrderVaultAddress    string            `toml:"order_vault_address"`
	WETHAddress          string            `toml:"weth_address"`
	USDCAddress          string            `toml:"usdc_address"`
	ExecutionFeeFloorWei string            `toml:"execution_fee_wei"`
	DefaultLeverage      float64           `toml:"default_leverage"`
	SlippageBps          int               `toml:"slippage_bps"`
	MarketAddresses      map[string]string `toml:"market_addresses"`
	TradingEnabled       bool              `toml:"trading_enabled"`
}

// OracleConfig holds price-feed identifiers for the market data feed's
// oracle fallback path.
type OracleConfig struct {
	Symbols   map[string]string `toml:"symbols"`
	PriceIDs  map[string]string `toml:"price_ids"`
	PollEvery duration          `toml:"poll_every"`
}

// BenchmarkConfig holds the market data feed's benchmark price source —
// the primary source ring buffers are filled from, ahead of the on-chain
// oracle fallback.
type BenchmarkConfig struct {
	BaseURL   string   `toml:"base_url"`
	StreamURL string   `toml:"stream_url"`
	Assets    []string `toml:"assets"`
	PollEvery duration `toml:"poll_every"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for snapshot
// archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Enabled        bool   `toml:"enabled"`
}

// SchedulerConfig holds the scheduler's tunables.
type SchedulerConfig struct {
	MainLoopInterval       duration `toml:"main_loop_interval"`
	HealthLoopInterval     duration `toml:"health_loop_interval"`
	MaxRetries             int      `toml:"max_retries"`
	RetryBackoffSeconds    float64  `toml:"retry_backoff_seconds"`
	ChainCacheTTLSeconds   int      `toml:"chain_cache_ttl_seconds"`
	CBThreshold            int      `toml:"circuit_breaker_threshold"`
	CBCooldownSeconds      int      `toml:"circuit_breaker_cooldown_seconds"`
	BackfillOnStartup      bool     `toml:"backfill_on_startup"`
	TxConfirmTimeout       duration `toml:"tx_confirm_timeout"`
	TxPollInterval         duration `toml:"tx_poll_interval"`
}

// ReferralConfig gates the referral event indexer's scheduling hook. Its
// internals are out of scope for this module; only the registration toggle
// and poll interval are modeled.
type ReferralConfig struct {
	Enabled         bool     `toml:"enabled"`
	IntervalSeconds duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the minimal retained HTTP surface (health + manual
// trigger only; the full API is an external collaborator per SPEC_FULL.md
// §1).
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials, used for
// circuit-breaker trip alerts.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID: 42161,
		},
		GMX: GMXConfig{
			ExecutionFeeFloorWei: "100000000000000",
			DefaultLeverage:      5.0,
			SlippageBps:          50,
			MarketAddresses:      map[string]string{},
			TradingEnabled:       true,
		},
		Oracle: OracleConfig{
			Symbols:   map[string]string{},
			PriceIDs:  map[string]string{},
			PollEvery: duration{5 * time.Second},
		},
		Benchmark: BenchmarkConfig{
			Assets:    []string{"BTC", "ETH"},
			PollEvery: duration{10 * time.Second},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "vaultrunner",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "vaultrunner-snapshots",
			UseSSL:         false,
			ForcePathStyle: true,
			Enabled:        false,
		},
		Scheduler: SchedulerConfig{
			MainLoopInterval:     duration{60 * time.Second},
			HealthLoopInterval:   duration{5 * time.Minute},
			MaxRetries:           2,
			RetryBackoffSeconds:  0.5,
			ChainCacheTTLSeconds: 300,
			CBThreshold:          5,
			CBCooldownSeconds:    3600,
			BackfillOnStartup:    false,
			TxConfirmTimeout:     duration{120 * time.Second},
			TxPollInterval:       duration{2 * time.Second},
		},
		Referral: ReferralConfig{
			Enabled:         false,
			IntervalSeconds: duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"circuit_breaker_tripped", "trade_failed"},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":     true, // runs the full scheduler (main/snapshot/health loops)
	"monitor": true, // read-only: no trades are executed
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.ToLower(c.Mode) == "run" && c.GMX.TradingEnabled {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: private_key or encrypted_key_path is required when trading is enabled")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	if c.GMX.DefaultLeverage <= 0 {
		errs = append(errs, "gmx: default_leverage must be > 0")
	}
	if c.GMX.SlippageBps < 0 {
		errs = append(errs, "gmx: slippage_bps must be >= 0")
	}

	if c.Benchmark.BaseURL == "" {
		errs = append(errs, "benchmark: base_url must not be empty")
	}
	if len(c.Benchmark.Assets) == 0 {
		errs = append(errs, "benchmark: assets must not be empty")
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	if c.Scheduler.CBThreshold < 1 {
		errs = append(errs, "scheduler: circuit_breaker_threshold must be >= 1")
	}
	if c.Scheduler.CBCooldownSeconds < 1 {
		errs = append(errs, "scheduler: circuit_breaker_cooldown_seconds must be >= 1")
	}
	if c.Scheduler.MaxRetries < 0 {
		errs = append(errs, "scheduler: max_retries must be >= 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
