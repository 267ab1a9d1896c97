package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment variable overrides, and returns the
// final Config. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites
// the corresponding Config fields when a variable is set (i.e. not empty).
// This lets operators inject secrets and deploy-time overrides without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet / chain ──
	setStr(&cfg.Wallet.PrivateKey, "TRADER_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "TRADER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "TRADER_KEY_PASSWORD")
	setStr(&cfg.Chain.RPCURL, "ARBITRUM_RPC_URL")
	setInt(&cfg.Chain.ChainID, "CHAIN_ID")

	// ── GMX ──
	setBool(&cfg.GMX.TradingEnabled, "TRADING_ENABLED")
	setStr(&cfg.GMX.ReaderAddress, "GMX_READER_ADDRESS")
	setStr(&cfg.GMX.DataStoreAddress, "GMX_DATASTORE_ADDRESS")
	setStr(&cfg.GMX.ExchangeRouterAddr, "GMX_EXCHANGE_ROUTER_ADDRESS")
	setStr(&cfg.GMX.OrderVaultAddress, "GMX_ORDER_VAULT_ADDRESS")
	setStr(&cfg.GMX.WETHAddress, "GMX_WETH_ADDRESS")
	setStr(&cfg.GMX.USDCAddress, "GMX_USDC_ADDRESS")
	setStr(&cfg.GMX.ExecutionFeeFloorWei, "GMX_EXECUTION_FEE_WEI")
	setFloat64(&cfg.GMX.DefaultLeverage, "GMX_DEFAULT_LEVERAGE")
	setInt(&cfg.GMX.SlippageBps, "GMX_SLIPPAGE_BPS")
	setStringMap(&cfg.GMX.MarketAddresses, "GMX_MARKET_ADDRESSES")

	// ── Oracle ──
	setStringMap(&cfg.Oracle.Symbols, "PYTH_SYMBOLS")
	setStringMap(&cfg.Oracle.PriceIDs, "PYTH_PRICE_IDS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "DATABASE_URL")
	setStr(&cfg.Database.Host, "DATABASE_HOST")
	setInt(&cfg.Database.Port, "DATABASE_PORT")
	setStr(&cfg.Database.Database, "DATABASE_NAME")
	setStr(&cfg.Database.User, "DATABASE_USER")
	setStr(&cfg.Database.Password, "DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.MainLoopInterval, "SCHEDULER_MAIN_LOOP_INTERVAL")
	setDuration(&cfg.Scheduler.HealthLoopInterval, "SCHEDULER_HEALTH_LOOP_INTERVAL")
	setInt(&cfg.Scheduler.MaxRetries, "SCHEDULER_MAX_RETRIES")
	setFloat64(&cfg.Scheduler.RetryBackoffSeconds, "SCHEDULER_RETRY_BACKOFF_SECONDS")
	setInt(&cfg.Scheduler.ChainCacheTTLSeconds, "SCHEDULER_CHAIN_CACHE_TTL_SECONDS")
	setInt(&cfg.Scheduler.CBThreshold, "CIRCUIT_BREAKER_THRESHOLD")
	setInt(&cfg.Scheduler.CBCooldownSeconds, "CIRCUIT_BREAKER_COOLDOWN_SECONDS")
	setBool(&cfg.Scheduler.BackfillOnStartup, "BACKFILL_ON_STARTUP")
	setDuration(&cfg.Scheduler.TxConfirmTimeout, "TX_CONFIRM_TIMEOUT")
	setDuration(&cfg.Scheduler.TxPollInterval, "TX_POLL_INTERVAL")

	// ── Referral indexer ──
	setBool(&cfg.Referral.Enabled, "REFERRAL_INDEXER_ENABLED")
	setDuration(&cfg.Referral.IntervalSeconds, "REFERRAL_INDEXER_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setStringMap parses a comma-separated "key:value,key2:value2" environment
// variable into dst, the form used for GMX_MARKET_ADDRESSES and the Pyth
// identifier maps.
func setStringMap(dst *map[string]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	if len(out) > 0 {
		*dst = out
	}
}
