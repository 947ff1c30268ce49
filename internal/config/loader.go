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
// built-in defaults, applies CONVEXBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CONVEXBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.TickInterval, "CONVEXBOT_ENGINE_TICK_INTERVAL")
	setInt(&cfg.Engine.MaxPositions, "CONVEXBOT_ENGINE_MAX_POSITIONS")
	setFloat64(&cfg.Engine.ScoutSizeSOL, "CONVEXBOT_ENGINE_SCOUT_SIZE_SOL")
	setFloat64(&cfg.Engine.ConfirmSizeSOL, "CONVEXBOT_ENGINE_CONFIRM_SIZE_SOL")
	setFloat64(&cfg.Engine.ConvictionSizeSOL, "CONVEXBOT_ENGINE_CONVICTION_SIZE_SOL")
	setFloat64(&cfg.Engine.MaxPositionSizeSOL, "CONVEXBOT_ENGINE_MAX_POSITION_SIZE_SOL")
	setDuration(&cfg.Engine.SnapshotInterval, "CONVEXBOT_ENGINE_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Engine.StaleMaxHold, "CONVEXBOT_ENGINE_STALE_MAX_HOLD")
	setDuration(&cfg.Engine.TradedCooldown, "CONVEXBOT_ENGINE_TRADED_COOLDOWN")
	setFloat64(&cfg.Engine.CrashThreshold, "CONVEXBOT_ENGINE_CRASH_THRESHOLD")
	setFloat64(&cfg.Engine.PaperBalanceSOL, "CONVEXBOT_ENGINE_PAPER_BALANCE_SOL")
	setBool(&cfg.Engine.RestoreOnStart, "CONVEXBOT_ENGINE_RESTORE_ON_START")

	// ── Lifecycle ──
	setDuration(&cfg.Lifecycle.ScoutTimeout, "CONVEXBOT_LIFECYCLE_SCOUT_TIMEOUT")
	setFloat64(&cfg.Lifecycle.ScoutStopLossPct, "CONVEXBOT_LIFECYCLE_SCOUT_STOP_LOSS_PCT")
	setInt(&cfg.Lifecycle.SelectionThreshold, "CONVEXBOT_LIFECYCLE_SELECTION_THRESHOLD")
	setFloat64(&cfg.Lifecycle.ConfirmStopLossPct, "CONVEXBOT_LIFECYCLE_CONFIRM_STOP_LOSS_PCT")
	setInt(&cfg.Lifecycle.ConvictionThreshold, "CONVEXBOT_LIFECYCLE_CONVICTION_THRESHOLD")
	setFloat64(&cfg.Lifecycle.ConvictionStopLossPct, "CONVEXBOT_LIFECYCLE_CONVICTION_STOP_LOSS_PCT")

	// ── Exit ──
	setDuration(&cfg.Exit.GraceWindow, "CONVEXBOT_EXIT_GRACE_WINDOW")
	setFloat64(&cfg.Exit.TrailingBasePct, "CONVEXBOT_EXIT_TRAILING_BASE_PCT")

	// ── Price ──
	setDuration(&cfg.Price.StaleThreshold, "CONVEXBOT_PRICE_STALE_THRESHOLD")
	setDuration(&cfg.Price.HealthInterval, "CONVEXBOT_PRICE_HEALTH_INTERVAL")
	setDuration(&cfg.Price.FallbackSpacing, "CONVEXBOT_PRICE_FALLBACK_SPACING")
	setStringSlice(&cfg.Price.FallbackChain, "CONVEXBOT_PRICE_FALLBACK_CHAIN")

	// ── Bounce ──
	setBool(&cfg.Bounce.Enabled, "CONVEXBOT_BOUNCE_ENABLED")
	setFloat64(&cfg.Bounce.ThresholdPct, "CONVEXBOT_BOUNCE_THRESHOLD_PCT")
	setInt(&cfg.Bounce.MaxReentries, "CONVEXBOT_BOUNCE_MAX_REENTRIES")

	// ── Safety ──
	setFloat64(&cfg.Safety.MaxDailyLossSOL, "CONVEXBOT_SAFETY_MAX_DAILY_LOSS_SOL")
	setFloat64(&cfg.Safety.MaxDailyLossPct, "CONVEXBOT_SAFETY_MAX_DAILY_LOSS_PCT")
	setInt(&cfg.Safety.MaxDailyTrades, "CONVEXBOT_SAFETY_MAX_DAILY_TRADES")
	setFloat64(&cfg.Safety.MinReserveSOL, "CONVEXBOT_SAFETY_MIN_RESERVE_SOL")
	setFloat64(&cfg.Safety.MaxTradePct, "CONVEXBOT_SAFETY_MAX_TRADE_PCT")
	setInt(&cfg.Safety.MaxConsecutiveLosses, "CONVEXBOT_SAFETY_MAX_CONSECUTIVE_LOSSES")
	setDuration(&cfg.Safety.Cooldown, "CONVEXBOT_SAFETY_COOLDOWN")

	// ── Execution ──
	setStr(&cfg.Execution.Venue, "CONVEXBOT_EXECUTION_VENUE")
	setStr(&cfg.Execution.RemoteURL, "CONVEXBOT_EXECUTION_REMOTE_URL")
	setStr(&cfg.Execution.RemoteKey, "CONVEXBOT_EXECUTION_REMOTE_KEY")
	setStr(&cfg.Execution.RemoteSecret, "CONVEXBOT_EXECUTION_REMOTE_SECRET")
	setFloat64(&cfg.Execution.SlippageBps, "CONVEXBOT_EXECUTION_SLIPPAGE_BPS")
	setDuration(&cfg.Execution.Timeout, "CONVEXBOT_EXECUTION_TIMEOUT")

	// ── Market ──
	setStr(&cfg.Market.DexScreenerURL, "CONVEXBOT_MARKET_DEXSCREENER_URL")
	setStr(&cfg.Market.JupiterURL, "CONVEXBOT_MARKET_JUPITER_URL")
	setStr(&cfg.Market.JupiterAPIKey, "CONVEXBOT_MARKET_JUPITER_API_KEY")
	setStr(&cfg.Market.PumpPortalWS, "CONVEXBOT_MARKET_PUMPPORTAL_WS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CONVEXBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CONVEXBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CONVEXBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CONVEXBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CONVEXBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CONVEXBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CONVEXBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CONVEXBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CONVEXBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CONVEXBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CONVEXBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CONVEXBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CONVEXBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CONVEXBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CONVEXBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CONVEXBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CONVEXBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CONVEXBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "CONVEXBOT_REDIS_LOCK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CONVEXBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CONVEXBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CONVEXBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CONVEXBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CONVEXBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CONVEXBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CONVEXBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CONVEXBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "CONVEXBOT_S3_PREFIX")
	setInt(&cfg.S3.ArchiveEvery, "CONVEXBOT_S3_ARCHIVE_EVERY")

	// ── ClickHouse ──
	setBool(&cfg.ClickHouse.Enabled, "CONVEXBOT_CLICKHOUSE_ENABLED")
	setStr(&cfg.ClickHouse.DSN, "CONVEXBOT_CLICKHOUSE_DSN")
	setInt(&cfg.ClickHouse.BatchSize, "CONVEXBOT_CLICKHOUSE_BATCH_SIZE")
	setDuration(&cfg.ClickHouse.FlushInterval, "CONVEXBOT_CLICKHOUSE_FLUSH_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CONVEXBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CONVEXBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CONVEXBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CONVEXBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CONVEXBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CONVEXBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CONVEXBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CONVEXBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CONVEXBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CONVEXBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CONVEXBOT_MODE")
	setStr(&cfg.LogLevel, "CONVEXBOT_LOG_LEVEL")
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
