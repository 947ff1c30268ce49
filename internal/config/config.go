// Package config defines the top-level configuration for the convex trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CONVEXBOT_* environment variables.
type Config struct {
	Engine     EngineConfig     `toml:"engine"`
	Lifecycle  LifecycleConfig  `toml:"lifecycle"`
	Scorer     ScorerConfig     `toml:"scorer"`
	Exit       ExitConfig       `toml:"exit"`
	Fees       FeesConfig       `toml:"fees"`
	Price      PriceConfig      `toml:"price"`
	Bounce     BounceConfig     `toml:"bounce"`
	Safety     SafetyConfig     `toml:"safety"`
	Execution  ExecutionConfig  `toml:"execution"`
	Market     MarketConfig     `toml:"market"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// EngineConfig holds control-loop parameters. Sizes are in SOL.
type EngineConfig struct {
	TickInterval       duration `toml:"tick_interval"`
	MaxPositions       int      `toml:"max_positions"`
	ScoutSizeSOL       float64  `toml:"scout_size_sol"`
	ConfirmSizeSOL     float64  `toml:"confirm_size_sol"`
	ConvictionSizeSOL  float64  `toml:"conviction_size_sol"`
	MaxPositionSizeSOL float64  `toml:"max_position_size_sol"`
	SnapshotInterval   duration `toml:"snapshot_interval"`
	StaleMaxHold       duration `toml:"stale_max_hold"`
	TradedCooldown     duration `toml:"traded_cooldown"`
	CrashThreshold     float64  `toml:"crash_threshold"`
	CrashWarmup        duration `toml:"crash_warmup"`
	MomentumWindow     duration `toml:"momentum_window"`
	SignalDedupTTL     duration `toml:"signal_dedup_ttl"`
	QueueCapacity      int      `toml:"queue_capacity"`
	PaperBalanceSOL    float64  `toml:"paper_balance_sol"`
	RestoreOnStart     bool     `toml:"restore_on_start"`
}

// LifecycleConfig holds the position state machine thresholds. Percentages
// are fractions: 0.15 means 15%.
type LifecycleConfig struct {
	ScoutTimeout             duration `toml:"scout_timeout"`
	ScoutStopLossPct         float64  `toml:"scout_stop_loss_pct"`
	SelectionThreshold       int      `toml:"selection_threshold"`
	SelectionWindows         int      `toml:"selection_windows"`
	ConfirmMinPnLPct         float64  `toml:"confirm_min_pnl_pct"`
	ConfirmStopLossPct       float64  `toml:"confirm_stop_loss_pct"`
	ConvictionThreshold      int      `toml:"conviction_threshold"`
	ConvictionWindows        int      `toml:"conviction_windows"`
	ConvictionProfitPct      float64  `toml:"conviction_profit_pct"`
	ConvictionStopLossPct    float64  `toml:"conviction_stop_loss_pct"`
	MoonbagStopLossPct       float64  `toml:"moonbag_stop_loss_pct"`
	MoonbagRemainingFraction float64  `toml:"moonbag_remaining_fraction"`
}

// ScorerConfig holds signal thresholds and anti-fake-volume limits.
type ScorerConfig struct {
	TxAccelMin         float64 `toml:"tx_accel_min"`
	WalletAccelMin     float64 `toml:"wallet_accel_min"`
	CurveAccelMin      float64 `toml:"curve_accel_min"`
	AbsorptionRatio    float64 `toml:"absorption_ratio"`
	MinTxns5m          int     `toml:"min_txns_5m"`
	MaxAvgTradeUSD     float64 `toml:"max_avg_trade_usd"`
	MinUniqueBuyerRate float64 `toml:"min_unique_buyer_rate"`
}

// ExitConfig holds trailing-stop, break-even, grace and partial-exit settings.
type ExitConfig struct {
	TrailingBasePct      float64  `toml:"trailing_base_pct"`
	TrailingMinPct       float64  `toml:"trailing_min_pct"`
	TrailingMaxPct       float64  `toml:"trailing_max_pct"`
	UnderwaterPct        float64  `toml:"underwater_pct"`
	BreakEvenMinTrailPct float64  `toml:"break_even_min_trail_pct"`
	BreakEvenSellPct     float64  `toml:"break_even_sell_pct"`
	BreakEvenBufferPct   float64  `toml:"break_even_buffer_pct"`
	BreakEvenFloor       float64  `toml:"break_even_floor"`
	GraceWindow          duration `toml:"grace_window"`
	MoonbagTriggerPct    float64  `toml:"moonbag_trigger_pct"`
	MoonbagSellFraction  float64  `toml:"moonbag_sell_fraction"`
	RiskMediumSell       float64  `toml:"risk_medium_sell"`
	RiskHighSell         float64  `toml:"risk_high_sell"`
	ParabolicHighSell    float64  `toml:"parabolic_high_sell"`
	RiskLowToMedium      float64  `toml:"risk_low_to_medium"`
	RiskToHigh           float64  `toml:"risk_to_high"`
	RiskMediumToLow      float64  `toml:"risk_medium_to_low"`
	RiskHighToMedium     float64  `toml:"risk_high_to_medium"`
}

// FeesConfig describes the execution cost structure used for break-even math.
type FeesConfig struct {
	SwapFeeBps     float64 `toml:"swap_fee_bps"`
	ExitFeeBps     float64 `toml:"exit_fee_bps"`
	PriorityFeeSOL float64 `toml:"priority_fee_sol"`
	BaseFeeSOL     float64 `toml:"base_fee_sol"`
	TipSOL         float64 `toml:"tip_sol"`
}

// PriceConfig holds Price Aggregator timings.
type PriceConfig struct {
	StaleThreshold       duration `toml:"stale_threshold"`
	HealthInterval       duration `toml:"health_interval"`
	FallbackSpacing      duration `toml:"fallback_spacing"`
	OpenPollInterval     duration `toml:"open_poll_interval"`
	MigratedPollInterval duration `toml:"migrated_poll_interval"`
	PriorityHold         duration `toml:"priority_hold"`
	BackoffBase          duration `toml:"backoff_base"`
	BackoffMax           duration `toml:"backoff_max"`
	FallbackChain        []string `toml:"fallback_chain"`
	FetchTimeout         duration `toml:"fetch_timeout"`
}

// BounceConfig holds Bounce Recovery Watchdog parameters.
type BounceConfig struct {
	Enabled         bool     `toml:"enabled"`
	ThresholdPct    float64  `toml:"threshold_pct"`
	VolumeSpikePct  float64  `toml:"volume_spike_pct"`
	MaxReentries    int      `toml:"max_reentries"`
	SizeMultiplier  float64  `toml:"size_multiplier"`
	MonitorDuration duration `toml:"monitor_duration"`
	TriggerReasons  []string `toml:"trigger_reasons"`
}

// SafetyConfig holds Safety Supervisor limits.
type SafetyConfig struct {
	MaxDailyLossSOL      float64  `toml:"max_daily_loss_sol"`
	MaxDailyLossPct      float64  `toml:"max_daily_loss_pct"`
	MaxDailyTrades       int      `toml:"max_daily_trades"`
	MinReserveSOL        float64  `toml:"min_reserve_sol"`
	MaxTradePct          float64  `toml:"max_trade_pct"`
	MaxConsecutiveLosses int      `toml:"max_consecutive_losses"`
	Cooldown             duration `toml:"cooldown"`
}

// ExecutionConfig selects and configures the execution collaborator.
type ExecutionConfig struct {
	Venue        string   `toml:"venue"`
	RemoteURL    string   `toml:"remote_url"`
	RemoteKey    string   `toml:"remote_key"`
	RemoteSecret string   `toml:"remote_secret"`
	SlippageBps  float64  `toml:"slippage_bps"`
	Timeout      duration `toml:"timeout"`
}

// MarketConfig holds market-data endpoints.
type MarketConfig struct {
	DexScreenerURL string `toml:"dexscreener_url"`
	JupiterURL     string `toml:"jupiter_url"`
	JupiterAPIKey  string `toml:"jupiter_api_key"`
	PumpPortalWS   string `toml:"pumpportal_ws"`
	SOLMint        string `toml:"sol_mint"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	KeepSnapshots int    `toml:"keep_snapshots"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	ArchiveEvery   int    `toml:"archive_every"`
}

// ClickHouseConfig holds the tick-history sink parameters.
type ClickHouseConfig struct {
	Enabled       bool     `toml:"enabled"`
	DSN           string   `toml:"dsn"`
	BatchSize     int      `toml:"batch_size"`
	FlushInterval duration `toml:"flush_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			TickInterval:       duration{2 * time.Second},
			MaxPositions:       3,
			ScoutSizeSOL:       0.01,
			ConfirmSizeSOL:     0.04,
			ConvictionSizeSOL:  0.05,
			MaxPositionSizeSOL: 0.15,
			SnapshotInterval:   duration{30 * time.Second},
			StaleMaxHold:       duration{15 * time.Minute},
			TradedCooldown:     duration{60 * time.Minute},
			CrashThreshold:     0.30,
			CrashWarmup:        duration{30 * time.Second},
			MomentumWindow:     duration{5 * time.Minute},
			SignalDedupTTL:     duration{10 * time.Minute},
			QueueCapacity:      256,
			PaperBalanceSOL:    1.0,
			RestoreOnStart:     true,
		},
		Lifecycle: LifecycleConfig{
			ScoutTimeout:             duration{180 * time.Second},
			ScoutStopLossPct:         0.15,
			SelectionThreshold:       2,
			SelectionWindows:         2,
			ConfirmMinPnLPct:         0.10,
			ConfirmStopLossPct:       0.20,
			ConvictionThreshold:      3,
			ConvictionWindows:        3,
			ConvictionProfitPct:      0.50,
			ConvictionStopLossPct:    0.35,
			MoonbagStopLossPct:       0.35,
			MoonbagRemainingFraction: 0.30,
		},
		Scorer: ScorerConfig{
			TxAccelMin:         1.8,
			WalletAccelMin:     1.6,
			CurveAccelMin:      1.5,
			AbsorptionRatio:    1.2,
			MinTxns5m:          20,
			MaxAvgTradeUSD:     2000,
			MinUniqueBuyerRate: 0.3,
		},
		Exit: ExitConfig{
			TrailingBasePct:      0.15,
			TrailingMinPct:       0.05,
			TrailingMaxPct:       0.40,
			UnderwaterPct:        0.60,
			BreakEvenMinTrailPct: 0.05,
			BreakEvenSellPct:     75,
			BreakEvenBufferPct:   0.005,
			BreakEvenFloor:       1.01,
			GraceWindow:          duration{20 * time.Second},
			MoonbagTriggerPct:    1.00,
			MoonbagSellFraction:  0.50,
			RiskMediumSell:       0.20,
			RiskHighSell:         0.35,
			ParabolicHighSell:    0.25,
			RiskLowToMedium:      1.15,
			RiskToHigh:           0.92,
			RiskMediumToLow:      1.25,
			RiskHighToMedium:     1.02,
		},
		Fees: FeesConfig{
			SwapFeeBps:     50,
			ExitFeeBps:     300,
			PriorityFeeSOL: 0.0001,
			BaseFeeSOL:     0.000005,
			TipSOL:         0.00025,
		},
		Price: PriceConfig{
			StaleThreshold:       duration{10 * time.Second},
			HealthInterval:       duration{5 * time.Second},
			FallbackSpacing:      duration{5 * time.Second},
			OpenPollInterval:     duration{2 * time.Second},
			MigratedPollInterval: duration{3 * time.Second},
			PriorityHold:         duration{5 * time.Second},
			BackoffBase:          duration{2 * time.Second},
			BackoffMax:           duration{30 * time.Second},
			FallbackChain:        []string{"jupiter", "dexscreener"},
			FetchTimeout:         duration{4 * time.Second},
		},
		Bounce: BounceConfig{
			Enabled:         true,
			ThresholdPct:    0.15,
			VolumeSpikePct:  0.50,
			MaxReentries:    1,
			SizeMultiplier:  0.5,
			MonitorDuration: duration{30 * time.Minute},
			TriggerReasons:  []string{"stop-loss", "crash"},
		},
		Safety: SafetyConfig{
			MaxDailyLossSOL:      0.05,
			MaxDailyLossPct:      10,
			MaxDailyTrades:       10,
			MinReserveSOL:        0.2,
			MaxTradePct:          5,
			MaxConsecutiveLosses: 3,
			Cooldown:             duration{30 * time.Second},
		},
		Execution: ExecutionConfig{
			Venue:       "paper",
			SlippageBps: 100,
			Timeout:     duration{10 * time.Second},
		},
		Market: MarketConfig{
			DexScreenerURL: "https://api.dexscreener.com",
			JupiterURL:     "https://lite-api.jup.ag",
			PumpPortalWS:   "wss://pumpportal.fun/api/data",
			SOLMint:        "So11111111111111111111111111111111111111112",
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "convexbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
			KeepSnapshots: 500,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			LockTTL:    duration{30 * time.Second},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "convexbot-data",
			ForcePathStyle: true,
			ArchiveEvery:   20,
		},
		ClickHouse: ClickHouseConfig{
			Enabled:       false,
			DSN:           "clickhouse://default:@localhost:9000/convexbot",
			BatchSize:     500,
			FlushInterval: duration{5 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"entry", "exit", "ghost", "halt", "cooldown", "bounce"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper":   true,
	"live":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validVenues = map[string]bool{
	"paper":  true,
	"remote": true,
}

var validPriceSources = map[string]bool{
	"jupiter":     true,
	"dexscreener": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, live, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.TickInterval.Duration <= 0 {
		errs = append(errs, "engine: tick_interval must be > 0")
	}
	if c.Engine.MaxPositions < 1 {
		errs = append(errs, "engine: max_positions must be >= 1")
	}
	if c.Engine.ScoutSizeSOL <= 0 {
		errs = append(errs, "engine: scout_size_sol must be > 0")
	}
	if c.Engine.MaxPositionSizeSOL < c.Engine.ScoutSizeSOL {
		errs = append(errs, "engine: max_position_size_sol must be >= scout_size_sol")
	}
	if c.Engine.CrashThreshold <= 0 || c.Engine.CrashThreshold >= 1 {
		errs = append(errs, "engine: crash_threshold must be in (0, 1)")
	}
	if c.Engine.QueueCapacity < 1 {
		errs = append(errs, "engine: queue_capacity must be >= 1")
	}

	// Lifecycle
	if c.Lifecycle.ScoutTimeout.Duration <= 0 {
		errs = append(errs, "lifecycle: scout_timeout must be > 0")
	}
	if c.Lifecycle.SelectionWindows < 1 || c.Lifecycle.ConvictionWindows < 1 {
		errs = append(errs, "lifecycle: selection_windows and conviction_windows must be >= 1")
	}
	if c.Lifecycle.ConvictionThreshold < c.Lifecycle.SelectionThreshold {
		errs = append(errs, "lifecycle: conviction_threshold must not be below selection_threshold")
	}
	stops := []struct {
		name string
		v    float64
	}{
		{"scout_stop_loss_pct", c.Lifecycle.ScoutStopLossPct},
		{"confirm_stop_loss_pct", c.Lifecycle.ConfirmStopLossPct},
		{"conviction_stop_loss_pct", c.Lifecycle.ConvictionStopLossPct},
		{"moonbag_stop_loss_pct", c.Lifecycle.MoonbagStopLossPct},
	}
	for _, s := range stops {
		if s.v <= 0 || s.v >= 1 {
			errs = append(errs, fmt.Sprintf("lifecycle: %s must be in (0, 1), got %g", s.name, s.v))
		}
	}

	// Exit
	if c.Exit.TrailingMinPct <= 0 || c.Exit.TrailingMinPct > c.Exit.TrailingMaxPct {
		errs = append(errs, "exit: trailing_min_pct must be > 0 and <= trailing_max_pct")
	}
	if c.Exit.UnderwaterPct <= c.Lifecycle.ConvictionStopLossPct {
		errs = append(errs, "exit: underwater_pct must be looser than every hard stop")
	}
	if c.Exit.BreakEvenSellPct <= 0 || c.Exit.BreakEvenSellPct > 100 {
		errs = append(errs, "exit: break_even_sell_pct must be in (0, 100]")
	}

	// Price
	if c.Price.StaleThreshold.Duration <= 0 || c.Price.HealthInterval.Duration <= 0 {
		errs = append(errs, "price: stale_threshold and health_interval must be > 0")
	}
	if c.Price.BackoffBase.Duration <= 0 || c.Price.BackoffMax.Duration < c.Price.BackoffBase.Duration {
		errs = append(errs, "price: backoff_max must be >= backoff_base > 0")
	}
	for _, s := range c.Price.FallbackChain {
		if !validPriceSources[s] {
			errs = append(errs, fmt.Sprintf("price: unknown fallback source %q (valid: jupiter, dexscreener)", s))
		}
	}

	// Safety
	if c.Safety.MaxDailyLossSOL <= 0 {
		errs = append(errs, "safety: max_daily_loss_sol must be > 0")
	}
	if c.Safety.MaxTradePct <= 0 || c.Safety.MaxTradePct > 100 {
		errs = append(errs, "safety: max_trade_pct must be in (0, 100]")
	}
	if c.Safety.MinReserveSOL < 0 {
		errs = append(errs, "safety: min_reserve_sol must be >= 0")
	}

	// Execution
	if !validVenues[c.Execution.Venue] {
		errs = append(errs, fmt.Sprintf("execution: unknown venue %q (valid: paper, remote)", c.Execution.Venue))
	}
	if c.Execution.Venue == "remote" && c.Execution.RemoteURL == "" {
		errs = append(errs, "execution: remote_url is required for venue remote")
	}
	if strings.EqualFold(c.Mode, "live") && c.Execution.Venue != "remote" {
		errs = append(errs, "execution: mode live requires venue remote")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// ClickHouse
	if c.ClickHouse.Enabled {
		if c.ClickHouse.DSN == "" {
			errs = append(errs, "clickhouse: dsn must not be empty")
		}
		if c.ClickHouse.BatchSize < 1 {
			errs = append(errs, "clickhouse: batch_size must be >= 1")
		}
	}

	// Server
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
