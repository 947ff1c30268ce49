package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "convexbot.toml")
	body := `
mode = "monitor"

[engine]
tick_interval = "750ms"
max_positions = 5

[price]
stale_threshold = "8s"
fallback_chain = ["dexscreener"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("CONVEXBOT_SAFETY_MAX_DAILY_LOSS_SOL", "1.0")
	t.Setenv("CONVEXBOT_PRICE_HEALTH_INTERVAL", "3s")
	t.Setenv("CONVEXBOT_NOTIFY_EVENTS", "halt, ghost ,")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.TickInterval.Duration)
	assert.Equal(t, 5, cfg.Engine.MaxPositions)
	assert.Equal(t, 8*time.Second, cfg.Price.StaleThreshold.Duration)
	assert.Equal(t, []string{"dexscreener"}, cfg.Price.FallbackChain)
	assert.Equal(t, 3*time.Second, cfg.Price.HealthInterval.Duration)
	assert.Equal(t, 1.0, cfg.Safety.MaxDailyLossSOL)
	assert.Equal(t, []string{"halt", "ghost"}, cfg.Notify.Events)
	// untouched sections keep their defaults
	assert.Equal(t, 0.01, cfg.Engine.ScoutSizeSOL)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Execution.Venue = "carrier-pigeon"
	cfg.Price.FallbackChain = []string{"jupiter", "birdeye"}
	cfg.Lifecycle.ScoutStopLossPct = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "config validation failed")
	assert.Contains(t, msg, `unknown mode "yolo"`)
	assert.Contains(t, msg, `unknown venue "carrier-pigeon"`)
	assert.Contains(t, msg, `unknown fallback source "birdeye"`)
	assert.Contains(t, msg, "scout_stop_loss_pct")
}

func TestValidateLiveNeedsRemote(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"
	require.ErrorContains(t, cfg.Validate(), "mode live requires venue remote")

	cfg.Execution.Venue = "remote"
	cfg.Execution.RemoteURL = "http://127.0.0.1:7070"
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Password = "hunter2"
	cfg.Execution.RemoteKey = "k"
	cfg.Notify.TelegramToken = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.Execution.RemoteKey)
	assert.Equal(t, "", out.Notify.TelegramToken)
	assert.Equal(t, "hunter2", cfg.Redis.Password)

	out.Notify.Events[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Notify.Events[0])
}
