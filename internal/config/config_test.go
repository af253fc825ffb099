package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidateInMonitorMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresCredentialsInHedgeMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "hedge"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Trade.SafetyFactor = 1.5
	cfg.Trade.Side2 = "BUY"
	cfg.Risk.MinProfitRate = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "safety_factor")
	assert.Contains(t, err.Error(), "opposing")
	assert.Contains(t, err.Error(), "min_profit_rate")
}

func TestValidateRejectsSameVenueTwice(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.Exchange2.Name = "binance"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different venues")
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "monitor"

[trade]
symbol = "ETHUSDT"
safety_factor = 0.25
per_leg_timeout = "10s"

[risk]
min_profit_rate = 0.001
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "ETHUSDT", cfg.Trade.Symbol)
	assert.Equal(t, 0.25, cfg.Trade.SafetyFactor)
	assert.Equal(t, 10*time.Second, cfg.Trade.PerLegTimeout.Duration)
	assert.Equal(t, 0.001, cfg.Risk.MinProfitRate)

	// Untouched sections keep defaults.
	assert.Equal(t, "binance", cfg.Exchange1.Name)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "monitor"`), 0o600))

	t.Setenv("HEDGEBOT_TRADE_SYMBOL", "SOLUSDT")
	t.Setenv("HEDGEBOT_RISK_MIN_PROFIT_RATE", "0.002")
	t.Setenv("HEDGEBOT_TRADE_NO_TRADE_TIMEOUT", "15m")
	t.Setenv("HEDGEBOT_SERVER_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "SOLUSDT", cfg.Trade.Symbol)
	assert.Equal(t, 0.002, cfg.Risk.MinProfitRate)
	assert.Equal(t, 15*time.Minute, cfg.Trade.NoTradeTimeout.Duration)
	assert.False(t, cfg.Server.Enabled)
}

func TestExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
