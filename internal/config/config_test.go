package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
trading:
  strategies:
    - id: rsi-1
      name: rsi_mean_reversion
      enabled: true
      symbols: ["SPY"]
      params:
        rsi_period: 14
        oversold_threshold: 30
        overbought_threshold: 70
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 100000.0, cfg.Trading.InitialCash)
	assert.Equal(t, 1000, cfg.Trading.EventBusBuffer)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "https://data.alpaca.markets", cfg.MarketData.Alpaca.DataURL)
	assert.Equal(t, "iex", cfg.MarketData.Alpaca.FeedType)

	require.Len(t, cfg.Trading.Strategies, 1)
	assert.Equal(t, "rsi_mean_reversion", cfg.Trading.Strategies[0].Name)
	// YAML integer literals decode as int.
	assert.Equal(t, 14, cfg.Trading.Strategies[0].Params["rsi_period"])
}

func TestLoad_FileValuesOverrideDefaults(t *testing.T) {
	path := writeConfigFile(t, `
trading:
  initial_cash: 50000
market_data:
  alpaca:
    feed_type: sip
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50000.0, cfg.Trading.InitialCash)
	assert.Equal(t, "sip", cfg.MarketData.Alpaca.FeedType)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesAlpacaCredentials(t *testing.T) {
	path := writeConfigFile(t, `trading: {}`)

	t.Setenv("BACKTESTER_ALPACA_API_KEY", "env-key")
	t.Setenv("BACKTESTER_ALPACA_API_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.MarketData.Alpaca.APIKey)
	assert.Equal(t, "env-secret", cfg.MarketData.Alpaca.APISecret)
}
