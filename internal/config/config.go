package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Trading    TradingConfig    `mapstructure:"trading"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// TradingConfig holds backtest-wide trading configuration
type TradingConfig struct {
	InitialCash    float64          `mapstructure:"initial_cash"`
	EventBusBuffer int              `mapstructure:"event_bus_buffer"`
	Strategies     []StrategyConfig `mapstructure:"strategies"`
}

// StrategyConfig holds individual strategy configuration
type StrategyConfig struct {
	ID      string                 `mapstructure:"id"`
	Name    string                 `mapstructure:"name"`
	Enabled bool                   `mapstructure:"enabled"`
	Symbols []string               `mapstructure:"symbols"`
	Params  map[string]interface{} `mapstructure:"params"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "console"
	TimeFormat string `mapstructure:"time_format"`
}

// MarketDataConfig holds market data provider configuration
type MarketDataConfig struct {
	Alpaca AlpacaConfig `mapstructure:"alpaca"`
}

// AlpacaConfig holds Alpaca-specific configuration
type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	DataURL   string `mapstructure:"data_url"`
	FeedType  string `mapstructure:"feed_type"` // "iex" or "sip"
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from config file
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Allow environment variables to override, e.g. BACKTESTER_ALPACA_API_KEY
	v.SetEnvPrefix("BACKTESTER")
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if v.IsSet("ALPACA_API_KEY") {
		config.MarketData.Alpaca.APIKey = v.GetString("ALPACA_API_KEY")
	}
	if v.IsSet("ALPACA_API_SECRET") {
		config.MarketData.Alpaca.APISecret = v.GetString("ALPACA_API_SECRET")
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.initial_cash", 100000.0)
	v.SetDefault("trading.event_bus_buffer", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("market_data.alpaca.data_url", "https://data.alpaca.markets")
	v.SetDefault("market_data.alpaca.feed_type", "iex")
}
