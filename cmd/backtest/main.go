package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/marketwise/backtester/internal/backtest"
	"github.com/marketwise/backtester/internal/cliutil"
	"github.com/marketwise/backtester/internal/config"
	"github.com/marketwise/backtester/internal/core/events"
	"github.com/marketwise/backtester/internal/core/strategy"
	"github.com/marketwise/backtester/internal/marketdata"
	"github.com/marketwise/backtester/internal/observability"
	"github.com/marketwise/backtester/internal/sizing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Command line flags
	symbol := flag.String("symbol", "SPY", "Symbol to backtest")
	strategyName := flag.String("strategy", "rsi_mean_reversion", "Strategy to backtest")
	startDate := flag.String("start", "", "Start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "End date (YYYY-MM-DD)")
	capital := flag.Float64("capital", 100000, "Initial capital")
	outputDir := flag.String("output", "./backtest_results", "Output directory for reports")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus metrics on (e.g. :9090); disabled if empty")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	logger := log.With().Str("component", "backtest").Logger()

	logger.Info().Msg("Starting historical backtest")

	runMetrics := observability.NewRunMetrics("backtester")
	if *metricsAddr != "" {
		metricsServer := observability.NewServer(*metricsAddr, logger)
		metricsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("Failed to shut down metrics server")
			}
		}()
	}

	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return cliutil.ExitConfig
	}

	// Parse dates
	var start, end time.Time
	if *startDate != "" {
		start, err = time.Parse("2006-01-02", *startDate)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid start date format (use YYYY-MM-DD)")
			return cliutil.ExitConfig
		}
	} else {
		// Default: 30 days ago
		start = time.Now().AddDate(0, 0, -30)
	}

	if *endDate != "" {
		end, err = time.Parse("2006-01-02", *endDate)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid end date format (use YYYY-MM-DD)")
			return cliutil.ExitConfig
		}
	} else {
		// Default: yesterday
		end = time.Now().AddDate(0, 0, -1)
	}

	// Create backtest configuration
	backtestCfg := backtest.DefaultConfig()
	backtestCfg.Symbol = *symbol
	backtestCfg.StartDate = start
	backtestCfg.EndDate = end
	backtestCfg.InitialCapital = *capital
	backtestCfg.OutputDir = *outputDir

	logger.Info().
		Str("symbol", backtestCfg.Symbol).
		Str("strategy", *strategyName).
		Time("start_date", backtestCfg.StartDate).
		Time("end_date", backtestCfg.EndDate).
		Float64("capital", backtestCfg.InitialCapital).
		Msg("Backtest configuration")

	// Create event bus
	eventBus := events.NewEventBus(1000, logger)

	// Create Alpaca client for historical data
	mdConfig := &marketdata.Config{
		APIKey:    cfg.MarketData.Alpaca.APIKey,
		APISecret: cfg.MarketData.Alpaca.APISecret,
		DataURL:   cfg.MarketData.Alpaca.DataURL,
		FeedType:  cfg.MarketData.Alpaca.FeedType,
	}

	barSource, err := marketdata.NewAlpacaClient(mdConfig, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create Alpaca client")
		return cliutil.ExitConfig
	}

	// Create strategy
	strat, err := createStrategy(*strategyName, []string{*symbol}, cfg, eventBus, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create strategy")
		return cliutil.ExitConfig
	}

	// Every built-in strategy supports position sizing; wire a percent-risk
	// sizer keyed off the run's initial capital.
	if sizable, ok := strat.(strategy.PositionSizable); ok {
		sizable.SetPositionSizer(sizing.NewPercentRiskSizer(0.01, 0.2), backtestCfg.InitialCapital)
	}

	// Create backtest engine
	engine := backtest.NewEngine(backtestCfg, strat, barSource, eventBus, logger)

	// Run backtest
	ctx := context.Background()
	runStart := time.Now()
	result, err := engine.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Backtest failed")
		return cliutil.ClassifyErr(err)
	}

	runMetrics.ObserveBacktest(*strategyName, *symbol, result.TotalBars, time.Since(runStart))

	// Generate and display report
	reportGen := backtest.NewReportGenerator(result)

	// Print console report
	fmt.Println(reportGen.GenerateConsoleReport())

	// Save detailed report to file
	if backtestCfg.GenerateReport {
		if err := reportGen.SaveToFile(backtestCfg.OutputDir); err != nil {
			logger.Error().Err(err).Msg("Failed to save report")
		} else {
			logger.Info().
				Str("directory", backtestCfg.OutputDir).
				Msg("Detailed report saved")
		}
	}

	// Print summary
	logger.Info().
		Float64("return_pct", result.TotalReturnPct).
		Float64("sharpe", result.SharpeRatio).
		Float64("max_dd_pct", result.MaxDrawdownPct).
		Int("trades", result.TotalTrades).
		Float64("win_rate", result.WinRate).
		Msg("Backtest completed successfully")

	return cliutil.ExitOK
}

// createStrategy creates a strategy based on name
func createStrategy(
	name string,
	symbols []string,
	cfg *config.Config,
	eventBus *events.EventBus,
	logger zerolog.Logger,
) (strategy.Strategy, error) {
	// Find strategy config
	var stratCfg *config.StrategyConfig
	for _, s := range cfg.Trading.Strategies {
		if s.Name == name {
			stratCfg = &s
			break
		}
	}

	if stratCfg == nil {
		return nil, fmt.Errorf("strategy %s not found in config", name)
	}

	// Create strategy based on type
	switch name {
	case "rsi_mean_reversion":
		rsiPeriod, err := cliutil.ParamAs[int](stratCfg.Params, "rsi_period")
		if err != nil {
			return nil, err
		}
		oversoldThreshold, err := cliutil.ParamAs[float64](stratCfg.Params, "oversold_threshold")
		if err != nil {
			return nil, err
		}
		overboughtThreshold, err := cliutil.ParamAs[float64](stratCfg.Params, "overbought_threshold")
		if err != nil {
			return nil, err
		}

		return strategy.NewRSIMeanReversionStrategy(
			stratCfg.ID,
			symbols,
			rsiPeriod,
			oversoldThreshold,
			overboughtThreshold,
			eventBus,
			logger,
		), nil

	case "bollinger_band_bounce":
		period, err := cliutil.ParamAs[int](stratCfg.Params, "period")
		if err != nil {
			return nil, err
		}
		stdDev, err := cliutil.ParamAs[float64](stratCfg.Params, "std_dev")
		if err != nil {
			return nil, err
		}

		return strategy.NewBollingerBandStrategy(
			stratCfg.ID,
			symbols,
			period,
			stdDev,
			eventBus,
			logger,
		), nil

	case "vwap_bounce":
		bounceTolerance, err := cliutil.ParamAs[float64](stratCfg.Params, "bounce_tolerance_pct")
		if err != nil {
			return nil, err
		}
		targetProfit, err := cliutil.ParamAs[float64](stratCfg.Params, "target_profit_pct")
		if err != nil {
			return nil, err
		}
		emaPeriod, err := cliutil.ParamAs[int](stratCfg.Params, "ema_period")
		if err != nil {
			return nil, err
		}

		return strategy.NewVWAPBounceStrategy(
			stratCfg.ID,
			symbols,
			bounceTolerance,
			targetProfit,
			emaPeriod,
			eventBus,
			logger,
		), nil

	case "opening_range_breakout":
		rangeMinutes, err := cliutil.ParamAs[int](stratCfg.Params, "range_minutes")
		if err != nil {
			return nil, err
		}
		atrPeriod, err := cliutil.ParamAs[int](stratCfg.Params, "atr_period")
		if err != nil {
			return nil, err
		}

		return strategy.NewOpeningRangeBreakoutStrategy(
			stratCfg.ID,
			symbols,
			rangeMinutes,
			atrPeriod,
			eventBus,
			logger,
		), nil

	case "ma_crossover":
		fastPeriod, err := cliutil.ParamAs[int](stratCfg.Params, "fast_period")
		if err != nil {
			return nil, err
		}
		slowPeriod, err := cliutil.ParamAs[int](stratCfg.Params, "slow_period")
		if err != nil {
			return nil, err
		}

		return strategy.NewMovingAverageCrossoverStrategy(
			stratCfg.ID,
			symbols,
			fastPeriod,
			slowPeriod,
			eventBus,
			logger,
		), nil

	default:
		return nil, fmt.Errorf("unknown strategy type: %s", name)
	}
}
