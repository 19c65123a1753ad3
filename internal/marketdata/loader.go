package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/marketwise/backtester/pkg/types"
	"github.com/rs/zerolog"
)

// LoaderConfig controls how BatchLoader pulls bars for a list of symbols
// ahead of a run.
type LoaderConfig struct {
	// Timeframe for bars: "1Min", "5Min", "15Min", "1H", "1D"
	Timeframe string

	// LookbackDays is used by LoadRecent when no explicit range is given.
	LookbackDays int
}

// DefaultLoaderConfig returns sensible defaults.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		Timeframe:    "1Min",
		LookbackDays: 7,
	}
}

// BatchLoader fetches and validates historical bars for a set of symbols
// from a HistoricalBarSource before a backtest, optimization run, or
// walk-forward analysis begins. cmd/optimize uses it as a preflight check
// that data exists; the bars it returns are not shared with the runs that
// follow, each of which fetches its own from the source.
type BatchLoader struct {
	source HistoricalBarSource
	logger zerolog.Logger
	config *LoaderConfig
}

// NewBatchLoader creates a new batch loader over the given bar source.
func NewBatchLoader(source HistoricalBarSource, config *LoaderConfig, logger zerolog.Logger) *BatchLoader {
	if config == nil {
		config = DefaultLoaderConfig()
	}

	return &BatchLoader{
		source: source,
		config: config,
		logger: logger.With().Str("component", "batch_loader").Logger(),
	}
}

// LoadStats summarizes the result of a batch load.
type LoadStats struct {
	SymbolsProcessed int
	TotalBars        int
	Duration         time.Duration
	Errors           []error
}

// LoadRange fetches bars for each symbol over [start, end] and returns
// them keyed by symbol, along with per-batch statistics. A symbol that
// fails to fetch is recorded in stats.Errors and omitted from the map
// rather than aborting the whole batch.
func (l *BatchLoader) LoadRange(ctx context.Context, symbols []string, start, end time.Time) (map[string][]types.Bar, *LoadStats) {
	startTime := time.Now()
	stats := &LoadStats{Errors: make([]error, 0)}
	result := make(map[string][]types.Bar, len(symbols))

	for _, symbol := range symbols {
		bars, err := l.source.HistoricalBars(ctx, symbol, l.config.Timeframe, start, end)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("%s: %w", symbol, err))
			l.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to load bars")
			continue
		}

		if len(bars) == 0 {
			l.logger.Warn().Str("symbol", symbol).Msg("No historical bars returned")
			continue
		}

		result[symbol] = bars
		stats.SymbolsProcessed++
		stats.TotalBars += len(bars)

		l.logger.Info().
			Str("symbol", symbol).
			Int("bars", len(bars)).
			Time("first_bar", bars[0].Timestamp).
			Time("last_bar", bars[len(bars)-1].Timestamp).
			Msg("Loaded historical bars")
	}

	stats.Duration = time.Since(startTime)
	return result, stats
}

// LoadRecent is a convenience wrapper around LoadRange using the
// configured lookback window ending now.
func (l *BatchLoader) LoadRecent(ctx context.Context, symbols []string) (map[string][]types.Bar, *LoadStats) {
	end := time.Now()
	start := end.AddDate(0, 0, -l.config.LookbackDays)
	return l.LoadRange(ctx, symbols, start, end)
}
