package marketdata

import (
	"context"
	"time"

	"github.com/marketwise/backtester/pkg/types"
)

// HistoricalBarSource is the single contract the backtest engine, optimizer,
// and walk-forward analyzer depend on for historical data. Any provider that
// can answer this query — a REST client, a CSV file, an in-memory fixture —
// can drive a backtest.
type HistoricalBarSource interface {
	// HistoricalBars returns bars for symbol/timeframe over [start, end],
	// sorted ascending by timestamp. Missing days or missing bars within a
	// day are permitted; resampling is the caller's responsibility.
	HistoricalBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.Bar, error)
}
