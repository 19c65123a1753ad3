// Package cliutil holds small helpers shared by the cmd/backtest and
// cmd/optimize entry points.
package cliutil

import (
	"errors"

	"github.com/marketwise/backtester/internal/backtest"
)

// Exit codes returned by the CLI binaries. 0 is success; everything else
// distinguishes a configuration mistake from a data problem from an
// unexpected internal failure, so shell scripts and CI jobs can branch
// on it without scraping log output.
const (
	ExitOK       = 0
	ExitConfig   = 1 // bad configuration or arguments
	ExitData     = 2 // historical data unavailable or malformed
	ExitInternal = 3 // unexpected/internal error
)

// ClassifyErr maps a returned error to a process exit code. Config and
// validation errors are the caller's fault (ExitConfig); missing or bad
// market data is an environment problem (ExitData); anything else is
// treated as an internal failure (ExitInternal).
func ClassifyErr(err error) int {
	if err == nil {
		return ExitOK
	}

	switch {
	case errors.Is(err, backtest.ErrNoData), errors.Is(err, backtest.ErrInvalidBarData):
		return ExitData
	case errors.Is(err, backtest.ErrInvalidCapital),
		errors.Is(err, backtest.ErrInvalidDateRange),
		errors.Is(err, backtest.ErrInvalidSymbol):
		return ExitConfig
	default:
		return ExitInternal
	}
}
