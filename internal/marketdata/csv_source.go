package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/marketwise/backtester/pkg/types"
	"github.com/rs/zerolog"
)

// CSVBarSource serves historical bars from an in-memory slice, either
// loaded from a CSV file on disk or populated directly by a test. It
// implements HistoricalBarSource without touching the network, which
// makes engine/optimizer/walk-forward behavior reproducible in tests.
//
// Expected CSV columns (header required): Symbol,Timestamp,Open,High,Low,Close,Volume
// Timestamp is RFC3339.
type CSVBarSource struct {
	logger zerolog.Logger
	bars   map[string][]types.Bar // keyed by symbol, sorted ascending by timestamp
}

// NewCSVBarSource creates an empty CSV-backed source. Use LoadFile or
// AddBars to populate it.
func NewCSVBarSource(logger zerolog.Logger) *CSVBarSource {
	return &CSVBarSource{
		logger: logger.With().Str("component", "csv_bar_source").Logger(),
		bars:   make(map[string][]types.Bar),
	}
}

// AddBars registers bars for a symbol, sorting them by timestamp. Intended
// for tests that build fixtures directly rather than from a file.
func (s *CSVBarSource) AddBars(symbol string, bars []types.Bar) {
	combined := append(append([]types.Bar{}, s.bars[symbol]...), bars...)
	sort.Slice(combined, func(i, j int) bool {
		return combined[i].Timestamp.Before(combined[j].Timestamp)
	})
	s.bars[symbol] = combined
}

// LoadFile reads a CSV file and merges its rows into the source.
func (s *CSVBarSource) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open bar file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse bar file: %w", err)
	}
	if len(rows) < 2 {
		return nil
	}

	bySymbol := make(map[string][]types.Bar)
	for _, row := range rows[1:] { // skip header
		if len(row) < 7 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", row[1], err)
		}
		open, _ := strconv.ParseFloat(row[2], 64)
		high, _ := strconv.ParseFloat(row[3], 64)
		low, _ := strconv.ParseFloat(row[4], 64)
		closePrice, _ := strconv.ParseFloat(row[5], 64)
		volume, _ := strconv.ParseInt(row[6], 10, 64)

		symbol := row[0]
		bySymbol[symbol] = append(bySymbol[symbol], types.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}

	for symbol, bars := range bySymbol {
		s.AddBars(symbol, bars)
	}

	s.logger.Info().Str("file", path).Int("rows", len(rows)-1).Msg("loaded historical bars")
	return nil
}

// HistoricalBars implements HistoricalBarSource.
func (s *CSVBarSource) HistoricalBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.Bar, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	all := s.bars[symbol]
	result := make([]types.Bar, 0, len(all))
	for _, bar := range all {
		if bar.Timestamp.Before(start) || bar.Timestamp.After(end) {
			continue
		}
		result = append(result, bar)
	}

	return result, nil
}
