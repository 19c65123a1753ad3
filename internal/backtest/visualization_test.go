package backtest

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrades() []Trade {
	t0 := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	return []Trade{
		{
			Symbol: "SPY", TradeID: 1, Side: "LONG",
			EntryTime: t0, EntryPrice: 100, EntryQty: 100,
			ExitTime: t0.Add(time.Minute), ExitPrice: 105, ExitQty: 100,
			GrossProfit: 500, NetProfit: 500, Commission: 0, Slippage: 0,
			ReturnPct: 5.0, Duration: time.Minute,
			EntryReason: "enter", ExitReason: "exit",
		},
		{
			Symbol: "SPY", TradeID: 2, Side: "LONG",
			EntryTime: t0.Add(time.Hour), EntryPrice: 101, EntryQty: 100,
			ExitTime: t0.Add(time.Hour + time.Minute), ExitPrice: 102.9105, ExitQty: 100,
			GrossProfit: 296, NetProfit: 294, Commission: 2, Slippage: 10.05,
			ReturnPct: 2.91, Duration: time.Minute,
			EntryReason: "enter", ExitReason: "exit",
		},
	}
}

// Round-trip law: writing then re-parsing trades.csv reproduces the
// trade list, within the 1e-6 float tolerance acknowledged for
// string-precision round trips.
func TestExportTradesToCSV_RoundTrip(t *testing.T) {
	trades := sampleTrades()
	path := filepath.Join(t.TempDir(), "trades.csv")

	require.NoError(t, ExportTradesToCSV(trades, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(trades)+1) // header + rows

	for i, trade := range trades {
		row := rows[i+1]
		assert.Equal(t, strconv.Itoa(trade.TradeID), row[0])
		assert.Equal(t, trade.Symbol, row[1])
		assert.Equal(t, trade.Side, row[2])

		entryPrice, err := strconv.ParseFloat(row[4], 64)
		require.NoError(t, err)
		assert.InDelta(t, trade.EntryPrice, entryPrice, 1e-6)

		netProfit, err := strconv.ParseFloat(row[10], 64)
		require.NoError(t, err)
		assert.InDelta(t, trade.NetProfit, netProfit, 1e-6)

		commission, err := strconv.ParseFloat(row[11], 64)
		require.NoError(t, err)
		assert.InDelta(t, trade.Commission, commission, 1e-6)
	}
}

// Round-trip law: writing then re-parsing visualization_data.json
// reproduces the same equity-curve and drawdown-period fields.
func TestExportToJSON_RoundTrip(t *testing.T) {
	result := &BacktestResult{
		Config:         testConfig(),
		InitialCapital: 10000,
		FinalCapital:   10500,
		StartDate:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Trades:         sampleTrades(),
		EquityCurve: []EquityPoint{
			{Timestamp: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), Equity: 10000, Cash: 10000},
			{Timestamp: time.Date(2024, 1, 2, 9, 31, 0, 0, time.UTC), Equity: 10500, Cash: 10500},
			{Timestamp: time.Date(2024, 1, 2, 9, 32, 0, 0, time.UTC), Equity: 10200, Cash: 10200},
		},
	}

	viz := GenerateVisualizationData(result)
	path := filepath.Join(t.TempDir(), "visualization_data.json")
	require.NoError(t, viz.ExportToJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var reparsed VisualizationData
	require.NoError(t, json.Unmarshal(data, &reparsed))

	require.Len(t, reparsed.EquityCurve, len(viz.EquityCurve))
	for i := range viz.EquityCurve {
		assert.True(t, viz.EquityCurve[i].Timestamp.Equal(reparsed.EquityCurve[i].Timestamp))
		assert.InDelta(t, viz.EquityCurve[i].Equity, reparsed.EquityCurve[i].Equity, 1e-6)
		assert.InDelta(t, viz.EquityCurve[i].Drawdown, reparsed.EquityCurve[i].Drawdown, 1e-6)
	}

	require.Len(t, reparsed.DrawdownPeriods, len(viz.DrawdownPeriods))
	for i := range viz.DrawdownPeriods {
		assert.InDelta(t, viz.DrawdownPeriods[i].MaxDrawdown, reparsed.DrawdownPeriods[i].MaxDrawdown, 1e-6)
		assert.Equal(t, viz.DrawdownPeriods[i].Recovered, reparsed.DrawdownPeriods[i].Recovered)
	}
}

func TestIdentifyDrawdownPeriods_PeakToTrough(t *testing.T) {
	curve := []EquityCurvePoint{
		{Timestamp: time.Unix(0, 0), Equity: 10000},
		{Timestamp: time.Unix(1, 0), Equity: 11000},
		{Timestamp: time.Unix(2, 0), Equity: 9000},
		{Timestamp: time.Unix(3, 0), Equity: 11500},
	}

	periods := identifyDrawdownPeriods(curve)
	require.Len(t, periods, 1)
	assert.Equal(t, 11000.0, periods[0].PeakEquity)
	assert.Equal(t, 9000.0, periods[0].TroughEquity)
	assert.InDelta(t, 2000.0, periods[0].MaxDrawdown, 1e-9)
	assert.True(t, periods[0].Recovered)
}
