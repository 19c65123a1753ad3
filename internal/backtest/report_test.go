package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *BacktestResult {
	cfg := testConfig()
	return &BacktestResult{
		Config:           cfg,
		InitialCapital:   10000,
		FinalCapital:     10500,
		TotalReturn:      500,
		TotalReturnPct:   5.0,
		TotalTrades:      2,
		WinningTrades:    1,
		LosingTrades:     1,
		WinRate:          50,
		ProfitFactor:     1.5,
		SharpeRatio:      1.2,
		MaxDrawdownPct:   8,
		Trades:           sampleTrades(),
		DailyStats: []DailyStats{
			{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), StartingCash: 10000, EndingCash: 10500, PnL: 500, PnLPct: 5, Trades: 2, Wins: 1, Losses: 1},
		},
		StartDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Duration:  24 * time.Hour,
	}
}

func TestGenerateConsoleReport_ContainsKeySections(t *testing.T) {
	report := NewReportGenerator(sampleResult()).GenerateConsoleReport()

	assert.Contains(t, report, "BACKTEST RESULTS")
	assert.Contains(t, report, "CONFIGURATION")
	assert.Contains(t, report, "OVERALL PERFORMANCE")
	assert.Contains(t, report, "TRADE STATISTICS")
	assert.Contains(t, report, "RISK METRICS")
	assert.Contains(t, report, "Final Capital:    $10500.00")
	assert.Contains(t, report, "Total Trades:     2")
}

func TestGenerateTradeLog_ListsEachTradeWithWinLossMarker(t *testing.T) {
	log := NewReportGenerator(sampleResult()).GenerateTradeLog()

	assert.Contains(t, log, "Trade #1")
	assert.Contains(t, log, "Trade #2")
	assert.Contains(t, log, "WIN")
}

func TestGenerateTradeLog_NoTradesMessage(t *testing.T) {
	result := sampleResult()
	result.Trades = nil

	log := NewReportGenerator(result).GenerateTradeLog()
	assert.Contains(t, log, "No trades executed")
}

func TestGenerateDailyStats_RendersDateAndPnL(t *testing.T) {
	stats := NewReportGenerator(sampleResult()).GenerateDailyStats()

	assert.Contains(t, stats, "2024-01-02")
	assert.Contains(t, stats, "DAILY PERFORMANCE")
}

func TestSaveToFile_WritesReportToOutputDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewReportGenerator(sampleResult()).SaveToFile(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	contents, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "BACKTEST RESULTS")
}

func TestFormatDuration_Buckets(t *testing.T) {
	r := NewReportGenerator(sampleResult())

	assert.Equal(t, "45s", r.formatDuration(45*time.Second))
	assert.Equal(t, "3m 30s", r.formatDuration(3*time.Minute+30*time.Second))
	assert.Equal(t, "2h 15m", r.formatDuration(2*time.Hour+15*time.Minute))
	assert.Equal(t, "1d 2h", r.formatDuration(26*time.Hour))
}
