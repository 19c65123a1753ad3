package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func winningTrade(netProfit float64) Trade {
	return Trade{NetProfit: netProfit}
}

// Invariant 8: profit_factor sentinel - 999.99 iff gross_loss == 0 and
// gross_profit > 0; zero when there is neither profit nor loss.
func TestCalculateProfitFactor_Sentinels(t *testing.T) {
	onlyWins := NewMetricsCalculator([]Trade{winningTrade(100), winningTrade(50)}, nil, nil, 10000)
	assert.Equal(t, 999.99, onlyWins.calculateProfitFactor())

	noTrades := NewMetricsCalculator(nil, nil, nil, 10000)
	assert.Equal(t, 0.0, noTrades.calculateProfitFactor())

	mixed := NewMetricsCalculator([]Trade{winningTrade(300), winningTrade(-100)}, nil, nil, 10000)
	assert.InDelta(t, 3.0, mixed.calculateProfitFactor(), 1e-9)
}

// Invariant 8: sortino_ratio sentinel - 999.99 iff no negative daily returns.
func TestCalculateSortinoRatio_NoDownsideSentinel(t *testing.T) {
	stats := []DailyStats{
		{StartingCash: 10000, PnL: 100},
		{StartingCash: 10100, PnL: 50},
	}
	m := NewMetricsCalculator(nil, stats, nil, 10000)
	assert.Equal(t, 999.99, m.calculateSortinoRatio())
}

func TestCalculateSortinoRatio_WithDownsideIsFinite(t *testing.T) {
	stats := []DailyStats{
		{StartingCash: 10000, PnL: 100},
		{StartingCash: 10100, PnL: -50},
		{StartingCash: 10050, PnL: 75},
	}
	m := NewMetricsCalculator(nil, stats, nil, 10000)
	sortino := m.calculateSortinoRatio()
	assert.NotEqual(t, 999.99, sortino)
}

// S1: flat market, no trades - sharpe is 0 with fewer than two daily samples.
func TestCalculateSharpeRatio_ZeroWithInsufficientHistory(t *testing.T) {
	m := NewMetricsCalculator(nil, nil, nil, 10000)
	assert.Equal(t, 0.0, m.calculateSharpeRatio())

	oneDay := NewMetricsCalculator(nil, []DailyStats{{StartingCash: 10000, PnL: 0}}, nil, 10000)
	assert.Equal(t, 0.0, oneDay.calculateSharpeRatio())
}

// Invariant 7: drawdown bounds - 0 <= max_drawdown <= peak equity, and
// max_drawdown_pct is contained in [0, 100].
func TestCalculateMaxDrawdown_Bounds(t *testing.T) {
	curve := []EquityPoint{
		{Timestamp: time.Unix(0, 0), Equity: 10000},
		{Timestamp: time.Unix(1, 0), Equity: 11000},
		{Timestamp: time.Unix(2, 0), Equity: 9000},
		{Timestamp: time.Unix(3, 0), Equity: 9500},
	}
	m := NewMetricsCalculator(nil, nil, curve, 10000)

	dd := m.calculateMaxDrawdown()
	ddPct := m.calculateMaxDrawdownPct()

	assert.InDelta(t, 2000.0, dd, 1e-9) // peak 11000 -> trough 9000
	assert.GreaterOrEqual(t, dd, 0.0)
	assert.LessOrEqual(t, dd, 11000.0)
	assert.GreaterOrEqual(t, ddPct, 0.0)
	assert.LessOrEqual(t, ddPct, 100.0)
}

// S1: a flat equity curve has zero drawdown.
func TestCalculateMaxDrawdown_FlatCurveIsZero(t *testing.T) {
	curve := []EquityPoint{
		{Timestamp: time.Unix(0, 0), Equity: 10000},
		{Timestamp: time.Unix(1, 0), Equity: 10000},
	}
	m := NewMetricsCalculator(nil, nil, curve, 10000)
	assert.Equal(t, 0.0, m.calculateMaxDrawdown())
	assert.Equal(t, 0.0, m.calculateMaxDrawdownPct())
}

func TestCalculateWinRate(t *testing.T) {
	trades := []Trade{winningTrade(100), winningTrade(-20), winningTrade(50)}
	m := NewMetricsCalculator(trades, nil, nil, 10000)
	assert.InDelta(t, 200.0/3.0, m.calculateWinRate(), 1e-9)
}

func TestCalculateMaxConsecutive_WinsAndLosses(t *testing.T) {
	trades := []Trade{
		winningTrade(10), winningTrade(20), winningTrade(-5),
		winningTrade(-1), winningTrade(-2), winningTrade(30),
	}
	m := NewMetricsCalculator(trades, nil, nil, 10000)
	assert.Equal(t, 2, m.calculateMaxConsecutiveWins())
	assert.Equal(t, 3, m.calculateMaxConsecutiveLosses())
}
