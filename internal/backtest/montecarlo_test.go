package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateMetrics_TracksEquityDrawdownAndReturn(t *testing.T) {
	sim := NewMonteCarloSimulator(&MonteCarloConfig{Simulations: 10, Seed: 1})

	trades := []Trade{
		{NetProfit: 500},
		{NetProfit: -200},
		{NetProfit: 100},
	}

	finalReturn, maxDrawdown, _ := sim.calculateMetrics(trades, 10000)

	assert.Equal(t, 400.0, finalReturn) // 500 - 200 + 100
	assert.Equal(t, 200.0, maxDrawdown) // peak 10500 -> trough 10300
}

func TestCalculateSharpeFromReturns_InsufficientDataIsZero(t *testing.T) {
	assert.Equal(t, 0.0, calculateSharpeFromReturns(nil))
	assert.Equal(t, 0.0, calculateSharpeFromReturns([]float64{0.01}))
}

func TestCalculateSharpeFromReturns_ZeroVarianceIsZero(t *testing.T) {
	assert.Equal(t, 0.0, calculateSharpeFromReturns([]float64{0.01, 0.01, 0.01}))
}

func TestMeanMedianStdDev(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, 3.0, mean([]float64{1, 3, 5}))

	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 3.0, median([]float64{1, 3, 5}))
	assert.Equal(t, 3.0, median([]float64{1, 3, 3, 5}))

	assert.Equal(t, 0.0, stdDev([]float64{5}, 5))
	assert.InDelta(t, 2.0, stdDev([]float64{1, 3, 5}, 3), 1e-9)
}
