package backtest

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOptimizer(ranges []ParameterRange, metric string) *Optimizer {
	cfg := &OptimizationConfig{
		BacktestConfig:     DefaultConfig(),
		ParameterRanges:    ranges,
		OptimizationMetric: metric,
	}
	return NewOptimizer(cfg, nil, zerolog.Nop())
}

func TestGenerateCombinations_CartesianProduct(t *testing.T) {
	opt := newTestOptimizer([]ParameterRange{
		GenerateParameterRangeInt("fast_period", 5, 10, 5),
		GenerateParameterRangeValues("mode", "aggressive", "conservative"),
	}, "sharpe_ratio")

	combos := opt.generateCombinations()
	require.Len(t, combos, 4) // 2 fast_period values x 2 modes

	seen := make(map[string]bool)
	for _, c := range combos {
		key := c["mode"].(string)
		seen[key] = true
		assert.Contains(t, []int{5, 10}, c["fast_period"])
	}
	assert.True(t, seen["aggressive"])
	assert.True(t, seen["conservative"])
}

func TestGenerateCombinations_NoRangesYieldsSingleEmptySet(t *testing.T) {
	opt := newTestOptimizer(nil, "sharpe_ratio")
	combos := opt.generateCombinations()
	require.Len(t, combos, 1)
	assert.Empty(t, combos[0])
}

func TestExtractMetric_SelectsConfiguredField(t *testing.T) {
	result := &BacktestResult{
		SharpeRatio:    1.5,
		SortinoRatio:   2.5,
		TotalReturnPct: 10,
		ProfitFactor:   3,
		CalmarRatio:    0.5,
		WinRate:        60,
	}

	assert.Equal(t, 1.5, newTestOptimizer(nil, "sharpe_ratio").extractMetric(result))
	assert.Equal(t, 2.5, newTestOptimizer(nil, "sortino_ratio").extractMetric(result))
	assert.Equal(t, 10.0, newTestOptimizer(nil, "total_return").extractMetric(result))
	assert.Equal(t, 3.0, newTestOptimizer(nil, "profit_factor").extractMetric(result))
	assert.Equal(t, 0.5, newTestOptimizer(nil, "calmar_ratio").extractMetric(result))
	assert.Equal(t, 60.0, newTestOptimizer(nil, "win_rate").extractMetric(result))
	assert.Equal(t, 1.5, newTestOptimizer(nil, "unknown_metric").extractMetric(result))
}

func TestGenerateParameterRangeInt_Step(t *testing.T) {
	r := GenerateParameterRangeInt("period", 5, 15, 5)
	assert.Equal(t, "period", r.Name)
	require.Len(t, r.Values, 3)
	assert.Equal(t, []interface{}{5, 10, 15}, r.Values)
}
