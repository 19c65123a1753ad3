package backtest

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWalkForwardAnalyzer(cfg *WalkForwardConfig) *WalkForwardAnalyzer {
	return NewWalkForwardAnalyzer(cfg, nil, zerolog.Nop())
}

func TestGeneratePeriods_RollingWindowKeepsFixedInSampleSize(t *testing.T) {
	backtestCfg := DefaultConfig()
	backtestCfg.StartDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backtestCfg.EndDate = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	wfa := newWalkForwardAnalyzer(&WalkForwardConfig{
		BacktestConfig:  backtestCfg,
		InSampleDays:    30,
		OutOfSampleDays: 10,
		StepDays:        10,
		Anchored:        false,
	})

	periods := wfa.generatePeriods()
	require.Greater(t, len(periods), 1)

	for _, p := range periods {
		assert.Equal(t, 30*24*time.Hour, p.InSampleEnd.Sub(p.InSampleStart))
		assert.Equal(t, 10*24*time.Hour, p.OutOfSampleEnd.Sub(p.OutOfSampleStart))
	}

	// Rolling mode advances the window start each period.
	assert.True(t, periods[1].InSampleStart.After(periods[0].InSampleStart))
	assert.Equal(t, periods[0].InSampleStart.AddDate(0, 0, 10), periods[1].InSampleStart)
}

func TestGeneratePeriods_AnchoredWindowGrowsEachPeriod(t *testing.T) {
	backtestCfg := DefaultConfig()
	backtestCfg.StartDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backtestCfg.EndDate = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	wfa := newWalkForwardAnalyzer(&WalkForwardConfig{
		BacktestConfig:  backtestCfg,
		InSampleDays:    30,
		OutOfSampleDays: 10,
		StepDays:        10,
		Anchored:        true,
	})

	periods := wfa.generatePeriods()
	require.Greater(t, len(periods), 1)

	for _, p := range periods {
		// Anchored mode always starts at the series start.
		assert.True(t, p.InSampleStart.Equal(backtestCfg.StartDate))
	}

	for i := 1; i < len(periods); i++ {
		prevSpan := periods[i-1].InSampleEnd.Sub(periods[i-1].InSampleStart)
		span := periods[i].InSampleEnd.Sub(periods[i].InSampleStart)
		assert.Greater(t, span, prevSpan)
	}
}
