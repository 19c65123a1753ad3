package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedDollarRiskSizer_CalculateSize(t *testing.T) {
	sizer := NewFixedDollarRiskSizer(100)

	size, err := sizer.CalculateSize(10000, 50, 48)
	require.NoError(t, err)
	assert.Equal(t, 50, size) // 100 / (50-48) = 50 shares

	_, err = sizer.CalculateSize(10000, 50, 50)
	assert.Error(t, err)
}

func TestPercentRiskSizer_CalculateSize(t *testing.T) {
	sizer := NewPercentRiskSizer(0.01, 0.2)

	// risk = 10000*0.01 = 100, per-share risk = 2 -> 50 shares,
	// max shares at 20% of account / price 50 = 40 -> capped to 40.
	size, err := sizer.CalculateSize(10000, 50, 48)
	require.NoError(t, err)
	assert.Equal(t, 40, size)
}

func TestPercentRiskSizer_RejectsNonPositiveInputs(t *testing.T) {
	sizer := NewPercentRiskSizer(0.01, 0.2)

	_, err := sizer.CalculateSize(0, 50, 48)
	assert.Error(t, err)

	_, err = sizer.CalculateSize(10000, 0, 48)
	assert.Error(t, err)

	_, err = sizer.CalculateSize(10000, 50, 50)
	assert.Error(t, err)
}

func TestFixedFractionalSizer_CalculateSize(t *testing.T) {
	sizer := NewFixedFractionalSizer(0.05)

	size, err := sizer.CalculateSize(10000, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, size) // 10000*0.05 / 100 = 5 shares
}

func TestVolatilityAdjustedSizer_CalculateSize(t *testing.T) {
	sizer := NewVolatilityAdjustedSizer(0.02, 2.0, 0.5)

	// risk = 10000*0.02 = 200, stop distance = 1.5*2 = 3 -> 66 shares,
	// max shares at 50% of account / price 20 = 250, no cap applied.
	size, err := sizer.CalculateSize(10000, 20, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 66, size)
}

func TestKellyCriterionSizer_PositiveEdgeSizesPosition(t *testing.T) {
	sizer := NewKellyCriterionSizer(0.6, 150, 100, 0.5, 0.25)

	size, err := sizer.CalculateSize(10000, 50, 0)
	require.NoError(t, err)
	assert.Greater(t, size, 0)
}

func TestKellyCriterionSizer_NoEdgeRejectsTrade(t *testing.T) {
	sizer := NewKellyCriterionSizer(0.3, 100, 150, 1.0, 0.25)

	_, err := sizer.CalculateSize(10000, 50, 0)
	assert.Error(t, err)
}
