package cliutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamAs_Int(t *testing.T) {
	params := map[string]interface{}{"rsi_period": float64(14)}

	got, err := ParamAs[int](params, "rsi_period")
	require.NoError(t, err)
	assert.Equal(t, 14, got)
}

func TestParamAs_Float64(t *testing.T) {
	params := map[string]interface{}{"oversold_threshold": float64(30.5)}

	got, err := ParamAs[float64](params, "oversold_threshold")
	require.NoError(t, err)
	assert.Equal(t, 30.5, got)
}

func TestParamAs_String(t *testing.T) {
	params := map[string]interface{}{"mode": "aggressive"}

	got, err := ParamAs[string](params, "mode")
	require.NoError(t, err)
	assert.Equal(t, "aggressive", got)
}

func TestParamAs_MissingKeyErrors(t *testing.T) {
	_, err := ParamAs[int](map[string]interface{}{}, "missing")
	assert.Error(t, err)
}

func TestParamAs_TypeMismatchErrorsInsteadOfPanicking(t *testing.T) {
	params := map[string]interface{}{"rsi_period": "not-a-number"}

	assert.NotPanics(t, func() {
		_, err := ParamAs[int](params, "rsi_period")
		assert.Error(t, err)
	})
}
