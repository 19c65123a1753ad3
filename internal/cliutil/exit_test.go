package cliutil

import (
	"errors"
	"testing"

	"github.com/marketwise/backtester/internal/backtest"
	"github.com/stretchr/testify/assert"
)

func TestClassifyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"no data", backtest.ErrNoData, ExitData},
		{"invalid bar data", backtest.ErrInvalidBarData, ExitData},
		{"invalid capital", backtest.ErrInvalidCapital, ExitConfig},
		{"invalid date range", backtest.ErrInvalidDateRange, ExitConfig},
		{"invalid symbol", backtest.ErrInvalidSymbol, ExitConfig},
		{"wrapped config error", errors.Join(errors.New("load failed"), backtest.ErrInvalidSymbol), ExitConfig},
		{"unknown error", errors.New("boom"), ExitInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyErr(tc.err))
		})
	}
}
