package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyReturns(t *testing.T) {
	returns := DailyReturns([]float64{10, 13, 8, 16})
	require.Len(t, returns, 3)
	assert.InDelta(t, 0.3, returns[0], 1e-12)
	assert.InDelta(t, -5.0/13.0, returns[1], 1e-12)
	assert.InDelta(t, 1.0, returns[2], 1e-12)

	assert.Empty(t, DailyReturns([]float64{10}))
}

func TestDailyReturns_ForwardFillsMissing(t *testing.T) {
	returns := DailyReturns([]float64{math.NaN(), 10, math.NaN(), 12})
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.0, returns[0], 1e-12)
	assert.InDelta(t, 0.2, returns[1], 1e-12)
}

func TestInverseVolatility(t *testing.T) {
	value, degenerate := InverseVolatility([]float64{10, 11, 12, 11, 13}, DefaultVolatilityEpsilon)
	require.NotNil(t, value)
	assert.False(t, degenerate)
	assert.InDelta(t, 8.95664, *value, 1e-4)
}

func TestInverseVolatility_FlatWindow(t *testing.T) {
	value, degenerate := InverseVolatility([]float64{5, 5, 5, 5}, DefaultVolatilityEpsilon)
	require.NotNil(t, value)
	assert.True(t, degenerate)
	assert.InDelta(t, 10000.0, *value, 1e-6)

	value, degenerate = InverseVolatility([]float64{5, 5, 5, 5}, 0)
	assert.Nil(t, value)
	assert.True(t, degenerate)
}

func TestInverseVolatility_ShortWindow(t *testing.T) {
	value, _ := InverseVolatility([]float64{5, 6}, DefaultVolatilityEpsilon)
	assert.Nil(t, value)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.291, Round(1.29099674, 3))
	assert.Equal(t, 7.1, Round(7.0929, 1))
	assert.Equal(t, -0.8, Round(-0.8000001, 3))
}
