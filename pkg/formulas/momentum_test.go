package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMomentumScore(t *testing.T) {
	tests := []struct {
		name      string
		prices    []float64
		expected  *float64
		tolerance float64
	}{
		{
			name: "noisy series",
			prices: []float64{
				3.0, 5.0, 4.0, 6.0, 6.5, 7.0, 7.5, 8.8, 6.9, 6.7,
				7.0, 7.1, 7.4, 5.2, 5.1, 5.0, 4.8, 5.1, 5.1,
			},
			expected: ptr(1.291), // weak fit (r² ≈ 0.0075) crushes a 171% slope
		},
		{
			name:     "single zero price",
			prices:   []float64{0},
			expected: ptr(NonPositiveMomentum),
		},
		{
			name:     "negative price inside window",
			prices:   []float64{10, 11, -1, 12},
			expected: ptr(NonPositiveMomentum),
		},
		{
			name:     "flat window",
			prices:   []float64{5, 5, 5, 5},
			expected: ptr(0.0),
		},
		{
			name:     "single positive price",
			prices:   []float64{5},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MomentumScore(tt.prices)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.expected, *got, tt.tolerance)
		})
	}
}

func TestMomentumScore_ExponentialPath(t *testing.T) {
	// 0.1% continuous daily growth annualizes to (e^0.001)^252 - 1 ≈ 28.66%.
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 * math.Exp(0.001*float64(i))
	}

	got := MomentumScore(prices)
	require.NotNil(t, got)
	assert.InDelta(t, 28.66, *got, 0.01)
	assert.Greater(t, *got, 0.0)
}

func TestMomentumScore_DecliningPathIsNegative(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 * math.Exp(-0.002*float64(i))
	}

	got := MomentumScore(prices)
	require.NotNil(t, got)
	assert.Less(t, *got, 0.0)
}

func ptr(v float64) *float64 {
	return &v
}
