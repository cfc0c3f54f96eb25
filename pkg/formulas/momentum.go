package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NonPositiveMomentum is the score given to windows containing a price <= 0.
// It is low enough to keep the symbol out of any top-N selection.
const NonPositiveMomentum = -10.0

// MomentumScore calculates the annualized exponential trend of a price window,
// discounted by the quality of the fit.
//
// A least squares line is fitted to ln(price) against the day index 0..L-1:
//
//	score = round(((e^slope)^252 - 1) * 100 * r², 3)
//
// Returns NonPositiveMomentum when any price is <= 0 and nil when fewer than
// two prices are given. A perfectly flat window scores 0.
func MomentumScore(prices []float64) *float64 {
	if len(prices) > 0 && floats.Min(prices) <= 0 {
		score := NonPositiveMomentum
		return &score
	}
	if len(prices) < 2 {
		return nil
	}

	x := make([]float64, len(prices))
	y := make([]float64, len(prices))
	for i, p := range prices {
		x[i] = float64(i)
		y[i] = math.Log(p)
	}

	alpha, slope := stat.LinearRegression(x, y, nil, false)
	rSquared := stat.RSquared(x, y, nil, alpha, slope)
	if math.IsNaN(rSquared) {
		// No variance in the window: no trend to speak of.
		rSquared = 0
	}

	annualized := (math.Pow(math.Exp(slope), TradingDaysPerYear) - 1) * 100
	score := Round(annualized*rSquared, 3)
	return &score
}
