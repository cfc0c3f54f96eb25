package formulas

// DefaultVolatilityEpsilon keeps the inverse volatility finite on flat windows.
const DefaultVolatilityEpsilon = 1e-4

// InverseVolatility calculates 1 / (std(daily returns) + epsilon) over a price
// window.
//
// Returns nil when the window yields fewer than two daily returns. degenerate
// is true when the returns have zero variance, in which case the result is
// 1/epsilon (or nil if epsilon is zero).
func InverseVolatility(prices []float64, epsilon float64) (value *float64, degenerate bool) {
	returns := DailyReturns(prices)
	if len(returns) < 2 {
		return nil, false
	}

	vol := StdDev(returns)
	if vol == 0 {
		if epsilon == 0 {
			return nil, true
		}
		inv := 1 / epsilon
		return &inv, true
	}

	inv := 1 / (vol + epsilon)
	return &inv, false
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	return StdDev(dailyReturns) * sqrtTradingDays
}
