package formulas

// CalculateMaxDrawdown calculates the maximum drawdown of a series of
// portfolio totals.
//
// A wealth index is compounded from the daily returns and every point is
// compared to the running peak:
//
//	Drawdown = (Wealth - Peak) / Peak
//
// Returns the most negative drawdown rounded to 3 places (e.g. -0.8 for an
// 80% loss from peak) together with the full drawdown series.
func CalculateMaxDrawdown(totals []float64) (float64, []float64) {
	returns := DailyReturns(totals)
	if len(returns) == 0 {
		return 0, []float64{}
	}

	drawdowns := make([]float64, len(returns))
	wealth := 1000.0
	peak := 0.0
	maxDrawdown := 0.0

	for i, r := range returns {
		wealth *= 1 + r
		if wealth > peak {
			peak = wealth
		}
		if peak > 0 {
			drawdowns[i] = (wealth - peak) / peak
		}
		if drawdowns[i] < maxDrawdown {
			maxDrawdown = drawdowns[i]
		}
	}

	return Round(maxDrawdown, 3), drawdowns
}
