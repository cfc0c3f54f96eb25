package formulas

import (
	"math"
	"time"
)

var sqrtTradingDays = math.Sqrt(TradingDaysPerYear)

// DefaultRiskFreeRate is the hurdle used by SharpeRatio (roughly inflation).
const DefaultRiskFreeRate = 0.02

// PercentReturn is the fractional change between the first and last total.
func PercentReturn(totals []float64) float64 {
	if len(totals) < 2 || totals[0] == 0 {
		return 0
	}
	return (totals[len(totals)-1] - totals[0]) / totals[0]
}

// AnnualReturn is the compound annual growth rate between the first and last
// total, rounded to 2 places. Runs shorter than a year are not extrapolated:
// the elapsed time is floored at one year.
func AnnualReturn(start, end time.Time, totals []float64) float64 {
	if len(totals) < 2 {
		return 0
	}
	years := math.Max(end.Sub(start).Hours()/24/365.25, 1)
	growth := PercentReturn(totals) + 1
	if growth <= 0 {
		return -1
	}
	return Round(math.Pow(growth, 1/years)-1, 2)
}

// CumulativeReturns returns the running compounded return after each day,
// starting from the second total.
func CumulativeReturns(totals []float64) []float64 {
	returns := DailyReturns(totals)
	cumulative := make([]float64, len(returns))
	growth := 1.0
	for i, r := range returns {
		growth *= 1 + r
		cumulative[i] = growth - 1
	}
	return cumulative
}

// AnnualVolatility is the annualized standard deviation of daily portfolio
// returns, rounded to 3 places.
func AnnualVolatility(totals []float64) float64 {
	return Round(AnnualizedVolatility(DailyReturns(totals)), 3)
}

// SharpeRatio is (total return - riskFree) / std(daily returns), rounded to
// 3 places. Returns 0 when volatility is undefined or zero.
func SharpeRatio(totals []float64, riskFree float64) float64 {
	std := StdDev(DailyReturns(totals))
	if math.IsNaN(std) || std == 0 {
		return 0
	}
	return Round((PercentReturn(totals)-riskFree)/std, 3)
}

// Stability is the standard deviation of the totals themselves, rounded to 1
// place. Lower is steadier.
func Stability(totals []float64) float64 {
	std := StdDev(totals)
	if math.IsNaN(std) {
		return 0
	}
	return Round(std, 1)
}
