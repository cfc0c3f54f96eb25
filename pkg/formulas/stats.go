// Package formulas holds the pure numeric functions of the backtester:
// window scores used for ranking and the performance metrics computed over a
// run's daily totals.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is used to annualize daily figures.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values.
// It returns NaN when fewer than two values are given.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return math.NaN()
	}
	return stat.StdDev(data, nil)
}

// ForwardFill replaces NaN values with the last non-NaN value before them.
// Leading NaN values are dropped since nothing precedes them.
func ForwardFill(data []float64) []float64 {
	filled := make([]float64, 0, len(data))
	last := math.NaN()
	for _, v := range data {
		if !math.IsNaN(v) {
			last = v
		}
		if math.IsNaN(last) {
			continue
		}
		filled = append(filled, last)
	}
	return filled
}

// DailyReturns converts prices to day-over-day fractional changes.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]; missing prices are forward
// filled first.
func DailyReturns(prices []float64) []float64 {
	filled := ForwardFill(prices)
	if len(filled) < 2 {
		return []float64{}
	}
	// Rocp leaves its lookback slot at zero.
	return talib.Rocp(filled, 1)[1:]
}

// Round rounds x to the given number of decimal places.
func Round(x float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(x*pow) / pow
}
