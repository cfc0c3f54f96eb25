package testing

import (
	"math"
	"time"

	"github.com/aristath/backtester/internal/domain"
)

// FixtureStart is the first date of generated price fixtures (a Monday).
var FixtureStart = time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)

// NewPriceFixtures returns a deterministic daily price series for the given
// symbols over consecutive weekdays. Each symbol trends at its own rate with
// a small oscillation so rankings change over time.
func NewPriceFixtures(symbols []string, days int) []domain.PriceObservation {
	prices := make([]domain.PriceObservation, 0, len(symbols)*days)
	date := FixtureStart
	for d := 0; d < days; d++ {
		for i, symbol := range symbols {
			drift := 0.002 * float64(i%3+1)
			if i%2 == 1 {
				drift = -drift / 2
			}
			close := (20 + 10*float64(i)) * math.Exp(drift*float64(d)) * (1 + 0.03*math.Sin(float64(d+i)/3))
			prices = append(prices, domain.PriceObservation{
				Date:   date,
				Symbol: symbol,
				Open:   close * 0.995,
				Close:  close,
			})
		}
		date = nextWeekday(date)
	}
	return prices
}

func nextWeekday(d time.Time) time.Time {
	d = d.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
