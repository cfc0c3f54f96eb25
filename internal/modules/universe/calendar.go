package universe

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/domain"
)

// TradingCalendar is the set of dates the reference market was open.
type TradingCalendar struct {
	dates map[time.Time]struct{}
}

// NewTradingCalendar creates a calendar from explicit dates.
func NewTradingCalendar(dates []time.Time) *TradingCalendar {
	c := &TradingCalendar{dates: make(map[time.Time]struct{}, len(dates))}
	for _, d := range dates {
		c.dates[domain.Day(d)] = struct{}{}
	}
	return c
}

// WeekdayCalendar approximates a market calendar with every Monday to Friday
// between from and to inclusive. Exchange holidays are not removed.
func WeekdayCalendar(from, to time.Time) *TradingCalendar {
	var dates []time.Time
	for d := domain.Day(from); !d.After(domain.Day(to)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
	}
	return NewTradingCalendar(dates)
}

// LoadCalendar reads one date per line. Blank lines and lines starting with
// '#' are ignored.
func LoadCalendar(r io.Reader) (*TradingCalendar, error) {
	var dates []time.Time
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		d, err := parseTimestamp(text)
		if err != nil {
			return nil, fmt.Errorf("calendar line %d: %w", line, err)
		}
		dates = append(dates, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read calendar: %w", err)
	}
	return NewTradingCalendar(dates), nil
}

// Contains reports whether the market was open on date.
func (c *TradingCalendar) Contains(date time.Time) bool {
	_, ok := c.dates[domain.Day(date)]
	return ok
}

// Len returns the number of trading dates.
func (c *TradingCalendar) Len() int {
	return len(c.dates)
}

// Dates returns the trading dates in ascending order.
func (c *TradingCalendar) Dates() []time.Time {
	out := make([]time.Time, 0, len(c.dates))
	for d := range c.dates {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Filter drops the prices dated on non-trading days.
func (c *TradingCalendar) Filter(prices []domain.PriceObservation, log zerolog.Logger) []domain.PriceObservation {
	out := make([]domain.PriceObservation, 0, len(prices))
	for _, p := range prices {
		if c.Contains(p.Date) {
			out = append(out, p)
		}
	}
	if dropped := len(prices) - len(out); dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("Dropped prices outside the trading calendar")
	}
	return out
}
