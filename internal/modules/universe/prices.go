// Package universe prepares the price data a backtest runs on: loading and
// writing price files, restricting symbols to the dates they were index
// constituents and aligning prices with the trading calendar.
package universe

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/domain"
)

// ErrMissingColumn is returned when an input file lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

var priceColumns = []string{"symbol", "date", "open", "close"}

// LoadPrices reads a price CSV with a header row containing at least the
// symbol, date, open and close columns, in any order. Extra columns are
// ignored. Rows without a parseable close are skipped; a missing open falls
// back to the close. The result is sorted by date, keeping file order within
// a date.
func LoadPrices(r io.Reader, log zerolog.Logger) ([]domain.PriceObservation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read price header: %w", err)
	}
	cols, err := columnIndex(header, priceColumns)
	if err != nil {
		return nil, err
	}

	prices := make([]domain.PriceObservation, 0)
	skipped := 0
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read price line %d: %w", line, err)
		}

		date, err := parseTimestamp(record[cols["date"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		closePrice, err := strconv.ParseFloat(strings.TrimSpace(record[cols["close"]]), 64)
		if err != nil {
			skipped++
			continue
		}
		openPrice, err := strconv.ParseFloat(strings.TrimSpace(record[cols["open"]]), 64)
		if err != nil {
			openPrice = closePrice
		}

		prices = append(prices, domain.PriceObservation{
			Date:   date,
			Symbol: strings.TrimSpace(record[cols["symbol"]]),
			Open:   openPrice,
			Close:  closePrice,
		})
	}

	if skipped > 0 {
		log.Warn().Int("rows", skipped).Msg("Skipped price rows without a close")
	}

	SortPrices(prices)
	return prices, nil
}

// WritePrices writes prices in the format read by LoadPrices.
func WritePrices(w io.Writer, prices []domain.PriceObservation) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(priceColumns); err != nil {
		return fmt.Errorf("failed to write price header: %w", err)
	}
	for _, p := range prices {
		record := []string{
			p.Symbol,
			p.Date.Format(domain.DateLayout),
			strconv.FormatFloat(p.Open, 'f', -1, 64),
			strconv.FormatFloat(p.Close, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write price row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// SortPrices stably sorts prices by date.
func SortPrices(prices []domain.PriceObservation) {
	sort.SliceStable(prices, func(i, j int) bool {
		return prices[i].Date.Before(prices[j].Date)
	})
}

// Symbols returns the distinct symbols of prices in lexical order.
func Symbols(prices []domain.PriceObservation) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, p := range prices {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

func columnIndex(header []string, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	return idx, nil
}

// parseTimestamp accepts a bare date or a date with a time of day and
// truncates to the date.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{domain.DateLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
