// Package domain provides core domain models and types shared by the scoring,
// strategy, ledger and backtest modules.
package domain

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the canonical textual form of a trading date.
const DateLayout = "2006-01-02"

// Day truncates a timestamp to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// PriceField selects which quote of a PriceObservation an operation uses.
type PriceField string

const (
	// PriceOpen uses the opening price
	PriceOpen PriceField = "open"
	// PriceClose uses the closing price
	PriceClose PriceField = "close"
)

// Valid reports whether the field is one of the known price fields.
func (f PriceField) Valid() bool {
	return f == PriceOpen || f == PriceClose
}

// Shares is a whole number of shares. Fractional shares are never held.
type Shares int64

// PriceObservation is a single daily quote for a symbol.
type PriceObservation struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	Close  float64   `json:"close"`
}

// Price returns the quote selected by field. Unknown fields fall back to close.
func (p PriceObservation) Price(field PriceField) float64 {
	if field == PriceOpen {
		return p.Open
	}
	return p.Close
}

// ScoredObservation is a PriceObservation enriched with rolling window scores.
// Momentum and InverseVolatility are nil until the respective window is full.
type ScoredObservation struct {
	PriceObservation
	Momentum          *float64 `json:"momentum"`
	InverseVolatility *float64 `json:"inverse_volatility"`
}

// Ranked reports whether both scores are defined, i.e. the row can take part
// in the daily ranking.
func (s ScoredObservation) Ranked() bool {
	return s.Momentum != nil && s.InverseVolatility != nil
}

// ActionRow is one instruction of the strategy's action stream: what to do with
// a symbol on a date, and the target weight for non-sell actions.
type ActionRow struct {
	PriceObservation
	Action            Action   `json:"action"`
	Weight            *float64 `json:"weight"`
	Momentum          float64  `json:"momentum"`
	InverseVolatility float64  `json:"inverse_volatility"`
	Delisted          bool     `json:"delisted"`
}

// Holding is a position owned at the end of a trading day.
type Holding struct {
	Symbol    string  `json:"symbol" msgpack:"symbol"`
	NumShares Shares  `json:"num_shares" msgpack:"num_shares"`
	Close     float64 `json:"close" msgpack:"close"`
}

// Value returns the holding marked at its reference close.
func (h Holding) Value() float64 {
	return float64(h.NumShares) * h.Close
}

// PortfolioState is the portfolio snapshot of one trading day.
// Total is kept equal to Cash + Investments.
type PortfolioState struct {
	Date        time.Time          `json:"-" msgpack:"-"`
	Cash        float64            `json:"cash" msgpack:"cash"`
	Investments float64            `json:"investments" msgpack:"investments"`
	Total       float64            `json:"total" msgpack:"total"`
	Holdings    map[string]Holding `json:"shares_owned" msgpack:"shares_owned"`
}

// NewPortfolioState creates an all-cash state.
func NewPortfolioState(date time.Time, bankroll float64) PortfolioState {
	return PortfolioState{
		Date:     date,
		Cash:     bankroll,
		Total:    bankroll,
		Holdings: make(map[string]Holding),
	}
}

// Clone returns a deep copy of the state.
func (s PortfolioState) Clone() PortfolioState {
	holdings := make(map[string]Holding, len(s.Holdings))
	for symbol, h := range s.Holdings {
		holdings[symbol] = h
	}
	s.Holdings = holdings
	return s
}

// Symbols returns the held symbols in lexical order.
func (s PortfolioState) Symbols() []string {
	symbols := make([]string, 0, len(s.Holdings))
	for symbol := range s.Holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// MarkToMarket returns the value of all holdings at their reference close.
// Holdings are summed in symbol order so repeated runs are bit-identical.
func (s PortfolioState) MarkToMarket() float64 {
	var total float64
	for _, symbol := range s.Symbols() {
		total += s.Holdings[symbol].Value()
	}
	return total
}

// DailyTotal is one point of the portfolio value time series.
type DailyTotal struct {
	Date  time.Time `json:"datetime"`
	Total float64   `json:"total"`
}
