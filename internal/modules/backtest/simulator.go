// Package backtest implements the daily portfolio simulator: it replays an
// action stream day by day against cash, holdings and the FIFO ledger.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/ledger"
	"github.com/aristath/backtester/internal/utils"
)

// Config holds the simulation parameters
type Config struct {
	Bankroll float64
	// StartDate discards every action dated on or before it. Zero keeps all.
	StartDate time.Time
	BuyPrice  domain.PriceField
	SellPrice domain.PriceField
	Rates     ledger.Rates
}

// DefaultConfig returns a 10000 bankroll trading at the close with default
// fee and tax rates.
func DefaultConfig() Config {
	return Config{
		Bankroll:  10000,
		BuyPrice:  domain.PriceClose,
		SellPrice: domain.PriceClose,
		Rates:     ledger.DefaultRates(),
	}
}

// Validate checks the simulation parameters.
func (c Config) Validate() error {
	if c.Bankroll <= 0 {
		return fmt.Errorf("%w: bankroll must be positive, got %v", domain.ErrInvalidConfig, c.Bankroll)
	}
	if !c.BuyPrice.Valid() {
		return fmt.Errorf("%w: unknown buy price field %q", domain.ErrInvalidConfig, c.BuyPrice)
	}
	if !c.SellPrice.Valid() {
		return fmt.Errorf("%w: unknown sell price field %q", domain.ErrInvalidConfig, c.SellPrice)
	}
	if c.Rates.FinraFee < 0 || c.Rates.AggregateSaleFee < 0 || c.Rates.Tax < 0 {
		return fmt.Errorf("%w: fee and tax rates must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// Execution is an action row after it has been applied: the share count it
// ended with (bought, sold or rebalanced to) and the corresponding value.
type Execution struct {
	domain.ActionRow
	NumShares domain.Shares `json:"num_shares"`
	Value     float64       `json:"value"`
}

// Result is the outcome of a simulation
type Result struct {
	// Executions in date order, sells then buys then holds within a date.
	Executions []Execution
	// States holds one end-of-day snapshot per simulated date, ascending.
	States []domain.PortfolioState
	Ledger []ledger.Entry

	index map[time.Time]int
}

// State returns the end-of-day snapshot of date.
func (r *Result) State(date time.Time) (domain.PortfolioState, bool) {
	i, ok := r.index[domain.Day(date)]
	if !ok {
		return domain.PortfolioState{}, false
	}
	return r.States[i], true
}

// Dates returns the simulated dates in ascending order.
func (r *Result) Dates() []time.Time {
	out := make([]time.Time, len(r.States))
	for i, s := range r.States {
		out[i] = s.Date
	}
	return out
}

// Totals returns the portfolio value series.
func (r *Result) Totals() []domain.DailyTotal {
	out := make([]domain.DailyTotal, len(r.States))
	for i, s := range r.States {
		out[i] = domain.DailyTotal{Date: s.Date, Total: s.Total}
	}
	return out
}

// Simulator replays an action stream
type Simulator struct {
	cfg  Config
	days []actionDay
	log  zerolog.Logger
}

type actionDay struct {
	date  time.Time
	sells []domain.ActionRow
	buys  []domain.ActionRow
	holds []domain.ActionRow
}

// NewSimulator validates the action stream and prepares it for replay.
// Rows are grouped by date; the order of rows within an action keeps the
// input order. Invalid rows fail with ErrInvalidActionTable before anything
// is simulated.
func NewSimulator(cfg Config, rows []domain.ActionRow, log zerolog.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg: cfg,
		log: log.With().Str("component", "backtest").Logger(),
	}

	kept := make([]domain.ActionRow, 0, len(rows))
	for i, row := range rows {
		if err := s.validateRow(row); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", domain.ErrInvalidActionTable, i, err)
		}
		row.Date = domain.Day(row.Date)
		if !cfg.StartDate.IsZero() && !row.Date.After(domain.Day(cfg.StartDate)) {
			continue
		}
		kept = append(kept, row)
	}
	if dropped := len(rows) - len(kept); dropped > 0 {
		s.log.Info().
			Str("start_date", cfg.StartDate.Format(domain.DateLayout)).
			Int("dropped", dropped).
			Msg("Discarded actions before start date")
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Date.Before(kept[j].Date)
	})

	for _, row := range kept {
		if len(s.days) == 0 || !s.days[len(s.days)-1].date.Equal(row.Date) {
			s.days = append(s.days, actionDay{date: row.Date})
		}
		day := &s.days[len(s.days)-1]
		switch row.Action {
		case domain.ActionSell:
			day.sells = append(day.sells, row)
		case domain.ActionBuy:
			day.buys = append(day.buys, row)
		case domain.ActionHold:
			day.holds = append(day.holds, row)
		}
	}

	return s, nil
}

func (s *Simulator) validateRow(row domain.ActionRow) error {
	if row.Symbol == "" {
		return errors.New("missing symbol")
	}
	if row.Date.IsZero() {
		return fmt.Errorf("%s: missing date", row.Symbol)
	}
	switch row.Action {
	case domain.ActionBuy:
		if row.Weight == nil {
			return fmt.Errorf("%s: buy without weight", row.Symbol)
		}
		if row.Price(s.cfg.BuyPrice) <= 0 {
			return fmt.Errorf("%s: non-positive %s price", row.Symbol, s.cfg.BuyPrice)
		}
	case domain.ActionHold:
		if row.Weight == nil {
			return fmt.Errorf("%s: hold without weight", row.Symbol)
		}
		if row.Close <= 0 {
			return fmt.Errorf("%s: non-positive close price", row.Symbol)
		}
	case domain.ActionSell:
	default:
		return fmt.Errorf("%s: unsupported action %q", row.Symbol, row.Action)
	}
	return nil
}

// Run simulates every date in ascending order. Each run starts from a fresh
// all-cash portfolio and an empty ledger, so repeated runs produce identical
// results. Accounting violations abort the run.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	timer := utils.NewTimer("simulate", s.log)
	defer timer.Stop()

	res := &Result{
		Executions: make([]Execution, 0),
		States:     make([]domain.PortfolioState, 0, len(s.days)),
		index:      make(map[time.Time]int, len(s.days)),
	}
	if len(s.days) == 0 {
		s.log.Warn().Msg("Empty action stream, nothing to simulate")
		res.Ledger = []ledger.Entry{}
		return res, nil
	}

	led := ledger.New(s.cfg.Rates, s.log)
	state := domain.NewPortfolioState(s.days[0].date, s.cfg.Bankroll)

	for _, day := range s.days {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("simulation cancelled: %w", err)
		}

		next, execs, err := s.step(state, day, led)
		if err != nil {
			return nil, fmt.Errorf("simulation aborted on %s: %w", day.date.Format(domain.DateLayout), err)
		}

		res.index[day.date] = len(res.States)
		res.States = append(res.States, next)
		res.Executions = append(res.Executions, execs...)
		state = next
	}
	res.Ledger = led.Entries()

	last := res.States[len(res.States)-1]
	s.log.Info().
		Int("days", len(res.States)).
		Int("ledger_entries", len(res.Ledger)).
		Float64("final_total", last.Total).
		Msg("Simulation complete")

	return res, nil
}

// step is the transition function of one trading day: carry the previous
// state forward, then apply all sells, all buys and finally all holds.
func (s *Simulator) step(prev domain.PortfolioState, day actionDay, led *ledger.Ledger) (domain.PortfolioState, []Execution, error) {
	state := s.carryForward(prev, day)
	openTotal := state.Total

	execs := make([]Execution, 0, len(day.sells)+len(day.buys)+len(day.holds))

	for _, row := range day.sells {
		exec, err := s.sell(&state, row, led)
		if err != nil {
			return state, nil, err
		}
		execs = append(execs, exec)
	}
	for _, row := range day.buys {
		exec, err := s.buy(&state, row, openTotal, led)
		if err != nil {
			return state, nil, err
		}
		execs = append(execs, exec)
	}
	for _, row := range day.holds {
		exec, err := s.rebalance(&state, row, led)
		if err != nil {
			return state, nil, err
		}
		execs = append(execs, exec)
	}

	return state, execs, nil
}

// carryForward deep-copies the previous state onto the new date and marks
// every holding that is not being bought today at today's close. Holdings
// without any row today keep their last close.
func (s *Simulator) carryForward(prev domain.PortfolioState, day actionDay) domain.PortfolioState {
	state := prev.Clone()
	state.Date = day.date

	quoted := make(map[string]bool, len(state.Holdings))
	for _, rows := range [][]domain.ActionRow{day.sells, day.holds} {
		for _, row := range rows {
			h, ok := state.Holdings[row.Symbol]
			if !ok {
				continue
			}
			h.Close = row.Close
			state.Holdings[row.Symbol] = h
			quoted[row.Symbol] = true
		}
	}
	for _, row := range day.buys {
		quoted[row.Symbol] = true
	}

	for _, symbol := range state.Symbols() {
		if !quoted[symbol] {
			s.log.Warn().
				Str("symbol", symbol).
				Str("date", day.date.Format(domain.DateLayout)).
				Float64("close", state.Holdings[symbol].Close).
				Msg("Holding has no action today, keeping last close")
		}
	}

	state.Investments = state.MarkToMarket()
	state.Total = state.Cash + state.Investments
	return state
}

func (s *Simulator) sell(state *domain.PortfolioState, row domain.ActionRow, led *ledger.Ledger) (Execution, error) {
	h, ok := state.Holdings[row.Symbol]
	if !ok {
		return Execution{}, fmt.Errorf("%w: sell of %s", domain.ErrUnknownHolding, row.Symbol)
	}

	price := row.Price(s.cfg.SellPrice)
	if h.NumShares > 0 {
		if _, err := led.Sell(row.Date, row.Symbol, h.NumShares, price, false); err != nil {
			return Execution{}, err
		}
	}

	revenue := float64(h.NumShares) * price
	state.Cash += revenue
	state.Investments -= h.Value()
	delete(state.Holdings, row.Symbol)
	state.Total = state.Cash + state.Investments

	if row.Delisted {
		s.log.Warn().
			Str("symbol", row.Symbol).
			Str("date", row.Date.Format(domain.DateLayout)).
			Int64("shares", int64(h.NumShares)).
			Float64("price", price).
			Msg("Sold delisted holding at last known price")
	}

	return Execution{ActionRow: row, NumShares: h.NumShares, Value: revenue}, nil
}

// buy sizes the position against the day's opening total.
func (s *Simulator) buy(state *domain.PortfolioState, row domain.ActionRow, openTotal float64, led *ledger.Ledger) (Execution, error) {
	price := row.Price(s.cfg.BuyPrice)
	shares := floorShares(openTotal * *row.Weight / price)
	cost := float64(shares) * price

	h := state.Holdings[row.Symbol]
	oldValue := h.Value()
	h.Symbol = row.Symbol
	h.NumShares += shares
	h.Close = row.Close
	state.Holdings[row.Symbol] = h

	if shares > 0 {
		led.Buy(row.Date, row.Symbol, shares, price, false)
	}

	state.Cash -= cost
	state.Investments += h.Value() - oldValue
	state.Total = state.Cash + state.Investments

	return Execution{ActionRow: row, NumShares: shares, Value: cost}, nil
}

// rebalance moves a held position to its target weight of the current total,
// trading the difference at today's close.
func (s *Simulator) rebalance(state *domain.PortfolioState, row domain.ActionRow, led *ledger.Ledger) (Execution, error) {
	h, ok := state.Holdings[row.Symbol]
	if !ok {
		return Execution{}, fmt.Errorf("%w: hold of %s", domain.ErrUnknownHolding, row.Symbol)
	}

	total := state.Cash + state.MarkToMarket()
	target := floorShares(total * *row.Weight / row.Close)
	delta := target - h.NumShares

	if delta != 0 {
		if _, err := led.Record(row.Date, row.Symbol, delta, row.Close, true); err != nil {
			return Execution{}, err
		}
	}

	oldValue := h.Value()
	h.NumShares = target
	h.Close = row.Close
	state.Holdings[row.Symbol] = h

	state.Cash -= float64(delta) * row.Close
	state.Investments += h.Value() - oldValue
	state.Total = state.Cash + state.Investments

	return Execution{ActionRow: row, NumShares: target, Value: h.Value()}, nil
}

// floorShares converts a fractional share amount to whole shares, rounding
// down. Negative amounts, possible when cash has gone negative, clamp to zero.
func floorShares(amount float64) domain.Shares {
	if amount <= 0 || math.IsNaN(amount) {
		return 0
	}
	return domain.Shares(math.Floor(amount))
}
