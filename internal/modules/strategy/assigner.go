// Package strategy turns the daily momentum ranking into the buy/sell/hold
// instruction stream consumed by the backtest simulator.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/utils"
)

// Config holds the selection parameters
type Config struct {
	// NumStocks is the number of top ranked symbols held each day.
	NumStocks int
	// DrawdownThreshold is the momentum floor. Held symbols ranked below it
	// are sold and new positions below it are never opened.
	DrawdownThreshold float64
}

// DefaultConfig returns four positions and a threshold of 40.
func DefaultConfig() Config {
	return Config{NumStocks: 4, DrawdownThreshold: 40}
}

// Validate checks the selection parameters.
func (c Config) Validate() error {
	if c.NumStocks <= 0 {
		return fmt.Errorf("%w: number of stocks must be positive, got %d", domain.ErrInvalidConfig, c.NumStocks)
	}
	return nil
}

// Assigner assigns daily actions and target weights
type Assigner struct {
	cfg Config
	log zerolog.Logger
}

// NewAssigner creates an action assigner
func NewAssigner(cfg Config, log zerolog.Logger) (*Assigner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Assigner{
		cfg: cfg,
		log: log.With().Str("component", "strategy").Logger(),
	}, nil
}

// Assign walks the trading days in ascending order and produces the action
// stream. Only observations with both scores defined take part in the
// ranking; unranked observations still provide today's quote for symbols
// being sold out of the portfolio. Dates without any ranked observation are
// skipped and the active set carries over unchanged.
//
// Within a date the rows are ordered sells, buys, holds, each group in
// ranking order. Demoted rows (no action) are not emitted.
func (a *Assigner) Assign(ctx context.Context, scored []domain.ScoredObservation) ([]domain.ActionRow, error) {
	timer := utils.NewTimer("assign_actions", a.log)
	defer timer.Stop()

	days := groupByDate(scored)
	out := make([]domain.ActionRow, 0, len(days)*a.cfg.NumStocks)

	var active []domain.ActionRow
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("action assignment cancelled: %w", err)
		}

		rows, next, ok := a.assignDay(day, active)
		if !ok {
			continue
		}
		applyWeights(rows)
		out = append(out, rows...)
		active = next
	}

	a.log.Debug().
		Int("days", len(days)).
		Int("actions", len(out)).
		Msg("Actions assigned")

	return out, nil
}

type tradingDay struct {
	date   time.Time
	rows   []domain.ScoredObservation
	quotes map[string]domain.PriceObservation
}

func groupByDate(scored []domain.ScoredObservation) []tradingDay {
	sorted := make([]domain.ScoredObservation, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	var days []tradingDay
	for _, obs := range sorted {
		if len(days) == 0 || !days[len(days)-1].date.Equal(obs.Date) {
			days = append(days, tradingDay{
				date:   obs.Date,
				quotes: make(map[string]domain.PriceObservation),
			})
		}
		day := &days[len(days)-1]
		day.rows = append(day.rows, obs)
		if _, ok := day.quotes[obs.Symbol]; !ok {
			day.quotes[obs.Symbol] = obs.PriceObservation
		}
	}
	return days
}

// assignDay returns the day's rows in execution order and the new active set.
// ok is false when nothing could be ranked on the date.
func (a *Assigner) assignDay(day tradingDay, active []domain.ActionRow) (rows, next []domain.ActionRow, ok bool) {
	ranked := make([]domain.ScoredObservation, 0, len(day.rows))
	for _, obs := range day.rows {
		if obs.Ranked() {
			ranked = append(ranked, obs)
		}
	}
	if len(ranked) == 0 {
		return nil, nil, false
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].Momentum > *ranked[j].Momentum
	})
	if len(ranked) > a.cfg.NumStocks {
		ranked = ranked[:a.cfg.NumStocks]
	}

	wasActive := make(map[string]bool, len(active))
	for _, row := range active {
		wasActive[row.Symbol] = true
	}

	var sells, buys, holds []domain.ActionRow
	selected := make(map[string]bool, len(ranked))

	for _, obs := range ranked {
		selected[obs.Symbol] = true
		row := domain.ActionRow{
			PriceObservation:  obs.PriceObservation,
			Momentum:          *obs.Momentum,
			InverseVolatility: *obs.InverseVolatility,
		}
		below := row.Momentum < a.cfg.DrawdownThreshold

		switch {
		case wasActive[obs.Symbol] && below:
			row.Action = domain.ActionSell
			sells = append(sells, row)
		case wasActive[obs.Symbol]:
			row.Action = domain.ActionHold
			holds = append(holds, row)
		case below:
			a.log.Debug().
				Str("symbol", obs.Symbol).
				Str("date", day.date.Format(domain.DateLayout)).
				Float64("momentum", row.Momentum).
				Msg("Buy vetoed by drawdown threshold")
		default:
			row.Action = domain.ActionBuy
			buys = append(buys, row)
		}
	}

	for _, held := range active {
		if selected[held.Symbol] {
			continue
		}
		sells = append(sells, a.dropOut(day, held))
	}

	rows = make([]domain.ActionRow, 0, len(sells)+len(buys)+len(holds))
	rows = append(rows, sells...)
	rows = append(rows, buys...)
	rows = append(rows, holds...)

	next = make([]domain.ActionRow, 0, len(buys)+len(holds))
	next = append(next, buys...)
	next = append(next, holds...)

	return rows, next, true
}

// dropOut builds the sell row of a held symbol that left the top N. It uses
// today's quote when the symbol still trades, otherwise yesterday's row moved
// onto today's date and flagged as delisted. Generated sells trade at the
// close, so Open is overwritten with Close.
func (a *Assigner) dropOut(day tradingDay, held domain.ActionRow) domain.ActionRow {
	row := domain.ActionRow{
		Action:            domain.ActionSell,
		Momentum:          held.Momentum,
		InverseVolatility: held.InverseVolatility,
	}

	quote, ok := day.quotes[held.Symbol]
	if ok {
		row.PriceObservation = quote
		for _, obs := range day.rows {
			if obs.Symbol == held.Symbol && obs.Ranked() {
				row.Momentum = *obs.Momentum
				row.InverseVolatility = *obs.InverseVolatility
				break
			}
		}
		row.Open = row.Close
		return row
	}

	a.log.Warn().
		Str("symbol", held.Symbol).
		Str("date", day.date.Format(domain.DateLayout)).
		Str("last_seen", held.Date.Format(domain.DateLayout)).
		Float64("close", held.Close).
		Msg("Held symbol has no quote, selling at last known price")

	row.PriceObservation = held.PriceObservation
	row.Date = day.date
	row.Open = row.Close
	row.Delisted = true
	return row
}

// applyWeights sets weight = inverse volatility / sum of inverse volatility
// over the non-sell rows of the day.
func applyWeights(rows []domain.ActionRow) {
	var sum float64
	for _, row := range rows {
		if row.Action != domain.ActionSell {
			sum += row.InverseVolatility
		}
	}
	if sum <= 0 {
		return
	}
	for i := range rows {
		if rows[i].Action == domain.ActionSell {
			continue
		}
		w := rows[i].InverseVolatility / sum
		rows[i].Weight = &w
	}
}
