// Package scoring computes the rolling momentum and inverse-volatility scores
// the daily ranking is built from.
package scoring

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/utils"
	"github.com/aristath/backtester/pkg/formulas"
)

// Config holds the rolling window parameters
type Config struct {
	MomentumWindow   int
	VolatilityWindow int
	// Epsilon stabilizes the inverse volatility of flat windows.
	// Zero disables it and flat windows score as undefined.
	Epsilon float64
	// Parallelism bounds the number of symbols scored concurrently.
	// Zero means GOMAXPROCS.
	Parallelism int
}

// DefaultConfig returns 14 day windows with the default epsilon.
func DefaultConfig() Config {
	return Config{
		MomentumWindow:   14,
		VolatilityWindow: 14,
		Epsilon:          formulas.DefaultVolatilityEpsilon,
	}
}

// Validate checks the window lengths.
func (c Config) Validate() error {
	if c.MomentumWindow <= 0 {
		return fmt.Errorf("%w: momentum window must be positive, got %d", domain.ErrInvalidConfig, c.MomentumWindow)
	}
	if c.VolatilityWindow <= 0 {
		return fmt.Errorf("%w: volatility window must be positive, got %d", domain.ErrInvalidConfig, c.VolatilityWindow)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("%w: epsilon must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// Engine scores price series
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates a scoring engine
func NewEngine(cfg Config, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "scoring").Logger(),
	}, nil
}

// Score computes both rolling scores for every observation. Windows are
// formed per symbol over the symbol's own rows in date order. The result is
// ordered by date, keeping the input order within a date.
//
// Symbols are scored concurrently; each goroutine only writes the output slots
// of its own symbol.
func (e *Engine) Score(ctx context.Context, prices []domain.PriceObservation) ([]domain.ScoredObservation, error) {
	timer := utils.NewTimer("score", e.log)
	defer timer.Stop()

	out := make([]domain.ScoredObservation, len(prices))
	for i, p := range prices {
		out[i] = domain.ScoredObservation{PriceObservation: p}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	bySymbol := make(map[string][]int)
	order := make([]string, 0)
	for i, obs := range out {
		if _, ok := bySymbol[obs.Symbol]; !ok {
			order = append(order, obs.Symbol)
		}
		bySymbol[obs.Symbol] = append(bySymbol[obs.Symbol], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)

	for _, symbol := range order {
		idx := bySymbol[symbol]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.scoreSymbol(out, idx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring cancelled: %w", err)
	}

	e.log.Debug().
		Int("observations", len(out)).
		Int("symbols", len(order)).
		Msg("Scored price series")

	return out, nil
}

func (e *Engine) scoreSymbol(out []domain.ScoredObservation, idx []int) {
	closes := make([]float64, len(idx))
	for k, i := range idx {
		closes[k] = out[i].Close
	}

	for k, i := range idx {
		if k+1 >= e.cfg.MomentumWindow {
			window := closes[k+1-e.cfg.MomentumWindow : k+1]
			out[i].Momentum = formulas.MomentumScore(window)
			if hasNonPositive(window) {
				e.log.Warn().
					Str("symbol", out[i].Symbol).
					Str("date", out[i].Date.Format(domain.DateLayout)).
					Float64("momentum", formulas.NonPositiveMomentum).
					Msg("Non-positive price in momentum window")
			}
		}

		if k+1 >= e.cfg.VolatilityWindow {
			window := closes[k+1-e.cfg.VolatilityWindow : k+1]
			inv, degenerate := formulas.InverseVolatility(window, e.cfg.Epsilon)
			out[i].InverseVolatility = inv
			if degenerate {
				ev := e.log.Warn().
					Str("symbol", out[i].Symbol).
					Str("date", out[i].Date.Format(domain.DateLayout))
				if inv != nil {
					ev = ev.Float64("inverse_volatility", *inv)
				}
				ev.Msg("Zero volatility window")
			}
		}
	}
}

func hasNonPositive(prices []float64) bool {
	for _, p := range prices {
		if p <= 0 {
			return true
		}
	}
	return false
}
