package grid

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/services"
	"github.com/aristath/backtester/internal/utils"
)

// Backtester runs one parameter set over a price table
type Backtester interface {
	Run(ctx context.Context, params domain.RunParams, prices []domain.PriceObservation) (*services.Result, error)
}

// Runner executes plans with bounded parallelism
type Runner struct {
	backtester Backtester
	parallel   int
	metrics    *Metrics
	log        zerolog.Logger
}

// NewRunner creates a grid runner. parallel <= 0 uses GOMAXPROCS; metrics
// may be nil.
func NewRunner(backtester Backtester, parallel int, metrics *Metrics, log zerolog.Logger) *Runner {
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}
	return &Runner{
		backtester: backtester,
		parallel:   parallel,
		metrics:    metrics,
		log:        log.With().Str("component", "grid").Logger(),
	}
}

// Run executes every combination of plan and returns the summaries in plan
// order. Each run gets its own copy of prices. The first failure cancels the
// runs still pending and is returned.
func (r *Runner) Run(ctx context.Context, plan *Plan, prices []domain.PriceObservation) ([]domain.RunSummary, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	timer := utils.NewTimer("grid_search", r.log)
	defer timer.Stop()

	params := plan.Expand()
	summaries := make([]domain.RunSummary, len(params))

	r.log.Info().
		Int("runs", len(params)).
		Int("parallel", r.parallel).
		Msg("Starting grid search")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for i, p := range params {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			own := make([]domain.PriceObservation, len(prices))
			copy(own, prices)

			summary, err := r.runOne(gctx, p, own)
			if err != nil {
				return fmt.Errorf("run %s: %w", p.Label, err)
			}
			summaries[i] = summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.log.Info().Int("runs", len(summaries)).Msg("Grid search completed")
	return summaries, nil
}

func (r *Runner) runOne(ctx context.Context, params domain.RunParams, prices []domain.PriceObservation) (domain.RunSummary, error) {
	start := time.Now()
	if r.metrics != nil {
		r.metrics.ActiveRuns.Inc()
		defer r.metrics.ActiveRuns.Dec()
	}

	res, err := r.backtester.Run(ctx, params, prices)
	if r.metrics != nil {
		r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.RunsTotal.WithLabelValues("error").Inc()
		}
		return domain.RunSummary{}, err
	}

	if r.metrics != nil {
		r.metrics.RunsTotal.WithLabelValues("ok").Inc()
		r.metrics.FinalTotal.WithLabelValues(params.Label).Set(res.Summary.FinalTotal)
	}

	r.log.Debug().
		Str("label", params.Label).
		Str("run_id", res.Summary.ID).
		Float64("final_total", res.Summary.FinalTotal).
		Msg("Grid run completed")

	return res.Summary, nil
}

// WriteSummary writes one CSV row per run with its parameters and metrics
func WriteSummary(w io.Writer, summaries []domain.RunSummary) error {
	cw := csv.NewWriter(w)
	header := []string{
		"run_id", "label", "momentum_window", "volatility_window", "num_stocks",
		"drawdown_threshold", "final_total", "percent_return", "annual_return",
		"annual_volatility", "sharpe_ratio", "max_drawdown", "stability",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, s := range summaries {
		row := []string{
			s.ID,
			s.Params.Label,
			strconv.Itoa(s.Params.MomentumWindow),
			strconv.Itoa(s.Params.VolatilityWindow),
			strconv.Itoa(s.Params.NumStocks),
			f(s.Params.DrawdownThreshold),
			f(s.FinalTotal),
			f(s.Metrics.PercentReturn),
			f(s.Metrics.AnnualReturn),
			f(s.Metrics.AnnualVolatility),
			f(s.Metrics.SharpeRatio),
			f(s.Metrics.MaxDrawdown),
			f(s.Metrics.Stability),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
