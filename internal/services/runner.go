// Package services wires the ranking, assignment and simulation modules into
// complete backtest runs.
package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/modules/ledger"
	"github.com/aristath/backtester/internal/modules/scoring"
	"github.com/aristath/backtester/internal/modules/strategy"
	"github.com/aristath/backtester/internal/utils"
	"github.com/aristath/backtester/pkg/formulas"
)

// ArtifactWriter writes the flat-file output of a run
type ArtifactWriter interface {
	Write(label string, res *backtest.Result) ([]string, error)
}

// RunStore persists completed runs
type RunStore interface {
	SaveRun(ctx context.Context, run domain.RunSummary, res *backtest.Result) error
}

// ArtifactPublisher archives written files under a run ID
type ArtifactPublisher interface {
	Publish(ctx context.Context, runID string, files []string) ([]string, error)
}

// RunnerConfig holds the settings shared by every run of a Runner
type RunnerConfig struct {
	Rates ledger.Rates
	// Epsilon is added to the volatility before inverting it.
	Epsilon float64
	// Parallelism bounds the per-symbol scoring goroutines; 0 uses GOMAXPROCS.
	Parallelism int
	// RiskFreeRate is subtracted from the total return in the Sharpe ratio.
	RiskFreeRate float64
}

// DefaultRunnerConfig returns the default fees, epsilon and risk free rate
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Rates:        ledger.DefaultRates(),
		Epsilon:      formulas.DefaultVolatilityEpsilon,
		RiskFreeRate: formulas.DefaultRiskFreeRate,
	}
}

// Result is a completed run
type Result struct {
	Summary  domain.RunSummary
	Backtest *backtest.Result
	// Files are the paths written by the ArtifactWriter, if any.
	Files []string
	// Keys are the object keys written by the ArtifactPublisher, if any.
	Keys []string
}

// Runner executes the scoring → assignment → simulation pipeline.
// Writer, store and publisher are optional.
type Runner struct {
	cfg       RunnerConfig
	writer    ArtifactWriter
	store     RunStore
	publisher ArtifactPublisher
	now       func() time.Time
	log       zerolog.Logger
}

// NewRunner creates a pipeline runner
func NewRunner(
	cfg RunnerConfig,
	writer ArtifactWriter,
	store RunStore,
	publisher ArtifactPublisher,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		cfg:       cfg,
		writer:    writer,
		store:     store,
		publisher: publisher,
		now:       time.Now,
		log:       log.With().Str("service", "runner").Logger(),
	}
}

// Simulate runs the pipeline without touching any sink. prices is not
// modified.
func (r *Runner) Simulate(ctx context.Context, params domain.RunParams, prices []domain.PriceObservation) (*Result, error) {
	engine, err := scoring.NewEngine(scoring.Config{
		MomentumWindow:   params.MomentumWindow,
		VolatilityWindow: params.VolatilityWindow,
		Epsilon:          r.cfg.Epsilon,
		Parallelism:      r.cfg.Parallelism,
	}, r.log)
	if err != nil {
		return nil, err
	}

	assigner, err := strategy.NewAssigner(strategy.Config{
		NumStocks:         params.NumStocks,
		DrawdownThreshold: params.DrawdownThreshold,
	}, r.log)
	if err != nil {
		return nil, err
	}

	scored, err := engine.Score(ctx, prices)
	if err != nil {
		return nil, fmt.Errorf("failed to score prices: %w", err)
	}
	// Scores keep the history before the start date; actions begin after it so
	// the first kept ranked date opens every position with a buy.
	scored = afterStart(scored, params.StartDate)

	actions, err := assigner.Assign(ctx, scored)
	if err != nil {
		return nil, fmt.Errorf("failed to assign actions: %w", err)
	}

	sim, err := backtest.NewSimulator(backtest.Config{
		Bankroll:  params.Bankroll,
		StartDate: params.StartDate,
		BuyPrice:  orClose(params.BuyPrice),
		SellPrice: orClose(params.SellPrice),
		Rates:     r.cfg.Rates,
	}, actions, r.log)
	if err != nil {
		return nil, err
	}

	res, err := sim.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate: %w", err)
	}

	summary := domain.RunSummary{
		ID:        uuid.New().String(),
		CreatedAt: r.now().UTC().Truncate(time.Second),
		Params:    params,
		Metrics:   ComputeMetrics(res.Totals(), r.cfg.RiskFreeRate),
	}
	if n := len(res.States); n > 0 {
		summary.FirstDate = res.States[0].Date
		summary.LastDate = res.States[n-1].Date
		summary.FinalTotal = res.States[n-1].Total
	}

	return &Result{Summary: summary, Backtest: res}, nil
}

// Run simulates params over prices and hands the result to the configured
// sinks. The label of the written files defaults to the run ID.
func (r *Runner) Run(ctx context.Context, params domain.RunParams, prices []domain.PriceObservation) (*Result, error) {
	timer := utils.NewTimer("backtest_run", r.log)
	defer timer.Stop()

	result, err := r.Simulate(ctx, params, prices)
	if err != nil {
		return nil, err
	}
	runID := result.Summary.ID

	if r.writer != nil {
		label := params.Label
		if label == "" {
			label = runID
		}
		result.Files, err = r.writer.Write(label, result.Backtest)
		if err != nil {
			return nil, fmt.Errorf("failed to write results of run %s: %w", runID, err)
		}
	}

	if r.store != nil {
		if err := r.store.SaveRun(ctx, result.Summary, result.Backtest); err != nil {
			return nil, err
		}
	}

	if r.publisher != nil && len(result.Files) > 0 {
		result.Keys, err = r.publisher.Publish(ctx, runID, result.Files)
		if err != nil {
			return nil, fmt.Errorf("failed to publish run %s: %w", runID, err)
		}
	}

	r.log.Info().
		Str("run_id", runID).
		Str("label", params.Label).
		Int("days", len(result.Backtest.States)).
		Float64("final_total", result.Summary.FinalTotal).
		Float64("sharpe", result.Summary.Metrics.SharpeRatio).
		Msg("Backtest completed")

	return result, nil
}

// ComputeMetrics summarizes a daily totals series. Undefined statistics
// (too few days) are reported as 0.
func ComputeMetrics(totals []domain.DailyTotal, riskFree float64) domain.Metrics {
	if len(totals) == 0 {
		return domain.Metrics{}
	}

	values := make([]float64, len(totals))
	for i, t := range totals {
		values[i] = t.Total
	}
	maxDrawdown, _ := formulas.CalculateMaxDrawdown(values)

	return domain.Metrics{
		PercentReturn:    finite(formulas.PercentReturn(values)),
		AnnualReturn:     finite(formulas.AnnualReturn(totals[0].Date, totals[len(totals)-1].Date, values)),
		AnnualVolatility: finite(formulas.AnnualVolatility(values)),
		SharpeRatio:      finite(formulas.SharpeRatio(values, riskFree)),
		MaxDrawdown:      finite(maxDrawdown),
		Stability:        finite(formulas.Stability(values)),
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// afterStart keeps the observations dated strictly after start. A zero start
// keeps everything.
func afterStart(scored []domain.ScoredObservation, start time.Time) []domain.ScoredObservation {
	if start.IsZero() {
		return scored
	}
	start = domain.Day(start)
	out := make([]domain.ScoredObservation, 0, len(scored))
	for _, obs := range scored {
		if domain.Day(obs.Date).After(start) {
			out = append(out, obs)
		}
	}
	return out
}

func orClose(f domain.PriceField) domain.PriceField {
	if f == "" {
		return domain.PriceClose
	}
	return f
}
