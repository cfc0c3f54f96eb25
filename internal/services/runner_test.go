package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/backtest"
	testingpkg "github.com/aristath/backtester/internal/testing"
)

type fakeWriter struct {
	labels []string
}

func (w *fakeWriter) Write(label string, _ *backtest.Result) ([]string, error) {
	w.labels = append(w.labels, label)
	return []string{label + "_totals.csv"}, nil
}

type fakeStore struct {
	runs []domain.RunSummary
	err  error
}

func (s *fakeStore) SaveRun(_ context.Context, run domain.RunSummary, _ *backtest.Result) error {
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, run)
	return nil
}

type fakePublisher struct {
	runIDs []string
	files  [][]string
}

func (p *fakePublisher) Publish(_ context.Context, runID string, files []string) ([]string, error) {
	p.runIDs = append(p.runIDs, runID)
	p.files = append(p.files, files)
	return []string{"prefix/" + runID}, nil
}

func testParams() domain.RunParams {
	return domain.RunParams{
		MomentumWindow:    5,
		VolatilityWindow:  5,
		NumStocks:         2,
		DrawdownThreshold: -1000,
		Bankroll:          10000,
	}
}

func testPrices() []domain.PriceObservation {
	return testingpkg.NewPriceFixtures([]string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}, 60)
}

func TestRunner_Simulate(t *testing.T) {
	runner := NewRunner(DefaultRunnerConfig(), nil, nil, nil, zerolog.Nop())
	prices := testPrices()
	original := append([]domain.PriceObservation(nil), prices...)

	res, err := runner.Simulate(context.Background(), testParams(), prices)
	require.NoError(t, err)
	assert.Equal(t, original, prices, "input must not be modified")

	_, err = uuid.Parse(res.Summary.ID)
	require.NoError(t, err)

	states := res.Backtest.States
	require.NotEmpty(t, states)
	assert.Equal(t, states[0].Date, res.Summary.FirstDate)
	assert.Equal(t, states[len(states)-1].Date, res.Summary.LastDate)
	assert.Equal(t, states[len(states)-1].Total, res.Summary.FinalTotal)
	for _, s := range states {
		assert.InDelta(t, s.Cash+s.Investments, s.Total, 1e-6, s.Date.String())
		assert.LessOrEqual(t, len(s.Holdings), 2)
	}
	assert.NotEmpty(t, res.Backtest.Ledger)
}

func TestRunner_SimulateIsDeterministic(t *testing.T) {
	runner := NewRunner(DefaultRunnerConfig(), nil, nil, nil, zerolog.Nop())

	first, err := runner.Simulate(context.Background(), testParams(), testPrices())
	require.NoError(t, err)
	second, err := runner.Simulate(context.Background(), testParams(), testPrices())
	require.NoError(t, err)

	assert.NotEqual(t, first.Summary.ID, second.Summary.ID)
	assert.Equal(t, first.Backtest.States, second.Backtest.States)
	assert.Equal(t, first.Backtest.Ledger, second.Backtest.Ledger)
	assert.Equal(t, first.Summary.Metrics, second.Summary.Metrics)
}

func TestRunner_SimulateMidSeriesStartDate(t *testing.T) {
	runner := NewRunner(DefaultRunnerConfig(), nil, nil, nil, zerolog.Nop())
	prices := testingpkg.NewPriceFixtures([]string{"AAA", "BBB", "CCC", "DDD", "EEE"}, 60)
	params := domain.RunParams{
		MomentumWindow:    10,
		VolatilityWindow:  10,
		NumStocks:         2,
		DrawdownThreshold: -1000,
		Bankroll:          10000,
	}

	full, err := runner.Simulate(context.Background(), params, prices)
	require.NoError(t, err)

	start := time.Date(2020, 2, 17, 0, 0, 0, 0, time.UTC)
	params.StartDate = start
	res, err := runner.Simulate(context.Background(), params, prices)
	require.NoError(t, err)

	states := res.Backtest.States
	require.NotEmpty(t, states)
	assert.Less(t, len(states), len(full.Backtest.States))
	first := states[0]
	assert.True(t, first.Date.After(start), first.Date.String())
	assert.InDelta(t, params.Bankroll, first.Total, 1e-6)
	assert.GreaterOrEqual(t, first.Cash, 0.0)
	assert.LessOrEqual(t, len(first.Holdings), 2)

	for _, e := range res.Backtest.Executions {
		if e.Date.Equal(first.Date) {
			assert.Equal(t, domain.ActionBuy, e.Action, e.Symbol)
		}
	}
	for _, s := range states {
		assert.InDelta(t, s.Cash+s.Investments, s.Total, 1e-6, s.Date.String())
	}
}

func TestRunner_RunUsesSinks(t *testing.T) {
	writer := &fakeWriter{}
	store := &fakeStore{}
	publisher := &fakePublisher{}
	runner := NewRunner(DefaultRunnerConfig(), writer, store, publisher, zerolog.Nop())

	params := testParams()
	params.Label = "momentum"
	res, err := runner.Run(context.Background(), params, testPrices())
	require.NoError(t, err)

	assert.Equal(t, []string{"momentum"}, writer.labels)
	require.Len(t, store.runs, 1)
	assert.Equal(t, res.Summary, store.runs[0])
	assert.Equal(t, []string{res.Summary.ID}, publisher.runIDs)
	assert.Equal(t, [][]string{{"momentum_totals.csv"}}, publisher.files)
	assert.Equal(t, []string{"momentum_totals.csv"}, res.Files)
	assert.Equal(t, []string{"prefix/" + res.Summary.ID}, res.Keys)
}

func TestRunner_RunDefaultsLabelToID(t *testing.T) {
	writer := &fakeWriter{}
	runner := NewRunner(DefaultRunnerConfig(), writer, nil, nil, zerolog.Nop())

	res, err := runner.Run(context.Background(), testParams(), testPrices())
	require.NoError(t, err)
	assert.Equal(t, []string{res.Summary.ID}, writer.labels)
}

func TestRunner_RunStoreFailure(t *testing.T) {
	publisher := &fakePublisher{}
	store := &fakeStore{err: errors.New("disk full")}
	runner := NewRunner(DefaultRunnerConfig(), &fakeWriter{}, store, publisher, zerolog.Nop())

	_, err := runner.Run(context.Background(), testParams(), testPrices())
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, publisher.runIDs)
}

func TestRunner_InvalidParams(t *testing.T) {
	runner := NewRunner(DefaultRunnerConfig(), nil, nil, nil, zerolog.Nop())

	tests := []struct {
		name   string
		modify func(p *domain.RunParams)
	}{
		{"zero momentum window", func(p *domain.RunParams) { p.MomentumWindow = 0 }},
		{"zero stocks", func(p *domain.RunParams) { p.NumStocks = 0 }},
		{"zero bankroll", func(p *domain.RunParams) { p.Bankroll = 0 }},
		{"bad price field", func(p *domain.RunParams) { p.BuyPrice = "high" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			tt.modify(&params)
			_, err := runner.Simulate(context.Background(), params, testPrices())
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(DefaultRunnerConfig(), nil, nil, nil, zerolog.Nop())
	_, err := runner.Simulate(ctx, testParams(), testPrices())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeMetrics(t *testing.T) {
	assert.Equal(t, domain.Metrics{}, ComputeMetrics(nil, 0.02))

	day := func(d int) time.Time { return time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC) }
	m := ComputeMetrics([]domain.DailyTotal{
		{Date: day(1), Total: 100},
		{Date: day(2), Total: 120},
		{Date: day(3), Total: 90},
		{Date: day(4), Total: 110},
	}, 0.02)

	assert.InDelta(t, 0.1, m.PercentReturn, 1e-12)
	assert.InDelta(t, -0.25, m.MaxDrawdown, 1e-9)
	assert.Greater(t, m.AnnualVolatility, 0.0)
	assert.Greater(t, m.Stability, 0.0)
}
