package results

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtester/internal/domain"
	testingpkg "github.com/aristath/backtester/internal/testing"
)

func sampleSummary(id string, created time.Time) domain.RunSummary {
	return domain.RunSummary{
		ID:        id,
		CreatedAt: created,
		Params: domain.RunParams{
			Label:             "momentum",
			MomentumWindow:    14,
			VolatilityWindow:  14,
			NumStocks:         2,
			DrawdownThreshold: 40,
			Bankroll:          1000,
		},
		FirstDate:  date(7),
		LastDate:   date(10),
		FinalTotal: 2160,
		Metrics:    domain.Metrics{PercentReturn: 1.16, SharpeRatio: 0.5},
	}
}

func TestRepository_SaveAndGet(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "results")
	defer cleanup()

	repo := NewRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()
	created := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveRun(ctx, sampleSummary("run-1", created), sampleResult()))

	run, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, sampleSummary("run-1", created), *run)

	missing, err := repo.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	totals, err := repo.GetDailyTotals(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []DailyRow{
		{Date: "2020-05-07", Cash: 10, Investments: 990, Total: 1000},
		{Date: "2020-05-10", Cash: 60, Investments: 2100, Total: 2160},
	}, totals)
}

func TestRepository_LedgerAndExecutions(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "results")
	defer cleanup()

	repo := NewRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, repo.SaveRun(ctx, sampleSummary("run-1", time.Now()), sampleResult()))

	all, err := repo.GetLedger(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Nil(t, all[0].Gain)

	onlyA, err := repo.GetLedger(ctx, "run-1", "A")
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, "sell", onlyA[1].Action)
	require.NotNil(t, onlyA[1].Gain)
	assert.Equal(t, 900.0, *onlyA[1].Gain)
	assert.Equal(t, int64(0), onlyA[0].RemainingShares)

	day2, err := repo.GetExecutions(ctx, "run-1", "2020-05-10")
	require.NoError(t, err)
	require.Len(t, day2, 3)
	assert.Equal(t, []string{"A", "C", "B"}, []string{day2[0].Symbol, day2[1].Symbol, day2[2].Symbol})
	assert.Nil(t, day2[0].Weight)
	assert.Equal(t, int64(34), day2[2].NumShares)
}

func TestRepository_ListAndDelete(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "results")
	defer cleanup()

	repo := NewRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()
	older := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveRun(ctx, sampleSummary("old", older), sampleResult()))
	require.NoError(t, repo.SaveRun(ctx, sampleSummary("new", older.Add(time.Hour)), sampleResult()))

	runs, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)

	require.Error(t, repo.SaveRun(ctx, sampleSummary("new", older), sampleResult()), "duplicate run id")

	require.NoError(t, repo.DeleteRun(ctx, "old"))
	runs, err = repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	totals, err := repo.GetDailyTotals(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, totals)
}
