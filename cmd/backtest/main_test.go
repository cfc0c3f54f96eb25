package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtester/internal/modules/universe"
	testingpkg "github.com/aristath/backtester/internal/testing"
)

func writePriceFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "prices.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	prices := testingpkg.NewPriceFixtures([]string{"AAA", "BBB", "CCC", "DDD"}, 40)
	require.NoError(t, universe.WritePrices(f, prices))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("BACKTEST_DATA_DIR", filepath.Join(t.TempDir(), "data"))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	out := execute(t, "run",
		"--data", writePriceFile(t, dir),
		"--out", dir,
		"--momentum", "5", "--volatility", "5",
		"--num-stocks", "2", "--drawdown", "-1000",
		"--label", "cli",
	)

	assert.Contains(t, out, "final total")
	assert.FileExists(t, filepath.Join(dir, "cli_backtest.csv"))
	assert.FileExists(t, filepath.Join(dir, "cli_daily_state.msgpack"))

	totals := readRows(t, filepath.Join(dir, "cli_totals.csv"))
	assert.Greater(t, len(totals), 1)
}

func TestRunCommand_InvalidFlag(t *testing.T) {
	t.Setenv("BACKTEST_DATA_DIR", t.TempDir())
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--data", writePriceFile(t, t.TempDir()), "--no-store", "--num-stocks", "0"})
	assert.Error(t, cmd.Execute())
}

func TestGridCommand(t *testing.T) {
	dir := t.TempDir()
	plan := filepath.Join(dir, "grid.yaml")
	require.NoError(t, os.WriteFile(plan, []byte(`
momentum_windows: [5, 8]
volatility_windows: [5]
num_stocks: [1, 2]
drawdown_thresholds: [-1000]
bankroll: 5000
`), 0644))
	summary := filepath.Join(dir, "summary.csv")

	out := execute(t, "grid",
		"--data", writePriceFile(t, dir),
		"--plan", plan,
		"--parallel", "2",
		"--no-store",
		"--summary", summary,
	)

	assert.Contains(t, out, "4 runs")
	rows := readRows(t, summary)
	require.Len(t, rows, 5)
	assert.Equal(t, "grid_m5_v5_n1_d-1000", rows[1][1])
}

func TestPrepareCommand(t *testing.T) {
	dir := t.TempDir()
	listing := filepath.Join(dir, "listing.csv")
	require.NoError(t, os.WriteFile(listing, []byte(
		"date,symbol,addedSecurity,removedTicker\n2020-01-06,AAA,AAA Corp,\n2020-01-06,CCC,CCC Corp,\n"), 0644))
	out := filepath.Join(dir, "filtered.csv")

	execute(t, "prepare",
		"--prices", writePriceFile(t, dir),
		"--listing", listing,
		"--out", out,
	)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	prices, err := universe.LoadPrices(f, log)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "CCC"}, universe.Symbols(prices))
	assert.Len(t, prices, 80)
}
