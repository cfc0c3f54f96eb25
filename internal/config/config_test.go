package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtester/internal/domain"
)

// chdirTemp keeps a stray .env in the working directory out of the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	dataDir := filepath.Join(t.TempDir(), "data")
	t.Setenv("BACKTEST_DATA_DIR", dataDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "results.db"), cfg.ResultsDBPath)
	assert.Equal(t, filepath.Join(dataDir, "results"), cfg.OutputDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Port)

	b := cfg.Backtest
	assert.Equal(t, 10000.0, b.Bankroll)
	assert.Equal(t, 14, b.MomentumWindow)
	assert.Equal(t, 14, b.VolatilityWindow)
	assert.Equal(t, 4, b.NumStocks)
	assert.Equal(t, 40.0, b.DrawdownThreshold)
	assert.Equal(t, "", b.StartDate)
	assert.Equal(t, domain.PriceClose, b.BuyPrice)
	assert.Equal(t, domain.PriceClose, b.SellPrice)
	assert.Equal(t, 0.0000051, b.Rates.FinraFee)
	assert.Equal(t, 0.000119, b.Rates.AggregateSaleFee)
	assert.Equal(t, 0.22, b.Rates.Tax)
	assert.False(t, cfg.S3.Enabled())
}

func TestLoad_Environment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BACKTEST_DATA_DIR", t.TempDir())
	t.Setenv("BACKTEST_BANKROLL", "2500.5")
	t.Setenv("BACKTEST_NUM_STOCKS", "6")
	t.Setenv("BACKTEST_START_DATE", "2015-06-01")
	t.Setenv("BACKTEST_BUY_PRICE", "open")
	t.Setenv("BACKTEST_TAX_RATE", "0")
	t.Setenv("BACKTEST_S3_BUCKET", "archive")
	t.Setenv("BACKTEST_MOMENTUM_WINDOW", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2500.5, cfg.Backtest.Bankroll)
	assert.Equal(t, 6, cfg.Backtest.NumStocks)
	assert.Equal(t, 14, cfg.Backtest.MomentumWindow, "unparseable values fall back to the default")
	assert.Equal(t, domain.PriceOpen, cfg.Backtest.BuyPrice)
	assert.Equal(t, 0.0, cfg.Backtest.Rates.Tax)
	assert.True(t, cfg.S3.Enabled())

	params := cfg.Backtest.Params("env")
	assert.Equal(t, "env", params.Label)
	assert.Equal(t, time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC), params.StartDate)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("BACKTEST_DATA_DIR", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BACKTEST_DRAWDOWN_THRESHOLD=12.5\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("BACKTEST_DRAWDOWN_THRESHOLD") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12.5, cfg.Backtest.DrawdownThreshold)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port: 8080,
			Backtest: BacktestConfig{
				Bankroll: 1, MomentumWindow: 1, VolatilityWindow: 1, NumStocks: 1,
				BuyPrice: domain.PriceClose, SellPrice: domain.PriceOpen,
			},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"bankroll", func(c *Config) { c.Backtest.Bankroll = 0 }},
		{"window", func(c *Config) { c.Backtest.VolatilityWindow = -1 }},
		{"stocks", func(c *Config) { c.Backtest.NumStocks = 0 }},
		{"negative fee", func(c *Config) { c.Backtest.Rates.FinraFee = -0.1 }},
		{"price field", func(c *Config) { c.Backtest.SellPrice = "mid" }},
		{"port", func(c *Config) { c.Port = 0 }},
		{"start date", func(c *Config) { c.Backtest.StartDate = "2015/06/01" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfig)
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{
		DataDir:       filepath.Join(root, "data"),
		OutputDir:     filepath.Join(root, "data", "out"),
		ResultsDBPath: filepath.Join(root, "db", "results.db"),
	}
	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, cfg.OutputDir)
	assert.DirExists(t, filepath.Join(root, "db"))
}
