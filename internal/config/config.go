// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/ledger"
	"github.com/aristath/backtester/internal/modules/results"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for inputs and outputs (always absolute)
	ResultsDBPath string // SQLite results store (defaults to <DataDir>/results.db)
	OutputDir     string // Flat-file results (defaults to <DataDir>/results)
	LogLevel      string
	LogPretty     bool
	Port          int
	Backtest      BacktestConfig
	S3            results.S3Config
}

// BacktestConfig holds the default run parameters
type BacktestConfig struct {
	Bankroll          float64
	MomentumWindow    int
	VolatilityWindow  int
	NumStocks         int
	DrawdownThreshold float64
	StartDate         string // YYYY-MM-DD, empty keeps every date
	BuyPrice          domain.PriceField
	SellPrice         domain.PriceField
	Rates             ledger.Rates
	Parallelism       int // Scoring and grid goroutines, 0 uses GOMAXPROCS
}

// Params converts the defaults into the parameters of one run
func (b BacktestConfig) Params(label string) domain.RunParams {
	params := domain.RunParams{
		Label:             label,
		MomentumWindow:    b.MomentumWindow,
		VolatilityWindow:  b.VolatilityWindow,
		NumStocks:         b.NumStocks,
		DrawdownThreshold: b.DrawdownThreshold,
		Bankroll:          b.Bankroll,
		BuyPrice:          b.BuyPrice,
		SellPrice:         b.SellPrice,
	}
	if b.StartDate != "" {
		params.StartDate, _ = domain.ParseDate(b.StartDate)
	}
	return params
}

// Load reads configuration from a .env file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("BACKTEST_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	defaults := ledger.DefaultRates()
	cfg := &Config{
		DataDir:       dataDir,
		ResultsDBPath: getEnv("BACKTEST_RESULTS_DB", filepath.Join(dataDir, "results.db")),
		OutputDir:     getEnv("BACKTEST_OUTPUT_DIR", filepath.Join(dataDir, "results")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPretty:     getEnvAsBool("LOG_PRETTY", false),
		Port:          getEnvAsInt("BACKTEST_PORT", 8080),
		Backtest: BacktestConfig{
			Bankroll:          getEnvAsFloat("BACKTEST_BANKROLL", 10000),
			MomentumWindow:    getEnvAsInt("BACKTEST_MOMENTUM_WINDOW", 14),
			VolatilityWindow:  getEnvAsInt("BACKTEST_VOLATILITY_WINDOW", 14),
			NumStocks:         getEnvAsInt("BACKTEST_NUM_STOCKS", 4),
			DrawdownThreshold: getEnvAsFloat("BACKTEST_DRAWDOWN_THRESHOLD", 40),
			StartDate:         getEnv("BACKTEST_START_DATE", ""),
			BuyPrice:          domain.PriceField(getEnv("BACKTEST_BUY_PRICE", string(domain.PriceClose))),
			SellPrice:         domain.PriceField(getEnv("BACKTEST_SELL_PRICE", string(domain.PriceClose))),
			Rates: ledger.Rates{
				FinraFee:         getEnvAsFloat("BACKTEST_FINRA_FEE", defaults.FinraFee),
				AggregateSaleFee: getEnvAsFloat("BACKTEST_AGGREGATE_SALE_FEE", defaults.AggregateSaleFee),
				Tax:              getEnvAsFloat("BACKTEST_TAX_RATE", defaults.Tax),
			},
			Parallelism: getEnvAsInt("BACKTEST_PARALLELISM", 0),
		},
		S3: results.S3Config{
			Bucket:    getEnv("BACKTEST_S3_BUCKET", ""),
			Prefix:    getEnv("BACKTEST_S3_PREFIX", "backtests"),
			Region:    getEnv("BACKTEST_S3_REGION", "us-east-1"),
			Endpoint:  getEnv("BACKTEST_S3_ENDPOINT", ""),
			AccessKey: getEnv("BACKTEST_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKTEST_S3_SECRET_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the value ranges of the configuration
func (c *Config) Validate() error {
	b := c.Backtest
	switch {
	case b.Bankroll <= 0:
		return fmt.Errorf("%w: bankroll must be positive, got %v", domain.ErrInvalidConfig, b.Bankroll)
	case b.MomentumWindow <= 0 || b.VolatilityWindow <= 0:
		return fmt.Errorf("%w: windows must be positive", domain.ErrInvalidConfig)
	case b.NumStocks <= 0:
		return fmt.Errorf("%w: number of stocks must be positive, got %d", domain.ErrInvalidConfig, b.NumStocks)
	case b.Rates.FinraFee < 0 || b.Rates.AggregateSaleFee < 0 || b.Rates.Tax < 0:
		return fmt.Errorf("%w: fee and tax rates must not be negative", domain.ErrInvalidConfig)
	case !b.BuyPrice.Valid() || !b.SellPrice.Valid():
		return fmt.Errorf("%w: price fields must be open or close", domain.ErrInvalidConfig)
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: invalid port %d", domain.ErrInvalidConfig, c.Port)
	}

	if b.StartDate != "" {
		if _, err := time.Parse(domain.DateLayout, b.StartDate); err != nil {
			return fmt.Errorf("%w: start date %q is not YYYY-MM-DD", domain.ErrInvalidConfig, b.StartDate)
		}
	}

	return nil
}

// EnsureDirs creates the data and output directories
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.OutputDir, filepath.Dir(c.ResultsDBPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
