package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/results"
	"github.com/aristath/backtester/internal/modules/universe"
	"github.com/aristath/backtester/internal/services"
)

// inputFlags selects the price table and its optional filters
type inputFlags struct {
	data     string
	calendar string
	listing  string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.data, "data", "", "Price table CSV (symbol,date,open,close)")
	cmd.Flags().StringVar(&f.calendar, "calendar", "", "Trading calendar file, one YYYY-MM-DD date per line")
	cmd.Flags().StringVar(&f.listing, "listing", "", "Index constituent changes CSV used to drop unlisted prices")
	_ = cmd.MarkFlagRequired("data")
}

// load reads the price table and applies the listing and calendar filters
func (f *inputFlags) load() ([]domain.PriceObservation, error) {
	prices, err := readPrices(f.data)
	if err != nil {
		return nil, err
	}

	if f.listing != "" {
		changes, err := readListing(f.listing)
		if err != nil {
			return nil, err
		}
		before := len(prices)
		prices = universe.FilterByListing(changes, prices)
		log.Info().Int("before", before).Int("after", len(prices)).Msg("Applied listing filter")
	}

	if f.calendar != "" {
		file, err := os.Open(f.calendar)
		if err != nil {
			return nil, fmt.Errorf("failed to open calendar: %w", err)
		}
		defer file.Close()
		cal, err := universe.LoadCalendar(file)
		if err != nil {
			return nil, err
		}
		prices = cal.Filter(prices, log)
	}

	log.Info().
		Int("rows", len(prices)).
		Int("symbols", len(universe.Symbols(prices))).
		Msg("Prices loaded")
	return prices, nil
}

func readPrices(path string) ([]domain.PriceObservation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prices: %w", err)
	}
	defer file.Close()
	return universe.LoadPrices(file, log)
}

func readListing(path string) ([]universe.ListingChange, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing: %w", err)
	}
	defer file.Close()
	return universe.LoadListing(file)
}

// sinkFlags selects where results go
type sinkFlags struct {
	out     string
	noStore bool
	publish bool
}

func (f *sinkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.out, "out", "", "Directory for result files (default from BACKTEST_OUTPUT_DIR)")
	cmd.Flags().BoolVar(&f.noStore, "no-store", false, "Do not save runs in the results database")
	cmd.Flags().BoolVar(&f.publish, "publish", false, "Upload result files to the configured S3 bucket")
}

// newPipeline builds a runner with the selected sinks. The returned function
// releases the results database.
func newPipeline(ctx context.Context, sinks sinkFlags, writeFiles bool) (*services.Runner, func(), error) {
	var (
		writer    services.ArtifactWriter
		store     services.RunStore
		publisher services.ArtifactPublisher
		closeFn   = func() {}
	)

	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, err
	}

	if writeFiles {
		dir := cfg.OutputDir
		if sinks.out != "" {
			dir = sinks.out
		}
		writer = results.NewWriter(dir, log)
	}

	if !sinks.noStore {
		db, err := database.New(database.Config{
			Path:    cfg.ResultsDBPath,
			Profile: database.ProfileStandard,
			Name:    "results",
		})
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		store = results.NewRepository(db.Conn(), log)
		closeFn = func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close results database")
			}
		}
	}

	if sinks.publish {
		if !cfg.S3.Enabled() {
			closeFn()
			return nil, nil, fmt.Errorf("--publish requires BACKTEST_S3_BUCKET")
		}
		p, err := results.NewS3Publisher(ctx, cfg.S3, log)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		publisher = p
	}

	runnerCfg := services.DefaultRunnerConfig()
	runnerCfg.Rates = cfg.Backtest.Rates
	runnerCfg.Parallelism = cfg.Backtest.Parallelism

	return services.NewRunner(runnerCfg, writer, store, publisher, log), closeFn, nil
}
