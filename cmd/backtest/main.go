// Package main is the command line entry point of the momentum backtester.
//
//	backtest run      simulate one parameter set and store the results
//	backtest grid     simulate every combination of a YAML plan
//	backtest prepare  restrict a raw price table to index constituents
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/pkg/logger"
)

const version = "v1.0.0"

var (
	cfg *config.Config
	log zerolog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "backtest",
		Short:         "Momentum-ranked equity backtester",
		Long:          "Ranks symbols by regression momentum, holds the top N weighted by inverse volatility and replays the strategy day by day with FIFO tax accounting.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.LogLevel = logLevel
			}
			cfg = loaded
			log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
			logger.SetGlobalLogger(log)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")

	rootCmd.AddCommand(newRunCmd(), newGridCmd(), newPrepareCmd())
	return rootCmd
}
