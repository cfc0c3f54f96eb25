package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"

	"github.com/aristath/backtester/internal/modules/grid"
)

func newGridCmd() *cobra.Command {
	var (
		inputs     inputFlags
		sinks      sinkFlags
		planPath   string
		parallel   int
		writeFiles bool
		summary    string
		pushURL    string
	)

	cmd := &cobra.Command{
		Use:     "grid",
		Short:   "Simulate every parameter combination of a plan",
		Example: `  backtest grid --data prices.csv --plan grid.yaml --parallel 8 --summary grid.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := grid.LoadPlan(planPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			prices, err := inputs.load()
			if err != nil {
				return err
			}

			pipeline, closeFn, err := newPipeline(ctx, sinks, writeFiles)
			if err != nil {
				return err
			}
			defer closeFn()

			if parallel <= 0 {
				parallel = cfg.Backtest.Parallelism
			}
			reg := prometheus.NewRegistry()
			metrics := grid.NewMetrics(reg)
			runner := grid.NewRunner(pipeline, parallel, metrics, log)

			summaries, err := runner.Run(ctx, plan, prices)
			if pushURL != "" {
				if perr := push.New(pushURL, "backtest_grid").Gatherer(reg).Push(); perr != nil {
					log.Warn().Err(perr).Str("url", pushURL).Msg("Failed to push grid metrics")
				}
			}
			if err != nil {
				return fmt.Errorf("grid search failed: %w", err)
			}

			if summary == "" {
				summary = filepath.Join(cfg.OutputDir, "grid_summary.csv")
			}
			file, err := os.Create(summary)
			if err != nil {
				return fmt.Errorf("failed to create summary: %w", err)
			}
			defer file.Close()
			if err := grid.WriteSummary(file, summaries); err != nil {
				return fmt.Errorf("failed to write summary: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d runs, summary written to %s\n", len(summaries), summary)
			return nil
		},
	}

	inputs.register(cmd)
	sinks.register(cmd)
	cmd.Flags().StringVar(&planPath, "plan", "", "YAML grid plan")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "Concurrent runs (default from BACKTEST_PARALLELISM, else GOMAXPROCS)")
	cmd.Flags().BoolVar(&writeFiles, "write-files", false, "Write the result files of every run")
	cmd.Flags().StringVar(&summary, "summary", "", "Summary CSV path (default <output dir>/grid_summary.csv)")
	cmd.Flags().StringVar(&pushURL, "pushgateway", "", "Prometheus Pushgateway URL for grid metrics")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}
