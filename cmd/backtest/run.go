package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/backtester/internal/domain"
)

func newRunCmd() *cobra.Command {
	var (
		inputs inputFlags
		sinks  sinkFlags
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate one parameter set",
		Example: `  backtest run --data prices.csv --listing sp500_changes.csv \
    --momentum 90 --volatility 20 --num-stocks 10 --drawdown 40 --label sp500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := paramsFromFlags(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			prices, err := inputs.load()
			if err != nil {
				return err
			}

			runner, closeFn, err := newPipeline(ctx, sinks, true)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := runner.Run(ctx, params, prices)
			if err != nil {
				log.Error().Err(err).Msg("Backtest failed")
				return fmt.Errorf("backtest failed: %w", err)
			}

			s := res.Summary
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s (%s)\n", s.ID, s.Params.Label)
			fmt.Fprintf(out, "  period        %s .. %s\n", s.FirstDate.Format(domain.DateLayout), s.LastDate.Format(domain.DateLayout))
			fmt.Fprintf(out, "  final total   %.2f\n", s.FinalTotal)
			fmt.Fprintf(out, "  return        %.2f%%\n", s.Metrics.PercentReturn*100)
			fmt.Fprintf(out, "  annual return %.2f\n", s.Metrics.AnnualReturn)
			fmt.Fprintf(out, "  sharpe        %.3f\n", s.Metrics.SharpeRatio)
			fmt.Fprintf(out, "  max drawdown  %.3f\n", s.Metrics.MaxDrawdown)
			for _, f := range res.Files {
				fmt.Fprintf(out, "  wrote %s\n", f)
			}
			return nil
		},
	}

	inputs.register(cmd)
	sinks.register(cmd)
	cmd.Flags().Int("momentum", 0, "Momentum window in days (default from config)")
	cmd.Flags().Int("volatility", 0, "Volatility window in days (default from config)")
	cmd.Flags().Int("num-stocks", 0, "Number of symbols held (default from config)")
	cmd.Flags().Float64("drawdown", 0, "Minimum momentum for new buys (default from config)")
	cmd.Flags().Float64("bankroll", 0, "Starting cash (default from config)")
	cmd.Flags().String("start", "", "Ignore actions on or before this YYYY-MM-DD date")
	cmd.Flags().String("buy-price", "", "Price field for buys (open|close)")
	cmd.Flags().String("sell-price", "", "Price field for sells (open|close)")
	cmd.Flags().String("label", "momentum", "Prefix of the result files")
	return cmd
}

// paramsFromFlags starts from the configured defaults and applies every flag
// the user set explicitly
func paramsFromFlags(cmd *cobra.Command) (domain.RunParams, error) {
	b := cfg.Backtest
	flags := cmd.Flags()

	if flags.Changed("momentum") {
		b.MomentumWindow, _ = flags.GetInt("momentum")
	}
	if flags.Changed("volatility") {
		b.VolatilityWindow, _ = flags.GetInt("volatility")
	}
	if flags.Changed("num-stocks") {
		b.NumStocks, _ = flags.GetInt("num-stocks")
	}
	if flags.Changed("drawdown") {
		b.DrawdownThreshold, _ = flags.GetFloat64("drawdown")
	}
	if flags.Changed("bankroll") {
		b.Bankroll, _ = flags.GetFloat64("bankroll")
	}
	if flags.Changed("start") {
		b.StartDate, _ = flags.GetString("start")
	}
	if flags.Changed("buy-price") {
		v, _ := flags.GetString("buy-price")
		b.BuyPrice = domain.PriceField(v)
	}
	if flags.Changed("sell-price") {
		v, _ := flags.GetString("sell-price")
		b.SellPrice = domain.PriceField(v)
	}

	check := *cfg
	check.Backtest = b
	if err := check.Validate(); err != nil {
		return domain.RunParams{}, err
	}

	label, _ := flags.GetString("label")
	return b.Params(label), nil
}
