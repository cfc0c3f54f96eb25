package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/universe"
)

func newPrepareCmd() *cobra.Command {
	var (
		pricesPath   string
		listingPath  string
		calendarPath string
		weekdays     bool
		outPath      string
	)

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Restrict a raw price table to listed symbols and trading days",
		RunE: func(cmd *cobra.Command, args []string) error {
			prices, err := readPrices(pricesPath)
			if err != nil {
				return err
			}
			before := len(prices)

			changes, err := readListing(listingPath)
			if err != nil {
				return err
			}
			prices = universe.FilterByListing(changes, prices)

			var cal *universe.TradingCalendar
			switch {
			case calendarPath != "":
				file, err := os.Open(calendarPath)
				if err != nil {
					return fmt.Errorf("failed to open calendar: %w", err)
				}
				defer file.Close()
				if cal, err = universe.LoadCalendar(file); err != nil {
					return err
				}
			case weekdays && len(prices) > 0:
				cal = universe.WeekdayCalendar(universe.EarliestListingDate, lastDate(prices))
			}
			if cal != nil {
				prices = cal.Filter(prices, log)
			}

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			defer out.Close()
			if err := universe.WritePrices(out, prices); err != nil {
				return err
			}

			log.Info().
				Int("before", before).
				Int("after", len(prices)).
				Str("out", outPath).
				Msg("Prices prepared")
			fmt.Fprintf(cmd.OutOrStdout(), "kept %d of %d rows, wrote %s\n", len(prices), before, outPath)
			return out.Close()
		},
	}

	cmd.Flags().StringVar(&pricesPath, "prices", "", "Raw price table CSV")
	cmd.Flags().StringVar(&listingPath, "listing", "", "Index constituent changes CSV")
	cmd.Flags().StringVar(&calendarPath, "calendar", "", "Trading calendar file")
	cmd.Flags().BoolVar(&weekdays, "weekdays", false, "Drop weekend rows when no calendar is given")
	cmd.Flags().StringVar(&outPath, "out", "prices_filtered.csv", "Output CSV")
	_ = cmd.MarkFlagRequired("prices")
	_ = cmd.MarkFlagRequired("listing")
	return cmd
}

func lastDate(prices []domain.PriceObservation) time.Time {
	last := prices[0].Date
	for _, p := range prices[1:] {
		if p.Date.After(last) {
			last = p.Date
		}
	}
	return last
}
