package results

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/backtest"
)

func date(d int) time.Time {
	return time.Date(2020, 5, d, 0, 0, 0, 0, time.UTC)
}

func action(symbol string, d int, a domain.Action, weight, close float64) domain.ActionRow {
	row := domain.ActionRow{
		PriceObservation: domain.PriceObservation{Date: date(d), Symbol: symbol, Open: close, Close: close},
		Action:           a,
	}
	if a != domain.ActionSell {
		row.Weight = &weight
	}
	return row
}

// sampleResult simulates buying A and B, then selling A, rebalancing B and
// buying C.
func sampleResult() *backtest.Result {
	cfg := backtest.DefaultConfig()
	cfg.Bankroll = 1000
	sim, err := backtest.NewSimulator(cfg, []domain.ActionRow{
		action("A", 7, domain.ActionBuy, 0.6, 10),
		action("B", 7, domain.ActionBuy, 0.4, 30),
		action("A", 10, domain.ActionSell, 0, 25),
		action("B", 10, domain.ActionHold, 0.8, 50),
		action("C", 10, domain.ActionBuy, 0.2, 100),
	}, zerolog.Nop())
	if err != nil {
		panic(err)
	}
	res, err := sim.Run(context.Background())
	if err != nil {
		panic(err)
	}
	return res
}
