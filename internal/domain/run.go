package domain

import "time"

// RunParams are the parameters of one backtest run.
type RunParams struct {
	Label             string     `json:"label" yaml:"label"`
	MomentumWindow    int        `json:"momentum_window" yaml:"momentum_window"`
	VolatilityWindow  int        `json:"volatility_window" yaml:"volatility_window"`
	NumStocks         int        `json:"num_stocks" yaml:"num_stocks"`
	DrawdownThreshold float64    `json:"drawdown_threshold" yaml:"drawdown_threshold"`
	Bankroll          float64    `json:"bankroll" yaml:"bankroll"`
	StartDate         time.Time  `json:"start_date,omitempty" yaml:"-"`
	BuyPrice          PriceField `json:"buy_price" yaml:"buy_price"`
	SellPrice         PriceField `json:"sell_price" yaml:"sell_price"`
}

// Metrics summarizes the daily totals of a run.
type Metrics struct {
	PercentReturn    float64 `json:"percent_return"`
	AnnualReturn     float64 `json:"annual_return"`
	AnnualVolatility float64 `json:"annual_volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	Stability        float64 `json:"stability"`
}

// RunSummary is the stored header of a completed run.
type RunSummary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Params     RunParams `json:"params"`
	FirstDate  time.Time `json:"first_date"`
	LastDate   time.Time `json:"last_date"`
	FinalTotal float64   `json:"final_total"`
	Metrics    Metrics   `json:"metrics"`
}
