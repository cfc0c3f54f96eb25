// Package grid runs a backtest for every parameter combination of a plan.
package grid

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/backtester/internal/domain"
)

// Plan lists the values to try for each swept parameter. Every combination
// becomes one run.
type Plan struct {
	MomentumWindows    []int             `yaml:"momentum_windows"`
	VolatilityWindows  []int             `yaml:"volatility_windows"`
	NumStocks          []int             `yaml:"num_stocks"`
	DrawdownThresholds []float64         `yaml:"drawdown_thresholds"`
	Bankroll           float64           `yaml:"bankroll"`
	StartDate          string            `yaml:"start_date"`
	BuyPrice           domain.PriceField `yaml:"buy_price"`
	SellPrice          domain.PriceField `yaml:"sell_price"`
	LabelPrefix        string            `yaml:"label_prefix"`
}

// LoadPlan reads a YAML plan file
func LoadPlan(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan: %w", err)
	}
	defer f.Close()
	return ParsePlan(f)
}

// ParsePlan decodes a YAML plan and validates it
func ParsePlan(r io.Reader) (*Plan, error) {
	var plan Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks that every swept parameter has at least one value.
// Value ranges are checked by the run itself.
func (p *Plan) Validate() error {
	switch {
	case len(p.MomentumWindows) == 0:
		return fmt.Errorf("%w: plan has no momentum_windows", domain.ErrInvalidConfig)
	case len(p.VolatilityWindows) == 0:
		return fmt.Errorf("%w: plan has no volatility_windows", domain.ErrInvalidConfig)
	case len(p.NumStocks) == 0:
		return fmt.Errorf("%w: plan has no num_stocks", domain.ErrInvalidConfig)
	case len(p.DrawdownThresholds) == 0:
		return fmt.Errorf("%w: plan has no drawdown_thresholds", domain.ErrInvalidConfig)
	case p.Bankroll <= 0:
		return fmt.Errorf("%w: plan bankroll must be positive", domain.ErrInvalidConfig)
	}
	if p.StartDate != "" {
		if _, err := domain.ParseDate(p.StartDate); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
	}
	return nil
}

// Size is the number of runs the plan expands to
func (p *Plan) Size() int {
	return len(p.MomentumWindows) * len(p.VolatilityWindows) * len(p.NumStocks) * len(p.DrawdownThresholds)
}

// Expand returns the cartesian product of the plan, momentum windows varying
// slowest and drawdown thresholds fastest.
func (p *Plan) Expand() []domain.RunParams {
	var start time.Time
	if p.StartDate != "" {
		start, _ = domain.ParseDate(p.StartDate)
	}

	out := make([]domain.RunParams, 0, p.Size())
	for _, mw := range p.MomentumWindows {
		for _, vw := range p.VolatilityWindows {
			for _, n := range p.NumStocks {
				for _, dd := range p.DrawdownThresholds {
					out = append(out, domain.RunParams{
						Label:             p.label(mw, vw, n, dd),
						MomentumWindow:    mw,
						VolatilityWindow:  vw,
						NumStocks:         n,
						DrawdownThreshold: dd,
						Bankroll:          p.Bankroll,
						StartDate:         start,
						BuyPrice:          p.BuyPrice,
						SellPrice:         p.SellPrice,
					})
				}
			}
		}
	}
	return out
}

func (p *Plan) label(mw, vw, n int, dd float64) string {
	prefix := p.LabelPrefix
	if prefix == "" {
		prefix = "grid"
	}
	return fmt.Sprintf("%s_m%d_v%d_n%d_d%s", prefix, mw, vw, n, strconv.FormatFloat(dd, 'f', -1, 64))
}
