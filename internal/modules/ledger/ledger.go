// Package ledger provides the append-only transaction log of a backtest and
// its FIFO cost-basis accounting.
package ledger

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/backtester/internal/domain"
)

// Rates holds the fee and tax constants applied to every sale.
type Rates struct {
	FinraFee         float64 `json:"finra_fee" yaml:"finra_fee"`
	AggregateSaleFee float64 `json:"aggregate_sale_fee" yaml:"aggregate_sale_fee"`
	Tax              float64 `json:"tax" yaml:"tax"`
}

// DefaultRates returns the US regulatory sale fees and a flat 22% tax rate.
func DefaultRates() Rates {
	return Rates{
		FinraFee:         0.0000051,
		AggregateSaleFee: 0.000119,
		Tax:              0.22,
	}
}

// Entry is one ledger record. Buy entries double as FIFO lots:
// RemainingLotShares counts the shares of the lot not consumed by later sales.
// Gain, tax, fee and net fields are nil on buys.
type Entry struct {
	Date               time.Time     `json:"date"`
	Symbol             string        `json:"symbol"`
	Action             domain.Action `json:"action"`
	NumShares          domain.Shares `json:"num_shares"`
	Price              float64       `json:"close"`
	RealizedGain       *float64      `json:"gain"`
	Tax                *float64      `json:"tax"`
	Fees               *float64      `json:"fees"`
	NetGain            *float64      `json:"net_gain"`
	RemainingLotShares domain.Shares `json:"shares_owned"`
	IsRebalance        bool          `json:"is_rebalance"`
}

// InsufficientLotsError reports a sale larger than the open lots of a symbol.
type InsufficientLotsError struct {
	Symbol    string
	Date      time.Time
	Requested domain.Shares
	Available domain.Shares
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("cannot sell %d shares of %s on %s: only %d shares in open lots",
		e.Requested, e.Symbol, e.Date.Format(domain.DateLayout), e.Available)
}

// Unwrap makes errors.Is(err, domain.ErrInsufficientLots) hold.
func (e *InsufficientLotsError) Unwrap() error {
	return domain.ErrInsufficientLots
}

// Ledger is the append-only log. Past entries are never removed; the only
// mutation of a past entry is lot consumption on buy entries.
type Ledger struct {
	entries []Entry
	// open holds, per symbol, the indices of buy entries with unconsumed
	// shares in insertion order. The front of the queue is the oldest lot.
	open  map[string][]int
	rates Rates
	log   zerolog.Logger
}

// New creates an empty ledger.
func New(rates Rates, log zerolog.Logger) *Ledger {
	return &Ledger{
		entries: make([]Entry, 0),
		open:    make(map[string][]int),
		rates:   rates,
		log:     log.With().Str("component", "ledger").Logger(),
	}
}

// Record appends a signed trade: positive shares buy, negative shares sell.
// A zero share count is a no-op.
func (l *Ledger) Record(date time.Time, symbol string, shares domain.Shares, price float64, isRebalance bool) (Entry, error) {
	switch {
	case shares > 0:
		return l.Buy(date, symbol, shares, price, isRebalance), nil
	case shares < 0:
		return l.Sell(date, symbol, -shares, price, isRebalance)
	default:
		return Entry{}, nil
	}
}

// Buy appends a buy entry, which opens a new lot of the given size.
func (l *Ledger) Buy(date time.Time, symbol string, shares domain.Shares, price float64, isRebalance bool) Entry {
	entry := Entry{
		Date:               date,
		Symbol:             symbol,
		Action:             domain.ActionBuy,
		NumShares:          shares,
		Price:              price,
		RemainingLotShares: shares,
		IsRebalance:        isRebalance,
	}
	l.entries = append(l.entries, entry)
	if shares > 0 {
		l.open[symbol] = append(l.open[symbol], len(l.entries)-1)
	}
	return entry
}

// Sell consumes open lots of symbol oldest first and appends a sell entry
// carrying the realized gain, tax, fees and net gain.
//
// If the open lots hold fewer shares than requested an *InsufficientLotsError
// is returned and the ledger is left untouched.
func (l *Ledger) Sell(date time.Time, symbol string, shares domain.Shares, price float64, isRebalance bool) (Entry, error) {
	if available := l.OpenShares(symbol); available < shares {
		return Entry{}, &InsufficientLotsError{
			Symbol:    symbol,
			Date:      date,
			Requested: shares,
			Available: available,
		}
	}

	sellPrice := decimal.NewFromFloat(price)
	gain := decimal.Zero
	left := shares
	queue := l.open[symbol]

	for left > 0 {
		lot := &l.entries[queue[0]]
		consumed := min(lot.RemainingLotShares, left)

		perShare := sellPrice.Sub(decimal.NewFromFloat(lot.Price))
		gain = gain.Add(perShare.Mul(decimal.NewFromInt(int64(consumed))))

		lot.RemainingLotShares -= consumed
		left -= consumed
		if lot.RemainingLotShares == 0 {
			queue = queue[1:]
		}
	}
	if len(queue) == 0 {
		delete(l.open, symbol)
	} else {
		l.open[symbol] = queue
	}

	proceeds := sellPrice.Mul(decimal.NewFromInt(int64(shares)))
	feeRate := decimal.NewFromFloat(l.rates.FinraFee).Add(decimal.NewFromFloat(l.rates.AggregateSaleFee))
	fees := proceeds.Mul(feeRate)
	tax := gain.Mul(decimal.NewFromFloat(l.rates.Tax))
	net := gain.Sub(tax).Sub(fees)

	entry := Entry{
		Date:               date,
		Symbol:             symbol,
		Action:             domain.ActionSell,
		NumShares:          shares,
		Price:              price,
		RealizedGain:       float(gain),
		Tax:                float(tax),
		Fees:               float(fees),
		NetGain:            float(net),
		RemainingLotShares: shares,
		IsRebalance:        isRebalance,
	}
	l.entries = append(l.entries, entry)

	l.log.Debug().
		Str("symbol", symbol).
		Str("date", date.Format(domain.DateLayout)).
		Int64("shares", int64(shares)).
		Float64("gain", gain.InexactFloat64()).
		Bool("rebalance", isRebalance).
		Msg("Lots consumed")

	return entry, nil
}

// OpenShares returns the number of unconsumed shares across the open lots of
// a symbol.
func (l *Ledger) OpenShares(symbol string) domain.Shares {
	var total domain.Shares
	for _, idx := range l.open[symbol] {
		total += l.entries[idx].RemainingLotShares
	}
	return total
}

// Entries returns a copy of all entries in insertion order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

func float(d decimal.Decimal) *float64 {
	f := d.InexactFloat64()
	return &f
}
