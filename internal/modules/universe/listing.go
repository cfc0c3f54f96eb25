package universe

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aristath/backtester/internal/domain"
)

// EarliestListingDate opens the range of a symbol whose first listing event
// is a removal.
var EarliestListingDate = time.Date(1997, 12, 2, 0, 0, 0, 0, time.UTC)

// ListingChange is one constituent change event of an index. An event adds
// the symbol when AddedSecurity is set and removes it when RemovedTicker
// equals the symbol. A merger shows up as an add and a removal of the same
// symbol on the same date.
type ListingChange struct {
	Date          time.Time `json:"date"`
	Symbol        string    `json:"symbol"`
	AddedSecurity string    `json:"addedSecurity"`
	RemovedTicker string    `json:"removedTicker"`
}

// DateRange is an inclusive date range a symbol was listed in. A zero End
// means the symbol is still listed.
type DateRange struct {
	Symbol string
	Start  time.Time
	End    time.Time
}

// Contains reports whether date falls inside the range.
func (r DateRange) Contains(date time.Time) bool {
	if date.Before(r.Start) {
		return false
	}
	return r.End.IsZero() || !date.After(r.End)
}

// LoadListing reads a listing CSV with date, symbol, addedSecurity and
// removedTicker columns.
func LoadListing(r io.Reader) ([]ListingChange, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read listing header: %w", err)
	}
	cols, err := columnIndex(header, []string{"date", "symbol", "addedSecurity", "removedTicker"})
	if err != nil {
		return nil, err
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read listing: %w", err)
	}

	changes := make([]ListingChange, 0, len(records))
	for i, record := range records {
		date, err := parseTimestamp(record[cols["date"]])
		if err != nil {
			return nil, fmt.Errorf("listing line %d: %w", i+2, err)
		}
		changes = append(changes, ListingChange{
			Date:          date,
			Symbol:        strings.TrimSpace(record[cols["symbol"]]),
			AddedSecurity: strings.TrimSpace(record[cols["addedSecurity"]]),
			RemovedTicker: strings.TrimSpace(record[cols["removedTicker"]]),
		})
	}
	return changes, nil
}

// ListedRanges maps listing events to the date ranges each symbol was a
// constituent. Events are ordered by date, adds before removals on the same
// date. A removal on the date of a second add is a merger and keeps the
// range open.
func ListedRanges(changes []ListingChange) []DateRange {
	sorted := make([]ListingChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].RemovedTicker < sorted[j].RemovedTicker
	})

	bySymbol := make(map[string][]ListingChange)
	symbols := make([]string, 0)
	for _, c := range sorted {
		if _, ok := bySymbol[c.Symbol]; !ok {
			symbols = append(symbols, c.Symbol)
		}
		bySymbol[c.Symbol] = append(bySymbol[c.Symbol], c)
	}
	sort.Strings(symbols)

	ranges := make([]DateRange, 0)
	for _, symbol := range symbols {
		ranges = append(ranges, symbolRanges(symbol, bySymbol[symbol])...)
	}
	return ranges
}

func symbolRanges(symbol string, events []ListingChange) []DateRange {
	var (
		ranges      []DateRange
		start       time.Time
		mergerStart time.Time
	)

	for _, ev := range events {
		if ev.AddedSecurity != "" {
			if start.IsZero() {
				start = ev.Date
			} else {
				mergerStart = ev.Date
			}
		}
		if ev.RemovedTicker != symbol {
			continue
		}
		if !mergerStart.IsZero() && ev.Date.Equal(mergerStart) {
			continue
		}

		rangeStart := start
		if rangeStart.IsZero() {
			rangeStart = EarliestListingDate
		}
		ranges = append(ranges, DateRange{Symbol: symbol, Start: rangeStart, End: ev.Date})
		start = time.Time{}
		mergerStart = time.Time{}
	}

	if !start.IsZero() {
		ranges = append(ranges, DateRange{Symbol: symbol, Start: start})
	}
	return ranges
}

// FilterByListing keeps the prices that fall inside one of their symbol's
// listed ranges. Symbols without listing events are dropped. Input order is
// preserved.
func FilterByListing(changes []ListingChange, prices []domain.PriceObservation) []domain.PriceObservation {
	bySymbol := make(map[string][]DateRange)
	for _, r := range ListedRanges(changes) {
		bySymbol[r.Symbol] = append(bySymbol[r.Symbol], r)
	}

	out := make([]domain.PriceObservation, 0, len(prices))
	for _, p := range prices {
		for _, r := range bySymbol[p.Symbol] {
			if r.Contains(p.Date) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
