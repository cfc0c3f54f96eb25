// Package results persists backtest output: flat files for offline analysis,
// a SQLite store backing the results API and optional S3 archival.
package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/modules/ledger"
)

// Writer writes the artifacts of a run into a directory.
type Writer struct {
	dir string
	log zerolog.Logger
}

// NewWriter creates a writer rooted at dir
func NewWriter(dir string, log zerolog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log.With().Str("component", "results_writer").Logger(),
	}
}

// Write stores the executions, daily totals, ledger and daily state of res
// under label and returns the written paths:
//
//	<label>_backtest.csv, <label>_totals.csv, <label>_ledger.csv,
//	<label>_daily_state.json, <label>_daily_state.msgpack
func (w *Writer) Write(label string, res *backtest.Result) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	outputs := []struct {
		suffix string
		write  func(path string) error
	}{
		{"_backtest.csv", func(p string) error { return writeCSV(p, executionRows(res.Executions)) }},
		{"_totals.csv", func(p string) error { return writeCSV(p, totalRows(res.Totals())) }},
		{"_ledger.csv", func(p string) error { return writeCSV(p, ledgerRows(res.Ledger)) }},
		{"_daily_state.json", func(p string) error { return writeJSON(p, DailyStateMap(res.States)) }},
		{"_daily_state.msgpack", func(p string) error { return writeMsgpack(p, DailyStateMap(res.States)) }},
	}

	paths := make([]string, 0, len(outputs))
	for _, out := range outputs {
		path := filepath.Join(w.dir, label+out.suffix)
		if err := out.write(path); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	w.log.Info().
		Str("label", label).
		Str("dir", w.dir).
		Int("files", len(paths)).
		Msg("Results written")

	return paths, nil
}

// DailyStateMap keys the daily states by their YYYY-MM-DD date.
func DailyStateMap(states []domain.PortfolioState) map[string]domain.PortfolioState {
	out := make(map[string]domain.PortfolioState, len(states))
	for _, s := range states {
		out[s.Date.Format(domain.DateLayout)] = s
	}
	return out
}

func executionRows(execs []backtest.Execution) [][]string {
	rows := [][]string{{
		"date", "symbol", "action", "weight", "open", "close",
		"value", "num_shares", "momentum", "inv_volatility", "delisted",
	}}
	for _, e := range execs {
		rows = append(rows, []string{
			e.Date.Format(domain.DateLayout),
			e.Symbol,
			e.Action.String(),
			optionalFloat(e.Weight),
			formatFloat(e.Open),
			formatFloat(e.Close),
			formatFloat(e.Value),
			strconv.FormatInt(int64(e.NumShares), 10),
			formatFloat(e.Momentum),
			formatFloat(e.InverseVolatility),
			strconv.FormatBool(e.Delisted),
		})
	}
	return rows
}

func totalRows(totals []domain.DailyTotal) [][]string {
	rows := [][]string{{"datetime", "total"}}
	for _, t := range totals {
		rows = append(rows, []string{t.Date.Format(domain.DateLayout), formatFloat(t.Total)})
	}
	return rows
}

func ledgerRows(entries []ledger.Entry) [][]string {
	rows := [][]string{{
		"date", "symbol", "action", "close", "num_shares", "gain",
		"tax", "fees", "net_gain", "shares_owned", "is_rebalance",
	}}
	for _, e := range entries {
		rows = append(rows, []string{
			e.Date.Format(domain.DateLayout),
			e.Symbol,
			e.Action.String(),
			formatFloat(e.Price),
			strconv.FormatInt(int64(e.NumShares), 10),
			optionalFloat(e.RealizedGain),
			optionalFloat(e.Tax),
			optionalFloat(e.Fees),
			optionalFloat(e.NetGain),
			strconv.FormatInt(int64(e.RemainingLotShares), 10),
			strconv.FormatBool(e.IsRebalance),
		})
	}
	return rows
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return file.Close()
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func writeMsgpack(path string, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal msgpack: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func optionalFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}
