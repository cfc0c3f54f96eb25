package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/modules/ledger"
	"github.com/aristath/backtester/internal/utils"
)

// runsColumns is the column list of the runs table.
// Column order must match scanRun().
const runsColumns = `id, label, created_at, momentum_window, volatility_window, num_stocks,
	drawdown_threshold, bankroll, start_date, first_date, last_date, final_total,
	percent_return, annual_return, annual_volatility, sharpe_ratio, max_drawdown, stability`

// DailyRow is one stored day of a run
type DailyRow struct {
	Date        string  `json:"date"`
	Cash        float64 `json:"cash"`
	Investments float64 `json:"investments"`
	Total       float64 `json:"total"`
}

// LedgerRow is one stored ledger entry
type LedgerRow struct {
	Date            string   `json:"date"`
	Symbol          string   `json:"symbol"`
	Action          string   `json:"action"`
	NumShares       int64    `json:"num_shares"`
	Price           float64  `json:"price"`
	Gain            *float64 `json:"gain"`
	Tax             *float64 `json:"tax"`
	Fees            *float64 `json:"fees"`
	NetGain         *float64 `json:"net_gain"`
	RemainingShares int64    `json:"remaining_shares"`
	IsRebalance     bool     `json:"is_rebalance"`
}

// ExecutionRow is one stored execution
type ExecutionRow struct {
	Date      string   `json:"date"`
	Symbol    string   `json:"symbol"`
	Action    string   `json:"action"`
	Weight    *float64 `json:"weight"`
	Close     float64  `json:"close"`
	NumShares int64    `json:"num_shares"`
	Value     float64  `json:"value"`
	Delisted  bool     `json:"delisted"`
}

// Repository stores completed runs in the results database
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a results repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "results").Logger(),
	}
}

// SaveRun stores the run header with its daily states, ledger and
// executions in one transaction.
func (r *Repository) SaveRun(ctx context.Context, run domain.RunSummary, res *backtest.Result) error {
	done := utils.MeasureDBQuery("save_run", r.log)
	var rows int64

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (`+runsColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			run.Params.Label,
			run.CreatedAt.Unix(),
			run.Params.MomentumWindow,
			run.Params.VolatilityWindow,
			run.Params.NumStocks,
			run.Params.DrawdownThreshold,
			run.Params.Bankroll,
			nullDate(run.Params.StartDate),
			nullDate(run.FirstDate),
			nullDate(run.LastDate),
			run.FinalTotal,
			run.Metrics.PercentReturn,
			run.Metrics.AnnualReturn,
			run.Metrics.AnnualVolatility,
			run.Metrics.SharpeRatio,
			run.Metrics.MaxDrawdown,
			run.Metrics.Stability,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		rows++

		n, err := insertStates(ctx, tx, run.ID, res.States)
		if err != nil {
			return err
		}
		rows += n

		n, err = insertLedger(ctx, tx, run.ID, res.Ledger)
		if err != nil {
			return err
		}
		rows += n

		n, err = insertExecutions(ctx, tx, run.ID, res.Executions)
		if err != nil {
			return err
		}
		rows += n
		return nil
	})
	done(rows)

	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	r.log.Info().
		Str("run_id", run.ID).
		Str("label", run.Params.Label).
		Int64("rows", rows).
		Msg("Run saved")

	return nil
}

func insertStates(ctx context.Context, tx *sql.Tx, runID string, states []domain.PortfolioState) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_totals (run_id, date, cash, investments, total)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare daily totals insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range states {
		if _, err := stmt.ExecContext(ctx, runID, s.Date.Format(domain.DateLayout), s.Cash, s.Investments, s.Total); err != nil {
			return 0, fmt.Errorf("failed to insert daily total: %w", err)
		}
	}
	return int64(len(states)), nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, runID string, entries []ledger.Entry) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries
		(run_id, seq, date, symbol, action, num_shares, price, gain, tax, fees,
		 net_gain, remaining_shares, is_rebalance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare ledger insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		_, err := stmt.ExecContext(ctx,
			runID, i,
			e.Date.Format(domain.DateLayout),
			e.Symbol,
			e.Action.String(),
			int64(e.NumShares),
			e.Price,
			nullFloat64Ptr(e.RealizedGain),
			nullFloat64Ptr(e.Tax),
			nullFloat64Ptr(e.Fees),
			nullFloat64Ptr(e.NetGain),
			int64(e.RemainingLotShares),
			boolToInt(e.IsRebalance),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}
	return int64(len(entries)), nil
}

func insertExecutions(ctx context.Context, tx *sql.Tx, runID string, execs []backtest.Execution) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO executions
		(run_id, seq, date, symbol, action, weight, close, num_shares, value, delisted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare executions insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range execs {
		_, err := stmt.ExecContext(ctx,
			runID, i,
			e.Date.Format(domain.DateLayout),
			e.Symbol,
			e.Action.String(),
			nullFloat64Ptr(e.Weight),
			e.Close,
			int64(e.NumShares),
			e.Value,
			boolToInt(e.Delisted),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert execution: %w", err)
		}
	}
	return int64(len(execs)), nil
}

// ListRuns returns the most recent runs first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+runsColumns+" FROM runs ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.RunSummary, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a run by ID, or nil if it does not exist
func (r *Repository) GetRun(ctx context.Context, id string) (*domain.RunSummary, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runsColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}

// GetDailyTotals returns the stored daily states of a run in date order
func (r *Repository) GetDailyTotals(ctx context.Context, runID string) ([]DailyRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, cash, investments, total
		FROM daily_totals WHERE run_id = ? ORDER BY date`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily totals: %w", err)
	}
	defer rows.Close()

	out := make([]DailyRow, 0)
	for rows.Next() {
		var d DailyRow
		if err := rows.Scan(&d.Date, &d.Cash, &d.Investments, &d.Total); err != nil {
			return nil, fmt.Errorf("failed to scan daily total: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetLedger returns the ledger of a run in insertion order, optionally
// restricted to one symbol
func (r *Repository) GetLedger(ctx context.Context, runID, symbol string) ([]LedgerRow, error) {
	query := `
		SELECT date, symbol, action, num_shares, price, gain, tax, fees, net_gain,
		       remaining_shares, is_rebalance
		FROM ledger_entries WHERE run_id = ?`
	args := []interface{}{runID}
	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY seq"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	defer rows.Close()

	out := make([]LedgerRow, 0)
	for rows.Next() {
		var (
			e                    LedgerRow
			gain, tax, fees, net sql.NullFloat64
			rebalance            int
		)
		if err := rows.Scan(&e.Date, &e.Symbol, &e.Action, &e.NumShares, &e.Price,
			&gain, &tax, &fees, &net, &e.RemainingShares, &rebalance); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Gain = float64Ptr(gain)
		e.Tax = float64Ptr(tax)
		e.Fees = float64Ptr(fees)
		e.NetGain = float64Ptr(net)
		e.IsRebalance = rebalance != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetExecutions returns the executions of a run in execution order,
// optionally restricted to one date
func (r *Repository) GetExecutions(ctx context.Context, runID, date string) ([]ExecutionRow, error) {
	query := `
		SELECT date, symbol, action, weight, close, num_shares, value, delisted
		FROM executions WHERE run_id = ?`
	args := []interface{}{runID}
	if date != "" {
		query += " AND date = ?"
		args = append(args, date)
	}
	query += " ORDER BY seq"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get executions: %w", err)
	}
	defer rows.Close()

	out := make([]ExecutionRow, 0)
	for rows.Next() {
		var (
			e        ExecutionRow
			weight   sql.NullFloat64
			delisted int
		)
		if err := rows.Scan(&e.Date, &e.Symbol, &e.Action, &weight, &e.Close,
			&e.NumShares, &e.Value, &delisted); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.Weight = float64Ptr(weight)
		e.Delisted = delisted != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, through the foreign keys, its rows
func (r *Repository) DeleteRun(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (domain.RunSummary, error) {
	var (
		run                    domain.RunSummary
		createdAt              int64
		startDate, first, last sql.NullString
	)
	err := s.Scan(
		&run.ID,
		&run.Params.Label,
		&createdAt,
		&run.Params.MomentumWindow,
		&run.Params.VolatilityWindow,
		&run.Params.NumStocks,
		&run.Params.DrawdownThreshold,
		&run.Params.Bankroll,
		&startDate,
		&first,
		&last,
		&run.FinalTotal,
		&run.Metrics.PercentReturn,
		&run.Metrics.AnnualReturn,
		&run.Metrics.AnnualVolatility,
		&run.Metrics.SharpeRatio,
		&run.Metrics.MaxDrawdown,
		&run.Metrics.Stability,
	)
	if err != nil {
		return run, err
	}

	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	run.Params.StartDate = parseNullDate(startDate)
	run.FirstDate = parseNullDate(first)
	run.LastDate = parseNullDate(last)
	return run, nil
}

func nullDate(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(domain.DateLayout)
}

func parseNullDate(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := domain.ParseDate(s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullFloat64Ptr(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func float64Ptr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
