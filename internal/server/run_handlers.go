package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/results"
)

// RunReader is the read side of the results repository
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
	GetRun(ctx context.Context, id string) (*domain.RunSummary, error)
	GetDailyTotals(ctx context.Context, runID string) ([]results.DailyRow, error)
	GetLedger(ctx context.Context, runID, symbol string) ([]results.LedgerRow, error)
	GetExecutions(ctx context.Context, runID, date string) ([]results.ExecutionRow, error)
	DeleteRun(ctx context.Context, id string) error
}

// RunHandlers serves stored backtest runs
type RunHandlers struct {
	runs RunReader
	log  zerolog.Logger
}

// NewRunHandlers creates run handlers
func NewRunHandlers(runs RunReader, log zerolog.Logger) *RunHandlers {
	return &RunHandlers{
		runs: runs,
		log:  log.With().Str("handler", "runs").Logger(),
	}
}

// HandleListRuns lists the most recent runs
// GET /api/runs?limit=
func (h *RunHandlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, h.log, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		writeError(w, h.log, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// HandleGetRun returns one run
// GET /api/runs/{id}
func (h *RunHandlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.log, http.StatusOK, run)
}

// HandleDeleteRun removes a run and everything stored with it
// DELETE /api/runs/{id}
func (h *RunHandlers) HandleDeleteRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	if err := h.runs.DeleteRun(r.Context(), run.ID); err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to delete run")
		writeError(w, h.log, http.StatusInternalServerError, "failed to delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetTotals returns the daily cash, investments and totals of a run
// GET /api/runs/{id}/totals
func (h *RunHandlers) HandleGetTotals(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	totals, err := h.runs.GetDailyTotals(r.Context(), run.ID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to get totals")
		writeError(w, h.log, http.StatusInternalServerError, "failed to get totals")
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"run_id": run.ID,
		"totals": totals,
	})
}

// HandleGetLedger returns the ledger of a run
// GET /api/runs/{id}/ledger?symbol=
func (h *RunHandlers) HandleGetLedger(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	entries, err := h.runs.GetLedger(r.Context(), run.ID, r.URL.Query().Get("symbol"))
	if err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to get ledger")
		writeError(w, h.log, http.StatusInternalServerError, "failed to get ledger")
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"run_id":  run.ID,
		"entries": entries,
	})
}

// HandleGetExecutions returns the executed actions of a run
// GET /api/runs/{id}/executions?date=YYYY-MM-DD
func (h *RunHandlers) HandleGetExecutions(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := domain.ParseDate(date); err != nil {
			writeError(w, h.log, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	execs, err := h.runs.GetExecutions(r.Context(), run.ID, date)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to get executions")
		writeError(w, h.log, http.StatusInternalServerError, "failed to get executions")
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"run_id":     run.ID,
		"executions": execs,
	})
}

// loadRun resolves the {id} URL parameter, writing 404/500 itself
func (h *RunHandlers) loadRun(w http.ResponseWriter, r *http.Request) (*domain.RunSummary, bool) {
	id := chi.URLParam(r, "id")
	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		writeError(w, h.log, http.StatusInternalServerError, "failed to get run")
		return nil, false
	}
	if run == nil {
		writeError(w, h.log, http.StatusNotFound, "run not found")
		return nil, false
	}
	return run, true
}
