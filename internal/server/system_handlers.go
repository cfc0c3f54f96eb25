package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/backtester/internal/database"
)

// SystemStatusResponse is the body of /api/system/status
type SystemStatusResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Goroutines    int             `json:"goroutines"`
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	DiskPercent   float64         `json:"disk_percent"`
	ResultsDB     *database.Stats `json:"results_db,omitempty"`
	ResultsDBOK   bool            `json:"results_db_ok"`
}

// SystemHandlers reports host and database health
type SystemHandlers struct {
	log     zerolog.Logger
	dataDir string
	db      *database.DB
	started time.Time
}

// NewSystemHandlers creates system handlers. db may be nil.
func NewSystemHandlers(log zerolog.Logger, dataDir string, db *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:     log.With().Str("handler", "system").Logger(),
		dataDir: dataDir,
		db:      db,
		started: time.Now(),
	}
}

// HandleSystemStatus returns host load and results database state
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	resp := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		DiskPercent:   h.getDiskUsage(),
	}

	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Results database health check failed")
			resp.Status = "degraded"
		} else {
			resp.ResultsDBOK = true
		}
		stats, err := h.db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to get results database stats")
		} else {
			resp.ResultsDB = stats
		}
	}

	writeJSON(w, h.log, http.StatusOK, resp)
}

// getSystemStats returns CPU and RAM usage percentages. CPU is sampled over
// 100ms to keep the call fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) getDiskUsage() float64 {
	if h.dataDir == "" {
		return 0
	}
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
		return 0
	}
	return usage.UsedPercent
}
