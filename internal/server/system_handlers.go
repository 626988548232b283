package server

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/mpmeasure/internal/database"
	"github.com/aristath/mpmeasure/internal/scheduler"
)

// SystemHandlers serves process and host status
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	scheduler *scheduler.Scheduler
	startedAt time.Time
}

// NewSystemHandlers creates system handlers. db and sched may be nil.
func NewSystemHandlers(log zerolog.Logger, db *database.DB, sched *scheduler.Scheduler) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		db:        db,
		scheduler: sched,
		startedAt: time.Now(),
	}
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string   `json:"status"`
	UptimeSeconds float64  `json:"uptime_seconds"`
	Goroutines    int      `json:"goroutines"`
	CPUPercent    float64  `json:"cpu_percent"`
	MemPercent    float64  `json:"mem_percent"`
	MemAvailable  uint64   `json:"mem_available_bytes"`
	Database      string   `json:"database"`
	Jobs          []string `json:"jobs"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Database:      "disabled",
		Jobs:          []string{},
	}
	resp.CPUPercent, resp.MemPercent, resp.MemAvailable = h.getSystemStats()

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.db.HealthCheck(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Database health check failed")
			resp.Database = "unhealthy"
			resp.Status = "degraded"
		} else {
			resp.Database = "healthy"
		}
	}
	if h.scheduler != nil {
		resp.Jobs = h.scheduler.Jobs()
		sort.Strings(resp.Jobs)
	}

	writeJSON(w, http.StatusOK, resp, h.log)
}

// HandleRunJob handles POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		http.Error(w, "Scheduler is disabled", http.StatusNotFound)
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.scheduler.RunByName(name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"job": name, "error": err.Error()}, h.log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "completed"}, h.log)
}

// getSystemStats returns CPU usage, RAM usage and available RAM. A short
// sampling interval keeps the call fast.
func (h *SystemHandlers) getSystemStats() (float64, float64, uint64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent, memStat.Available
}
