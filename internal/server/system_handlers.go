package server

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/labormetrics/pulse/internal/database"
	"github.com/labormetrics/pulse/internal/modules/runs"
	"github.com/labormetrics/pulse/internal/scheduler"
)

// RunHistoryReader exposes recent pipeline runs for status endpoints.
type RunHistoryReader interface {
	Recent(limit int) ([]runs.Record, error)
}

// WarehouseCounter reports row counts for the status endpoint.
type WarehouseCounter interface {
	Count() (int, error)
}

// ScheduleReader exposes the registered cron jobs. Implemented by
// scheduler.Scheduler.
type ScheduleReader interface {
	Jobs() []scheduler.JobInfo
}

// SystemHandlers serves system status, database stats and manual job triggers.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	databases   []*database.DB
	runHistory  RunHistoryReader
	analytics   WarehouseCounter
	startedAt   time.Time
	pipelineJob scheduler.Job
	backupJob   scheduler.Job
	schedule    ScheduleReader
}

// SystemStatusResponse is the payload of GET /api/system/status.
type SystemStatusResponse struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	CPUPercent    float64   `json:"cpu_percent"`
	RAMPercent    float64   `json:"ram_percent"`
	AnalyticsRows int                 `json:"analytics_rows"`
	ScheduledJobs []scheduler.JobInfo `json:"scheduled_jobs,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}

// DBInfo describes one database file.
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// DatabaseStatsResponse is the payload of GET /api/system/database/stats.
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases []*database.DB,
	runHistory RunHistoryReader,
	analytics WarehouseCounter,
) *SystemHandlers {
	return &SystemHandlers{
		log:        log.With().Str("component", "system_handlers").Logger(),
		dataDir:    dataDir,
		databases:  databases,
		runHistory: runHistory,
		analytics:  analytics,
		startedAt:  time.Now(),
	}
}

// SetJobs registers jobs for the manual trigger endpoints. The backup job
// may be nil when backups are not configured.
func (h *SystemHandlers) SetJobs(pipeline, backup scheduler.Job) {
	h.pipelineJob = pipeline
	h.backupJob = backup
}

// SetSchedule registers the cron scheduler so the status endpoint can report
// registered jobs and their next run times.
func (h *SystemHandlers) SetSchedule(schedule ScheduleReader) {
	h.schedule = schedule
}

// HandleSystemStatus returns uptime, resource usage and warehouse counters.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	analyticsRows := 0
	if h.analytics != nil {
		n, err := h.analytics.Count()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to count analytics rows")
		} else {
			analyticsRows = n
		}
	}

	var jobs []scheduler.JobInfo
	if h.schedule != nil {
		jobs = h.schedule.Jobs()
	}

	h.writeJSON(w, SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		AnalyticsRows: analyticsRows,
		ScheduledJobs: jobs,
		Timestamp:     time.Now().UTC(),
	})
}

// HandleDatabaseStats returns on-disk sizes of the managed databases.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	infos := make([]DBInfo, 0, len(h.databases))
	totalSizeMB := 0.0

	for _, db := range h.databases {
		info, err := os.Stat(db.Path())
		if err != nil {
			continue
		}
		sizeMB := float64(info.Size()) / 1024 / 1024
		totalSizeMB += sizeMB
		infos = append(infos, DBInfo{
			Name:   db.Name(),
			Path:   db.Path(),
			SizeMB: sizeMB,
		})
	}

	h.writeJSON(w, DatabaseStatsResponse{
		Databases:   infos,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	})
}

// HandleRecentRuns returns the latest pipeline stage executions.
func (h *SystemHandlers) HandleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, `{"error":"limit must be between 1 and 500"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.runHistory.Recent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read run history")
		http.Error(w, `{"error":"failed to read run history"}`, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []runs.Record{}
	}

	h.writeJSON(w, map[string]interface{}{"runs": records})
}

// HandleTriggerPipeline runs the ingest+transform pipeline immediately.
func (h *SystemHandlers) HandleTriggerPipeline(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.pipelineJob, "pipeline")
}

// HandleTriggerBackup runs the offsite backup immediately.
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.backupJob, "backup")
}

func (h *SystemHandlers) triggerJob(w http.ResponseWriter, job scheduler.Job, name string) {
	if job == nil {
		http.Error(w, `{"error":"job not configured"}`, http.StatusServiceUnavailable)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")

	if err := job.Run(); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Triggered job failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
		return
	}

	h.writeJSON(w, map[string]string{"status": "ok", "job": name})
}

// getSystemStats calculates CPU and RAM usage percentages. A short sampling
// interval keeps the status endpoint responsive.
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

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
