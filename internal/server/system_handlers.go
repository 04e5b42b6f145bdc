package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/di"
	"github.com/aristath/holdings/internal/reliability"
	"github.com/aristath/holdings/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves health, database statistics and manual job triggers
type SystemHandlers struct {
	log       zerolog.Logger
	databases []*database.DB
	jobs      map[string]scheduler.Job
	backups   *reliability.BackupService
	startedAt time.Time
}

// DBInfo describes one database file
type DBInfo struct {
	Name          string         `json:"name"`
	Path          string         `json:"path"`
	SizeMB        float64        `json:"size_mb"`
	SchemaVersion int            `json:"schema_version"`
	Stats         database.Stats `json:"stats"`
}

// DatabaseStatsResponse is returned by HandleDatabaseStats
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// SystemStatsResponse is returned by HandleSystemStats
type SystemStatsResponse struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskFreeMB    float64 `json:"disk_free_mb"`
	DiskPercent   float64 `json:"disk_percent"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// NewSystemHandlers creates system handlers. jobs may be nil.
func NewSystemHandlers(log zerolog.Logger, container *di.Container, jobs *di.JobInstances) *SystemHandlers {
	h := &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		jobs:      make(map[string]scheduler.Job),
		startedAt: time.Now(),
	}
	if container != nil {
		h.backups = container.BackupService
		for _, db := range []*database.DB{container.LedgerDB, container.ClientDataDB} {
			if db != nil {
				h.databases = append(h.databases, db)
			}
		}
	}
	if jobs != nil {
		for _, job := range jobs.All() {
			if job != nil {
				h.jobs[job.Name()] = job
			}
		}
	}
	return h
}

// HandleHealth pings every database and reports 503 if any is unreachable
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.databases))
	status := http.StatusOK
	for _, db := range h.databases {
		if err := db.QuickCheck(ctx); err != nil {
			checks[db.Name()] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[db.Name()] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}

	h.writeJSON(w, status, map[string]interface{}{
		"status":    state,
		"service":   "holdings",
		"databases": checks,
	})
}

// HandleDatabaseStats returns database file sizes
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   make([]DBInfo, 0, len(h.databases)),
		LastChecked: time.Now().Format(time.RFC3339),
	}

	for _, db := range h.databases {
		st, err := db.Stats(r.Context())
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			continue
		}
		version, err := db.SchemaVersion()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read schema version")
		}

		sizeMB := float64(st.SizeBytes+st.WALBytes) / 1024 / 1024
		response.TotalSizeMB += sizeMB
		response.Databases = append(response.Databases, DBInfo{
			Name:          db.Name(),
			Path:          db.Path(),
			SizeMB:        sizeMB,
			SchemaVersion: version,
			Stats:         st,
		})
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleSystemStats reports host CPU, memory and data directory disk usage
func (h *SystemHandlers) HandleSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	response := SystemStatsResponse{
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}

	// 100ms keeps the call responsive while still sampling a real interval
	if percents, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(percents) > 0 {
		response.CPUPercent = percents[0]
	}

	if memStat, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		response.MemoryPercent = memStat.UsedPercent
	}

	if len(h.databases) > 0 {
		if usage, err := disk.UsageWithContext(ctx, filepath.Dir(h.databases[0].Path())); err != nil {
			h.log.Warn().Err(err).Msg("Failed to get disk usage")
		} else {
			response.DiskFreeMB = float64(usage.Free) / 1024 / 1024
			response.DiskPercent = usage.UsedPercent
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleListBackups lists offsite backups, newest first
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"enabled": false,
			"backups": []reliability.BackupInfo{},
		})
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to list backups"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"backups": backups,
	})
}

// HandleTriggerJob runs a maintenance job immediately
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")

	job, ok := h.jobs[name]
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job: " + name})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")

	if err := job.Run(); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"job":    name,
	})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
