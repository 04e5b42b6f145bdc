package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/holdings/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Disk space thresholds checked by the maintenance job
const (
	criticalFreeBytes = 500 * 1024 * 1024
	lowFreeBytes      = 5 * 1024 * 1024 * 1024
)

// BackupJob uploads a fresh backup and rotates old ones
type BackupJob struct {
	service *BackupService
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		timeout: 10 * time.Minute,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes the backup. A failed rotation is logged but does not fail the job.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}
	if _, err := j.service.RotateOldBackups(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// DiskUsageFunc reports filesystem usage for a path
type DiskUsageFunc func(ctx context.Context, path string) (*disk.UsageStat, error)

// MaintenanceJob performs daily database maintenance: an integrity check of
// every database, a disk space check and a VACUUM of cache databases.
type MaintenanceJob struct {
	databases []*database.DB
	dataDir   string
	diskUsage DiskUsageFunc
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job. Nil databases are skipped.
func NewMaintenanceJob(dataDir string, log zerolog.Logger, databases ...*database.DB) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		diskUsage: disk.UsageWithContext,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "daily_maintenance"
}

// Run executes the maintenance steps. Integrity failures and critically low
// disk space fail the job; VACUUM errors are only logged.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Integrity check failed")
			return err
		}
	}

	if err := j.checkDiskSpace(ctx); err != nil {
		return err
	}

	for _, db := range j.databases {
		if db == nil || db.Profile() != database.ProfileCache {
			continue
		}
		if err := vacuumDatabase(ctx, db, j.log); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed")

	return nil
}

func (j *MaintenanceJob) checkDiskSpace(ctx context.Context) error {
	usage, err := j.diskUsage(ctx, j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read disk usage")
		return nil
	}

	freeMB := float64(usage.Free) / 1024 / 1024
	switch {
	case usage.Free < criticalFreeBytes:
		j.log.Error().Float64("free_mb", freeMB).Msg("Insufficient disk space")
		return fmt.Errorf("only %.0f MB free in %s", freeMB, j.dataDir)
	case usage.Free < lowFreeBytes:
		j.log.Warn().Float64("free_mb", freeMB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("free_mb", freeMB).Msg("Disk space check")
	}
	return nil
}

func vacuumDatabase(ctx context.Context, db *database.DB, log zerolog.Logger) error {
	before, err := db.Stats(ctx)
	if err != nil {
		return err
	}

	if _, err := db.Conn().ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	after, err := db.Stats(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("database", db.Name()).
		Int64("size_before_bytes", before.SizeBytes).
		Int64("size_after_bytes", after.SizeBytes).
		Int64("free_pages_before", before.FreePages).
		Msg("VACUUM completed")

	return nil
}
