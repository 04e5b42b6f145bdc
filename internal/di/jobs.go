package di

import (
	"fmt"

	"github.com/aristath/holdings/internal/clientdata"
	"github.com/aristath/holdings/internal/config"
	"github.com/aristath/holdings/internal/reliability"
	"github.com/aristath/holdings/internal/scheduler"
	"github.com/rs/zerolog"
)

// Job schedules (six-field cron with seconds)
const (
	ScheduleClientDataCleanup = "0 30 3 * * *"
	ScheduleWALCheckpoint     = "0 */15 * * * *"
	ScheduleMaintenance       = "0 0 2 * * *"
	ScheduleBackup            = "0 0 4 * * *"
)

// JobInstances holds the maintenance jobs so they can also be triggered by hand
type JobInstances struct {
	ClientDataCleanup   scheduler.Job
	CheckWALCheckpoints scheduler.Job
	Maintenance         scheduler.Job
	Backup              scheduler.Job // nil when offsite backups are disabled
}

// All returns every configured job
func (j *JobInstances) All() []scheduler.Job {
	jobs := []scheduler.Job{j.ClientDataCleanup, j.CheckWALCheckpoints, j.Maintenance}
	if j.Backup != nil {
		jobs = append(jobs, j.Backup)
	}
	return jobs
}

// RegisterJobs creates the maintenance jobs and registers them with the scheduler
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{
		ClientDataCleanup:   clientdata.NewCleanupJob(container.ClientDataRepo, clientdata.StaleRetention, log),
		CheckWALCheckpoints: scheduler.NewCheckWALCheckpointsJob(log, container.LedgerDB, container.ClientDataDB),
		Maintenance:         reliability.NewMaintenanceJob(cfg.DataDir, log, container.LedgerDB, container.ClientDataDB),
	}
	if container.BackupService != nil {
		jobs.Backup = reliability.NewBackupJob(container.BackupService, log)
	}

	if sched == nil {
		return jobs, nil
	}

	schedules := map[scheduler.Job]string{
		jobs.ClientDataCleanup:   ScheduleClientDataCleanup,
		jobs.CheckWALCheckpoints: ScheduleWALCheckpoint,
		jobs.Maintenance:         ScheduleMaintenance,
	}
	if jobs.Backup != nil {
		schedules[jobs.Backup] = ScheduleBackup
	}

	for _, job := range jobs.All() {
		if err := sched.AddJob(schedules[job], job); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", job.Name(), err)
		}
	}

	return jobs, nil
}
