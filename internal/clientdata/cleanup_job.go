package clientdata

import (
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob purges cache entries that are past their stale retention
type CleanupJob struct {
	repo      *Repository
	retention time.Duration
	log       zerolog.Logger
}

// NewCleanupJob creates a cleanup job. A zero retention falls back to StaleRetention.
func NewCleanupJob(repo *Repository, retention time.Duration, log zerolog.Logger) *CleanupJob {
	if retention <= 0 {
		retention = StaleRetention
	}
	return &CleanupJob{
		repo:      repo,
		retention: retention,
		log:       log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Name returns the job name
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}

// Run deletes entries that expired more than the retention ago
func (j *CleanupJob) Run() error {
	results, err := j.repo.DeleteAllExpired(j.retention)
	if err != nil {
		j.log.Error().Err(err).Msg("Cache cleanup failed")
		return err
	}

	var total int64
	for _, count := range results {
		total += count
	}

	evt := j.log.Debug()
	if total > 0 {
		evt = j.log.Info()
	}
	evt.Int64("deleted", total).
		Dur("retention", j.retention).
		Msg("Cache cleanup completed")

	return nil
}
