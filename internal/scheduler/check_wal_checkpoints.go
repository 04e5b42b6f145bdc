package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/holdings/internal/database"
	"github.com/rs/zerolog"
)

// walFrameThreshold is the WAL size, in frames, above which the job truncates the log
const walFrameThreshold = 1000

// CheckWALCheckpointsJob monitors WAL growth and truncates oversized logs
type CheckWALCheckpointsJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewCheckWALCheckpointsJob creates a new CheckWALCheckpointsJob. Nil databases are skipped.
func NewCheckWALCheckpointsJob(log zerolog.Logger, databases ...*database.DB) *CheckWALCheckpointsJob {
	return &CheckWALCheckpointsJob{
		log:       log.With().Str("job", "check_wal_checkpoints").Logger(),
		databases: databases,
	}
}

// Name returns the job name
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run checks every database's WAL and truncates those above the threshold.
// Failures are logged per database; the job itself only fails if every check does.
func (j *CheckWALCheckpointsJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	checked, failed := 0, 0
	for _, db := range j.databases {
		if db == nil {
			continue
		}
		checked++

		res, err := db.WALCheckpoint(ctx, "PASSIVE")
		if err != nil {
			failed++
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to check WAL checkpoint")
			continue
		}

		if res.LogFrames <= walFrameThreshold {
			j.log.Debug().
				Str("database", db.Name()).
				Int("wal_frames", res.LogFrames).
				Msg("WAL checkpoint status OK")
			continue
		}

		j.log.Warn().
			Str("database", db.Name()).
			Int("wal_frames", res.LogFrames).
			Int("checkpointed", res.CheckpointedFrames).
			Bool("busy", res.Busy).
			Msg("WAL file is large, truncating")
		if _, err := db.WALCheckpoint(ctx, "TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL truncate failed")
		}
	}

	j.log.Info().Int("checked", checked).Int("failed", failed).Msg("WAL checkpoint check completed")

	if checked > 0 && failed == checked {
		return fmt.Errorf("WAL checkpoint failed for all %d databases", checked)
	}
	return nil
}
