package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/database"
)

// HealthCheckJob runs database integrity checks. Runs every 6 hours.
type HealthCheckJob struct {
	log zerolog.Logger
	db  *database.DB
}

// NewHealthCheckJob creates a new health check job.
func NewHealthCheckJob(db *database.DB, log zerolog.Logger) *HealthCheckJob {
	return &HealthCheckJob{
		log: log.With().Str("job", "health_check").Logger(),
		db:  db,
	}
}

// Name returns the job name.
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Run executes the health check.
func (j *HealthCheckJob) Run() error {
	started := time.Now()

	var result string
	if err := j.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		// Ledger corruption is critical and cannot be auto-recovered.
		return fmt.Errorf("integrity check returned: %s", result)
	}

	j.checkWALCheckpoint()

	j.log.Info().Dur("duration", time.Since(started)).Msg("Health check completed")
	return nil
}

// checkWALCheckpoint monitors WAL growth; a large WAL means checkpoints
// are falling behind the write rate.
func (j *HealthCheckJob) checkWALCheckpoint() {
	var busy, frames, checkpointed int
	err := j.db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to check WAL checkpoint")
		return
	}

	if frames > 1000 {
		j.log.Warn().
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint may be needed")
	} else {
		j.log.Debug().Int("wal_frames", frames).Msg("WAL checkpoint status OK")
	}
}
