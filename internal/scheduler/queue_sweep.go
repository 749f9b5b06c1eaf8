package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/modules/approval"
)

// QueueSweepJob expires overdue pending trades. Runs every 60 seconds.
type QueueSweepJob struct {
	log   zerolog.Logger
	queue *approval.Service
}

// NewQueueSweepJob creates a new queue sweep job.
func NewQueueSweepJob(queue *approval.Service, log zerolog.Logger) *QueueSweepJob {
	return &QueueSweepJob{
		log:   log.With().Str("job", "queue_sweep").Logger(),
		queue: queue,
	}
}

// Name returns the job name.
func (j *QueueSweepJob) Name() string {
	return "queue_sweep"
}

// Run expires every PENDING trade whose approval window has passed.
func (j *QueueSweepJob) Run() error {
	_, err := j.queue.Sweep()
	return err
}
