package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/orchestrator"
)

// TradeCycleJob drives one trade cycle for every enabled user. Runs
// every 15 minutes; the orchestrator's own watchdog bounds each user's
// cycle and serializes cycles per user.
type TradeCycleJob struct {
	log  zerolog.Logger
	orch *orchestrator.Orchestrator
}

// NewTradeCycleJob creates a new trade cycle job.
func NewTradeCycleJob(orch *orchestrator.Orchestrator, log zerolog.Logger) *TradeCycleJob {
	return &TradeCycleJob{
		log:  log.With().Str("job", "trade_cycle").Logger(),
		orch: orch,
	}
}

// Name returns the job name.
func (j *TradeCycleJob) Name() string {
	return "trade_cycle"
}

// Run executes the trade cycle.
func (j *TradeCycleJob) Run() error {
	j.orch.RunCycle(context.Background())
	return nil
}
