package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/modules/settlement"
	"github.com/bozweather/trader/pkg/units"
)

// settlementEarliestHour is the local standard-time hour before which no
// climate report for the prior day is expected.
const settlementEarliestHour = 8

// SettlementFetchJob closes out the prior day for each city. It runs
// every 30 minutes but only acts on cities past 08:00 local standard
// time whose prior day has no settlement yet, so a late report is
// retried on the next tick without re-settling anything.
type SettlementFetchJob struct {
	log         zerolog.Logger
	settlements *settlement.Service
	repo        *settlement.Repository
	now         func() time.Time
	timeout     time.Duration
}

// NewSettlementFetchJob creates a new settlement fetch job.
func NewSettlementFetchJob(settlements *settlement.Service, repo *settlement.Repository, log zerolog.Logger) *SettlementFetchJob {
	return &SettlementFetchJob{
		log:         log.With().Str("job", "settlement_fetch").Logger(),
		settlements: settlements,
		repo:        repo,
		now:         time.Now,
		timeout:     15 * time.Minute,
	}
}

// Name returns the job name.
func (j *SettlementFetchJob) Name() string {
	return "settlement_fetch"
}

// Run closes out each due city. Per-city failures are logged and the
// sweep continues; the settlement service has already emitted the
// stall event by the time an error reaches here.
func (j *SettlementFetchJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	now := j.now()
	for _, city := range units.AllCities() {
		if now.In(city.StandardZone()).Hour() < settlementEarliestHour {
			continue
		}
		targetDate := city.PrevLocalDate(now)
		existing, err := j.repo.Get(city, targetDate)
		if err != nil {
			j.log.Error().Err(err).Str("city", string(city)).Msg("Failed to check settlement")
			continue
		}
		if existing != nil {
			continue
		}

		if err := j.settlements.CloseOutCity(ctx, city); err != nil {
			j.log.Warn().
				Err(err).
				Str("city", string(city)).
				Str("target_date", targetDate).
				Msg("Closeout incomplete, will retry next tick")
		}
	}
	return nil
}
