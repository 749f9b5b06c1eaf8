package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/pkg/units"
)

// fullRefreshHour is the local standard-time hour after which each city's
// daily full refresh is due. Morning model runs have landed by then.
const fullRefreshHour = 6

// ForecastRefresher re-reads every provider for every city.
type ForecastRefresher interface {
	FetchAll(ctx context.Context)
}

// CycleRunner drives one trade cycle for every enabled user.
type CycleRunner interface {
	RunCycle(ctx context.Context)
}

// FullRefreshJob re-fetches all forecast sources and runs a trade cycle
// (which regenerates predictions against the live ladders) once per city
// per local day, after 06:00 local standard time. City 06:00 marks cannot
// be expressed as single cron entries because the cities live on fixed
// standard-time offsets, so the job polls every 30 minutes and keeps a
// per-city done date, the same shape as the settlement poll.
type FullRefreshJob struct {
	log       zerolog.Logger
	forecasts ForecastRefresher
	cycles    CycleRunner
	now       func() time.Time
	timeout   time.Duration

	refreshed map[units.City]string
}

// NewFullRefreshJob creates a new full refresh job.
func NewFullRefreshJob(forecasts ForecastRefresher, cycles CycleRunner, log zerolog.Logger) *FullRefreshJob {
	return &FullRefreshJob{
		log:       log.With().Str("job", "full_refresh").Logger(),
		forecasts: forecasts,
		cycles:    cycles,
		now:       time.Now,
		timeout:   15 * time.Minute,
		refreshed: make(map[units.City]string),
	}
}

// Name returns the job name.
func (j *FullRefreshJob) Name() string {
	return "full_refresh"
}

// Run refreshes once any city has crossed 06:00 local without a refresh
// for its current local date. The sweep covers every city, so one trigger
// marks all cities sharing that zone done at once.
func (j *FullRefreshJob) Run() error {
	now := j.now()

	due := false
	for _, city := range units.AllCities() {
		if now.In(city.StandardZone()).Hour() < fullRefreshHour {
			continue
		}
		localDate := city.LocalDate(now)
		if j.refreshed[city] == localDate {
			continue
		}
		j.refreshed[city] = localDate
		due = true
	}
	if !due {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	j.log.Info().Msg("Running daily full refresh")
	j.forecasts.FetchAll(ctx)
	j.cycles.RunCycle(ctx)
	return nil
}
