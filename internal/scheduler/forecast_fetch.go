package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/modules/forecast"
)

// ForecastFetchJob sweeps every provider for every city. Runs every 30
// minutes; individual provider failures are handled inside the sweep.
type ForecastFetchJob struct {
	log       zerolog.Logger
	forecasts *forecast.Service
	timeout   time.Duration
}

// NewForecastFetchJob creates a new forecast fetch job.
func NewForecastFetchJob(forecasts *forecast.Service, log zerolog.Logger) *ForecastFetchJob {
	return &ForecastFetchJob{
		log:       log.With().Str("job", "forecast_fetch").Logger(),
		forecasts: forecasts,
		timeout:   10 * time.Minute,
	}
}

// Name returns the job name.
func (j *ForecastFetchJob) Name() string {
	return "forecast_fetch"
}

// Run executes the forecast sweep.
func (j *ForecastFetchJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	j.forecasts.FetchAll(ctx)
	return nil
}
