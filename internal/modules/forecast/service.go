package forecast

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/clients/nws"
	"github.com/bozweather/trader/internal/clients/openmeteo"
	"github.com/bozweather/trader/internal/events"
	"github.com/bozweather/trader/internal/metrics"
	"github.com/bozweather/trader/pkg/units"
)

// SourceNWS is the governmental provider's source name.
const SourceNWS = "nws"

// DefaultStaleThreshold is the freshness window for is-stale checks.
const DefaultStaleThreshold = 120 * time.Minute

// Service is the forecast ingestor: it pulls every provider for every
// (city, target date in {today, tomorrow}) and persists normalized rows.
// A provider failing for one city never aborts the rest of the sweep.
type Service struct {
	repo      *Repository
	nws       *nws.Client
	openMeteo *openmeteo.Client
	events    *events.Manager
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// ServiceConfig wires the ingestor.
type ServiceConfig struct {
	Repo      *Repository
	NWS       *nws.Client
	OpenMeteo *openmeteo.Client
	Events    *events.Manager
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	Now       func() time.Time // defaults to time.Now
}

// NewService creates the ingestor.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      cfg.Repo,
		nws:       cfg.NWS,
		openMeteo: cfg.OpenMeteo,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		log:       cfg.Log.With().Str("service", "forecast").Logger(),
		now:       now,
	}
}

// FetchAll sweeps every configured city for today and tomorrow in the
// city's standard time. Errors are logged per (city, source) and the sweep
// continues.
func (s *Service) FetchAll(ctx context.Context) {
	started := s.now()
	for _, city := range units.AllCities() {
		for _, targetDate := range []string{city.LocalDate(started), city.NextLocalDate(started)} {
			s.fetchCityDate(ctx, city, targetDate)
		}
	}
	s.log.Info().Dur("duration", s.now().Sub(started)).Msg("Forecast sweep completed")
}

func (s *Service) fetchCityDate(ctx context.Context, city units.City, targetDate string) {
	if f, err := s.nws.ForecastHigh(ctx, city, targetDate); err != nil {
		s.recordFailure(SourceNWS, city, targetDate, err)
	} else {
		s.store(Forecast{
			City:          f.City,
			TargetDate:    f.TargetDate,
			Source:        SourceNWS,
			PredictedHigh: f.PredictedHigh,
			ModelRunTS:    f.ModelRunTS,
			RawPayload:    f.RawPayload,
			FetchedAt:     s.now().UTC(),
		})
	}

	models, err := s.openMeteo.ForecastHighs(ctx, city, targetDate)
	if err != nil {
		s.recordFailure("openmeteo", city, targetDate, err)
		return
	}
	for _, m := range models {
		s.store(Forecast{
			City:          m.City,
			TargetDate:    m.TargetDate,
			Source:        m.Source,
			PredictedHigh: m.PredictedHigh,
			ModelRunTS:    m.ModelRunTS,
			RawPayload:    m.RawPayload,
			FetchedAt:     s.now().UTC(),
		})
	}
}

func (s *Service) store(f Forecast) {
	if err := s.repo.Create(f); err != nil {
		s.log.Error().
			Err(err).
			Str("city", string(f.City)).
			Str("source", f.Source).
			Msg("Failed to persist forecast")
		return
	}
	if s.metrics != nil {
		s.metrics.ForecastFetches.WithLabelValues(f.Source, string(f.City)).Inc()
	}
}

func (s *Service) recordFailure(source string, city units.City, targetDate string, err error) {
	s.log.Warn().
		Err(err).
		Str("source", source).
		Str("city", string(city)).
		Str("target_date", targetDate).
		Msg("Forecast fetch failed, skipping")
	if s.metrics != nil {
		s.metrics.FetchFailures.WithLabelValues(source, string(city)).Inc()
	}
	if s.events != nil {
		s.events.EmitWarning(events.ForecastFetchError, "forecast", map[string]interface{}{
			"source":      source,
			"city":        string(city),
			"target_date": targetDate,
			"error":       err.Error(),
		})
	}
}

// NewestFor returns the freshest forecast per source for a city and date.
func (s *Service) NewestFor(city units.City, targetDate string) (map[string]Forecast, error) {
	return s.repo.NewestBySource(city, targetDate)
}

// IsStale reports whether no forecast newer than threshold exists for the
// city and date. A missing forecast counts as stale.
func (s *Service) IsStale(city units.City, targetDate string, threshold time.Duration) (bool, error) {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	newest, err := s.repo.NewestFetchedAt(city, targetDate)
	if err != nil {
		return true, err
	}
	if newest.IsZero() {
		return true, nil
	}
	return s.now().Sub(newest) > threshold, nil
}
