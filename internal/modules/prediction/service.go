package prediction

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/events"
	"github.com/bozweather/trader/internal/metrics"
	"github.com/bozweather/trader/internal/modules/forecast"
	"github.com/bozweather/trader/pkg/units"
)

// Service runs the prediction engine: blend forecasts, calibrate the
// error distribution, price every bracket, and persist the snapshot.
type Service struct {
	repo      *Repository
	forecasts *forecast.Service
	history   HistoryProvider
	events    *events.Manager
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// HistoryProvider supplies historical forecast errors for calibration.
// The forecast repository implements it.
type HistoryProvider interface {
	HistoricalErrors(city units.City, months []int, source string) ([]float64, error)
}

// ServiceConfig wires the engine.
type ServiceConfig struct {
	Repo      *Repository
	Forecasts *forecast.Service
	History   HistoryProvider
	Events    *events.Manager
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	Now       func() time.Time // defaults to time.Now
}

// NewService creates the prediction engine.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      cfg.Repo,
		forecasts: cfg.Forecasts,
		history:   cfg.History,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		log:       cfg.Log.With().Str("service", "prediction").Logger(),
		now:       now,
	}
}

// Generate produces and persists a snapshot for one city/date against the
// event's bracket ladder. It fails when no forecasts exist; a calibration
// query failure only degrades to the fallback sigma.
func (s *Service) Generate(ctx context.Context, event domain.MarketEvent) (*Prediction, error) {
	city, targetDate := event.City, event.TargetDate

	bySource, err := s.forecasts.NewestFor(city, targetDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load forecasts: %w", err)
	}
	blend, err := Ensemble(bySource)
	if err != nil {
		return nil, err
	}

	errorStd := s.calibratedStd(city, targetDate)
	probs, err := BracketProbabilities(event.Brackets, blend.High, errorStd)
	if err != nil {
		return nil, err
	}

	newestAge := s.newestAge(bySource)
	confidence, score := ScoreConfidence(ConfidenceInput{
		Spread:      blend.Spread,
		ErrorStd:    errorStd,
		SourceCount: len(blend.Sources),
		NewestAge:   newestAge,
	})

	p := Prediction{
		City:         city,
		TargetDate:   targetDate,
		EnsembleHigh: blend.High,
		Spread:       blend.Spread,
		ErrorStd:     errorStd,
		Confidence:   confidence,
		Sources:      blend.Sources,
		Brackets:     probs,
		GeneratedAt:  s.now().UTC(),
	}
	id, err := s.repo.Create(p)
	if err != nil {
		return nil, err
	}
	p.ID = id

	s.log.Info().
		Str("city", string(city)).
		Str("target_date", targetDate).
		Float64("ensemble_high_f", blend.High).
		Float64("error_std_f", errorStd).
		Str("confidence", string(confidence)).
		Int("score", score).
		Msg("Prediction generated")

	if s.metrics != nil {
		s.metrics.PredictionsMade.WithLabelValues(string(city), string(confidence)).Inc()
	}
	if s.events != nil {
		s.events.Emit(events.PredictionCreated, "prediction", map[string]interface{}{
			"city":            string(city),
			"target_date":     targetDate,
			"ensemble_high_f": blend.High,
			"confidence":      string(confidence),
		})
	}
	return &p, nil
}

// Latest returns the newest stored snapshot for a city and date.
func (s *Service) Latest(city units.City, targetDate string) (*Prediction, error) {
	return s.repo.Latest(city, targetDate)
}

// calibratedStd picks sigma from historical errors when the sample is
// large enough, else the static fallback table.
func (s *Service) calibratedStd(city units.City, targetDate string) float64 {
	month := s.now().Month()
	if t, err := time.Parse("2006-01-02", targetDate); err == nil {
		month = t.Month()
	}
	season := SeasonOf(month)

	var history []float64
	if s.history != nil {
		var err error
		history, err = s.history.HistoricalErrors(city, season.Months(), forecast.SourceNWS)
		if err != nil {
			s.log.Warn().Err(err).Str("city", string(city)).Msg("Calibration query failed, using fallback std")
			history = nil
		}
	}
	return ErrorStd(city, month, history)
}

func (s *Service) newestAge(bySource map[string]forecast.Forecast) time.Duration {
	var newest time.Time
	for _, f := range bySource {
		if f.FetchedAt.After(newest) {
			newest = f.FetchedAt
		}
	}
	if newest.IsZero() {
		return 0
	}
	return s.now().Sub(newest)
}
