package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/clients/climate"
	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/events"
	"github.com/bozweather/trader/internal/metrics"
	"github.com/bozweather/trader/internal/modules/forecast"
	"github.com/bozweather/trader/internal/modules/prediction"
	"github.com/bozweather/trader/internal/modules/trading"
	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

// ReportSource fetches the official high for a city and date. The climate
// client implements it.
type ReportSource interface {
	DailyHigh(ctx context.Context, city units.City, targetDate string) (*climate.Report, error)
}

// Service runs the morning closeout: observe the official high, persist
// the settlement, and settle every open trade on that (city, date).
type Service struct {
	repo    *Repository
	trades  *trading.TradeRepository
	reports ReportSource
	fees    money.FeeSchedule
	events  *events.Manager
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	maxAttempts int
	baseBackoff time.Duration
}

// ServiceConfig wires the closeout loop.
type ServiceConfig struct {
	Repo    *Repository
	Trades  *trading.TradeRepository
	Reports ReportSource
	Fees    money.FeeSchedule
	Events  *events.Manager
	Metrics *metrics.Metrics
	Log     zerolog.Logger
	Now     func() time.Time // defaults to time.Now

	MaxAttempts int           // report fetch attempts, default 5
	BaseBackoff time.Duration // first doubling wait, default 1 minute
}

// NewService creates the settlement service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	baseBackoff := cfg.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = time.Minute
	}
	return &Service{
		repo:        cfg.Repo,
		trades:      cfg.Trades,
		reports:     cfg.Reports,
		fees:        cfg.Fees,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		log:         cfg.Log.With().Str("service", "settlement").Logger(),
		now:         now,
		sleep:       sleepCtx,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// CloseOutCity settles the prior day for one city: fetch the climate
// report with doubling backoff, record the settlement, and close the open
// trades. A report still missing after the retry ceiling leaves the
// trades OPEN and emits a ClosureStalled warning.
func (s *Service) CloseOutCity(ctx context.Context, city units.City) error {
	targetDate := city.PrevLocalDate(s.now())

	report, err := s.fetchWithBackoff(ctx, city, targetDate)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("city", string(city)).
			Str("target_date", targetDate).
			Msg("Climate report unavailable, trades remain open")
		if s.events != nil {
			s.events.EmitWarning(events.ClosureStalled, "settlement", map[string]interface{}{
				"city":        string(city),
				"target_date": targetDate,
				"error":       err.Error(),
			})
		}
		return err
	}

	return s.Observe(ctx, report)
}

// Observe records an official high and settles the trades riding on it.
// Duplicate observations are rejected by the settlement's unique key and
// settle nothing twice.
func (s *Service) Observe(ctx context.Context, report *climate.Report) error {
	raw, _ := json.Marshal(map[string]string{"report": report.RawText})
	inserted, err := s.repo.Create(Settlement{
		City:        report.City,
		TargetDate:  report.TargetDate,
		ActualHighF: report.HighF,
		Source:      SourceNWSCLI,
		RawPayload:  raw,
		FetchedAt:   s.now().UTC(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug().
			Str("city", string(report.City)).
			Str("target_date", report.TargetDate).
			Msg("Settlement already recorded, skipping")
		return nil
	}

	if s.events != nil {
		s.events.Emit(events.SettlementObserved, "settlement", map[string]interface{}{
			"city":          string(report.City),
			"target_date":   report.TargetDate,
			"actual_high_f": report.HighF,
		})
	}

	return s.settleOpenTrades(report.City, report.TargetDate, report.HighF)
}

func (s *Service) fetchWithBackoff(ctx context.Context, city units.City, targetDate string) (*climate.Report, error) {
	var lastErr error
	wait := s.baseBackoff
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				return nil, err
			}
			wait *= 2
		}
		report, err := s.reports.DailyHigh(ctx, city, targetDate)
		if err == nil {
			return report, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("climate report after %d attempts: %w", s.maxAttempts, lastErr)
}

// settleOpenTrades closes every OPEN trade for the city and date. A trade
// whose snapshot cannot locate its bracket bounds fails closed: it stays
// OPEN and is logged at ERROR for manual review.
func (s *Service) settleOpenTrades(city units.City, targetDate string, actualHighF float64) error {
	open, err := s.trades.OpenForCityDate(city, targetDate)
	if err != nil {
		return err
	}

	for _, trade := range open {
		if err := s.settleTrade(trade, actualHighF); err != nil {
			s.log.Error().
				Err(err).
				Str("trade_id", trade.ID).
				Msg("Failed to settle trade")
			if s.events != nil {
				s.events.EmitError("settlement", err, map[string]interface{}{
					"trade_id":      trade.ID,
					"city":          string(city),
					"target_date":   targetDate,
					"actual_high_f": actualHighF,
				})
			}
		}
	}
	return nil
}

func (s *Service) settleTrade(trade trading.TradeRecord, actualHighF float64) error {
	bracket, pred, err := bracketFromSnapshot(trade)
	if err != nil {
		return err
	}

	won := trading.Won(trade.Side, bracket, actualHighF)
	status := domain.TradeLost
	if won {
		status = domain.TradeWon
	}
	pnl := trading.SettlePnL(s.fees, trade.EntryPrice, trade.Quantity, won)

	narrative := ""
	if pred != nil {
		terms := prediction.TradeTerms{
			Side:       trade.Side,
			Ticker:     trade.BracketTicker,
			Label:      trade.BracketLabel,
			EntryPrice: trade.EntryPrice,
			Quantity:   trade.Quantity,
			ModelProb:  trade.ModelProb,
			MarketProb: trade.MarketProb,
		}
		narrative = prediction.Postmortem(*pred, terms, weatherFromSnapshot(trade), actualHighF, status)
	}

	err = s.trades.Settle(trade.ID, status, actualHighF, pnl, narrative, s.now())
	if errors.Is(err, trading.ErrStatusConflict) {
		// Already settled by an earlier observation.
		return nil
	}
	if err != nil {
		return err
	}

	s.log.Info().
		Str("trade_id", trade.ID).
		Str("status", string(status)).
		Str("pnl", pnl.String()).
		Float64("actual_high_f", actualHighF).
		Msg("Trade closed")
	if s.metrics != nil {
		s.metrics.TradesSettled.WithLabelValues(string(trade.City), string(status)).Inc()
		s.metrics.RealizedPnL.WithLabelValues(trade.UserID).Add(float64(pnl) / 100.0)
	}
	if s.events != nil {
		s.events.Emit(events.TradeClosed, "settlement", map[string]interface{}{
			"trade_id":      trade.ID,
			"city":          string(trade.City),
			"status":        string(status),
			"pnl_cents":     int64(pnl),
			"actual_high_f": actualHighF,
		})
	}
	return nil
}

// bracketFromSnapshot recovers the traded bracket's bounds from the
// frozen prediction snapshot.
func bracketFromSnapshot(trade trading.TradeRecord) (domain.Bracket, *prediction.Prediction, error) {
	if len(trade.PredictionSnapshot) == 0 {
		return domain.Bracket{}, nil, fmt.Errorf("trade %s has no prediction snapshot", trade.ID)
	}
	var pred prediction.Prediction
	if err := json.Unmarshal(trade.PredictionSnapshot, &pred); err != nil {
		return domain.Bracket{}, nil, fmt.Errorf("trade %s snapshot unreadable: %w", trade.ID, err)
	}
	for _, b := range pred.Brackets {
		if b.Ticker == trade.BracketTicker {
			return domain.Bracket{
				Ticker:     b.Ticker,
				LowerBound: b.LowerBound,
				UpperBound: b.UpperBound,
				Label:      b.Label,
			}, &pred, nil
		}
	}
	return domain.Bracket{}, nil, fmt.Errorf("trade %s bracket %s missing from snapshot", trade.ID, trade.BracketTicker)
}

// weatherFromSnapshot recovers the frozen forecast set for the
// postmortem; an unreadable snapshot just omits the closest-source line.
func weatherFromSnapshot(trade trading.TradeRecord) map[string]forecast.Forecast {
	if len(trade.WeatherSnapshot) == 0 {
		return nil
	}
	var snap map[string]forecast.Forecast
	if err := json.Unmarshal(trade.WeatherSnapshot, &snap); err != nil {
		return nil
	}
	return snap
}
