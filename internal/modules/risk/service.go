package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/events"
	"github.com/bozweather/trader/internal/metrics"
	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

// Ledger is the slice of the trade repository the guard reads. The state
// rebuild runs against durable rows only.
type Ledger interface {
	RealizedPnLSince(userID string, since time.Time) (money.Cents, error)
	OpenedCentsSince(userID string, since time.Time) (money.Cents, error)
	ConsecutiveLosses(userID string) (int, error)
	LastLossSettledAt(userID string) (*time.Time, error)
}

// FreshnessChecker reports whether a city's newest forecast exceeds the
// freshness cap. The forecast service implements it.
type FreshnessChecker interface {
	IsStale(city units.City, targetDate string, threshold time.Duration) (bool, error)
}

// Service evaluates the guard chain and owns manual overrides.
type Service struct {
	ledger    Ledger
	freshness FreshnessChecker
	events    *events.Manager
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	resets map[string]time.Time // manual consecutive-loss resets, per user
}

// ServiceConfig wires the guard.
type ServiceConfig struct {
	Ledger    Ledger
	Freshness FreshnessChecker
	Events    *events.Manager
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	Now       func() time.Time // defaults to time.Now
}

// NewService creates the risk guard.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		ledger:    cfg.Ledger,
		freshness: cfg.Freshness,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		log:       cfg.Log.With().Str("service", "risk").Logger(),
		now:       now,
		resets:    make(map[string]time.Time),
	}
}

// RebuildState derives a user's risk state from the ledger. Called once
// per cycle; the result is valid only within that cycle.
func (s *Service) RebuildState(userID string, limits Limits) (State, error) {
	now := s.now()
	dayStart := units.ExchangeDayStart(now)

	pnl, err := s.ledger.RealizedPnLSince(userID, dayStart)
	if err != nil {
		return State{}, fmt.Errorf("failed to rebuild pnl: %w", err)
	}
	opened, err := s.ledger.OpenedCentsSince(userID, dayStart)
	if err != nil {
		return State{}, fmt.Errorf("failed to rebuild exposure: %w", err)
	}
	losses, err := s.ledger.ConsecutiveLosses(userID)
	if err != nil {
		return State{}, fmt.Errorf("failed to rebuild loss streak: %w", err)
	}
	lastLoss, err := s.ledger.LastLossSettledAt(userID)
	if err != nil {
		return State{}, fmt.Errorf("failed to rebuild cooldown: %w", err)
	}

	state := State{
		UserID:            userID,
		RealizedPnLToday:  pnl,
		OpenedCentsToday:  opened,
		ConsecutiveLosses: losses,
		RebuiltAt:         now,
	}
	if lastLoss != nil {
		state.CooldownUntil = lastLoss.Add(limits.Cooldown)
	}

	// A manual reset clears the streak for losses settled before it.
	s.mu.Lock()
	resetAt, hasReset := s.resets[userID]
	s.mu.Unlock()
	if hasReset && lastLoss != nil && lastLoss.Before(resetAt) {
		state.ConsecutiveLosses = 0
		state.CooldownUntil = time.Time{}
	}

	return state, nil
}

// Allow runs the guard chain against a signal. Checks run in a fixed
// order and the first failure short-circuits. Every decision is logged
// and counted.
func (s *Service) Allow(signal domain.TradeSignal, state State, limits Limits) Decision {
	decision := s.evaluate(signal, state, limits)
	s.record(signal, decision)
	return decision
}

func (s *Service) evaluate(signal domain.TradeSignal, state State, limits Limits) Decision {
	now := s.now()

	stale, err := s.freshness.IsStale(signal.City, signal.TargetDate, limits.FreshnessCap)
	if err != nil || stale {
		ctx := map[string]interface{}{
			"city":          string(signal.City),
			"target_date":   signal.TargetDate,
			"freshness_cap": limits.FreshnessCap.String(),
		}
		if err != nil {
			ctx["error"] = err.Error()
		}
		return Deny(DenyStaleData, ctx)
	}

	if signal.EV < limits.MinEVThreshold {
		return Deny(DenyMinEvNotMet, map[string]interface{}{
			"ev":        signal.EV,
			"threshold": limits.MinEVThreshold,
		})
	}

	cost := signal.Cost()
	if limits.MaxTradeSizeCents > 0 && cost > limits.MaxTradeSizeCents {
		return Deny(DenySizeCap, map[string]interface{}{
			"cost_cents": int64(cost),
			"cap_cents":  int64(limits.MaxTradeSizeCents),
		})
	}

	if limits.MaxDailyExposure > 0 && state.OpenedCentsToday+cost > limits.MaxDailyExposure {
		return Deny(DenyExposureCap, map[string]interface{}{
			"opened_cents": int64(state.OpenedCentsToday),
			"cost_cents":   int64(cost),
			"cap_cents":    int64(limits.MaxDailyExposure),
		})
	}

	if limits.DailyLossLimitCents > 0 && state.RealizedLossToday() >= limits.DailyLossLimitCents {
		return Deny(DenyDailyLossCap, map[string]interface{}{
			"realized_loss_cents": int64(state.RealizedLossToday()),
			"limit_cents":         int64(limits.DailyLossLimitCents),
		})
	}

	if state.CooldownUntil.After(now) {
		return Deny(DenyCooldown, map[string]interface{}{
			"cooldown_until": state.CooldownUntil.UTC().Format(time.RFC3339),
		})
	}

	if limits.ConsecutiveLossLimit > 0 && state.ConsecutiveLosses >= limits.ConsecutiveLossLimit {
		return Deny(DenyConsecutiveLossCap, map[string]interface{}{
			"consecutive_losses": state.ConsecutiveLosses,
			"limit":              limits.ConsecutiveLossLimit,
		})
	}

	return Allow()
}

// ResetConsecutiveLosses clears a user's loss streak manually. Losses
// settled after the reset instant start a fresh streak.
func (s *Service) ResetConsecutiveLosses(userID string) {
	s.mu.Lock()
	s.resets[userID] = s.now()
	s.mu.Unlock()

	s.log.Info().Str("user_id", userID).Msg("Consecutive loss streak manually reset")
}

func (s *Service) record(signal domain.TradeSignal, decision Decision) {
	if decision.Allowed {
		s.log.Debug().
			Str("city", string(signal.City)).
			Str("ticker", signal.BracketTicker).
			Msg("Guard allowed signal")
		if s.metrics != nil {
			s.metrics.GuardAllows.Inc()
		}
		return
	}

	s.log.Warn().
		Str("city", string(signal.City)).
		Str("ticker", signal.BracketTicker).
		Str("reason", string(decision.Reason)).
		Interface("context", decision.Context).
		Msg("Guard denied signal")
	if s.metrics != nil {
		s.metrics.GuardDenials.WithLabelValues(string(decision.Reason)).Inc()
	}
	if s.events != nil {
		data := map[string]interface{}{
			"city":   string(signal.City),
			"ticker": signal.BracketTicker,
			"side":   string(signal.Side),
			"reason": string(decision.Reason),
		}
		for k, v := range decision.Context {
			data[k] = v
		}
		s.events.EmitWarning(events.GuardDenied, "risk", data)
	}
}
