package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/clients/kalshi"
	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/events"
	"github.com/bozweather/trader/internal/metrics"
)

// Executor places an approved signal on the exchange and records it in
// the trade ledger. The orchestrator provides the implementation.
type Executor interface {
	Execute(ctx context.Context, userID string, signal domain.TradeSignal) error
}

// Service owns the approval queue lifecycle.
type Service struct {
	repo     *Repository
	executor Executor
	window   time.Duration
	events   *events.Manager
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// ServiceConfig wires the queue.
type ServiceConfig struct {
	Repo     *Repository
	Executor Executor
	Window   time.Duration // defaults to DefaultWindow
	Events   *events.Manager
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	Now      func() time.Time // defaults to time.Now
}

// NewService creates the approval queue service.
func NewService(cfg ServiceConfig) *Service {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     cfg.Repo,
		executor: cfg.Executor,
		window:   window,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		log:      cfg.Log.With().Str("service", "approval").Logger(),
		now:      now,
	}
}

// SetExecutor binds the order executor after construction. The queue and
// the orchestrator reference each other, so one side binds late.
func (s *Service) SetExecutor(e Executor) {
	s.executor = e
}

// Enqueue queues a signal for manual approval and returns the new id.
func (s *Service) Enqueue(userID string, signal domain.TradeSignal) (string, error) {
	now := s.now().UTC()
	p := PendingTrade{
		ID:        uuid.NewString(),
		UserID:    userID,
		Signal:    signal,
		Status:    domain.PendingPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.window),
	}
	if err := s.repo.Create(p); err != nil {
		return "", err
	}

	s.log.Info().
		Str("pending_id", p.ID).
		Str("city", string(signal.City)).
		Str("ticker", signal.BracketTicker).
		Time("expires_at", p.ExpiresAt).
		Msg("Trade queued for approval")
	s.transitionMetric(domain.PendingPending)
	if s.events != nil {
		s.events.Emit(events.TradeQueued, "approval", map[string]interface{}{
			"pending_id": p.ID,
			"city":       string(signal.City),
			"ticker":     signal.BracketTicker,
			"side":       string(signal.Side),
			"expires_at": p.ExpiresAt.Format(time.RFC3339),
		})
	}
	return p.ID, nil
}

// Approve moves a PENDING trade through APPROVED and places the order.
// The initial CAS guarantees at most one placement per id: a second
// approve, or an approve after expiry, returns ErrConflict. An exchange
// rejection marks the row REJECTED with the server's reason; any other
// placement failure leaves the row APPROVED for operator inspection.
func (s *Service) Approve(ctx context.Context, id string) error {
	now := s.now()
	if err := s.repo.Transition(id, domain.PendingPending, domain.PendingApproved, "", now); err != nil {
		return err
	}
	s.transitionMetric(domain.PendingApproved)

	p, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}

	if err := s.executor.Execute(ctx, p.UserID, p.Signal); err != nil {
		if kalshi.IsKind(err, kalshi.KindRejected) {
			reason := fmt.Sprintf("exchange rejected: %v", err)
			if terr := s.repo.Transition(id, domain.PendingApproved, domain.PendingRejected, reason, s.now()); terr != nil {
				return terr
			}
			s.transitionMetric(domain.PendingRejected)
			return err
		}
		s.log.Error().Err(err).Str("pending_id", id).Msg("Order placement failed after approval")
		return err
	}

	if err := s.repo.Transition(id, domain.PendingApproved, domain.PendingExecuted, "", s.now()); err != nil {
		return err
	}
	s.transitionMetric(domain.PendingExecuted)
	if s.events != nil {
		s.events.Emit(events.TradeExecuted, "approval", map[string]interface{}{
			"pending_id": id,
			"city":       string(p.Signal.City),
			"ticker":     p.Signal.BracketTicker,
		})
	}
	return nil
}

// Reject moves a PENDING trade to REJECTED.
func (s *Service) Reject(id, reason string) error {
	if reason == "" {
		reason = "rejected by operator"
	}
	if err := s.repo.Transition(id, domain.PendingPending, domain.PendingRejected, reason, s.now()); err != nil {
		return err
	}
	s.transitionMetric(domain.PendingRejected)
	return nil
}

// Sweep expires every overdue PENDING trade. Returns how many expired.
func (s *Service) Sweep() (int, error) {
	expired, err := s.repo.ExpireDue(s.now())
	if err != nil {
		return len(expired), err
	}
	if len(expired) > 0 {
		s.log.Info().Int("count", len(expired)).Msg("Expired pending trades")
		for range expired {
			s.transitionMetric(domain.PendingExpired)
		}
	}
	return len(expired), nil
}

// Pending lists trades still awaiting a decision.
func (s *Service) Pending() ([]PendingTrade, error) {
	return s.repo.ListByStatus(domain.PendingPending)
}

func (s *Service) transitionMetric(to domain.PendingStatus) {
	if s.metrics != nil {
		s.metrics.PendingTransitions.WithLabelValues(string(to)).Inc()
	}
}
