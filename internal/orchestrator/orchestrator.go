// Package orchestrator drives the trade cycle: read the durable
// prediction, scan the market, consult the risk guard, and route each
// surviving signal to automatic execution or the approval queue.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/clients/kalshi"
	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/events"
	"github.com/bozweather/trader/internal/metrics"
	"github.com/bozweather/trader/internal/modules/forecast"
	"github.com/bozweather/trader/internal/modules/prediction"
	"github.com/bozweather/trader/internal/modules/risk"
	"github.com/bozweather/trader/internal/modules/trading"
	"github.com/bozweather/trader/internal/modules/users"
	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

// DefaultCycleTimeout is the watchdog ceiling for one user's cycle.
const DefaultCycleTimeout = 10 * time.Minute

// predictionMaxAge is how old a stored snapshot may be before the cycle
// regenerates it against the live bracket ladder.
const predictionMaxAge = 30 * time.Minute

// ExchangeClient is the slice of the exchange adapter the cycle uses.
type ExchangeClient interface {
	ListEventsFor(ctx context.Context, city units.City, targetDate string) (*domain.MarketEvent, error)
	PlaceOrder(ctx context.Context, req kalshi.OrderRequest) (*kalshi.Order, error)
	GetBalance(ctx context.Context) (money.Cents, error)
	GetPositions(ctx context.Context) ([]kalshi.Position, error)
	ListOrders(ctx context.Context) ([]kalshi.Order, error)
}

// ClientFactory resolves a user into their exchange client.
type ClientFactory func(u users.User) (ExchangeClient, error)

// UserDirectory lists cycle participants and resolves ids.
type UserDirectory interface {
	Enabled() ([]users.User, error)
	Get(id string) (*users.User, error)
}

// PredictionSource reads and refreshes bracket predictions.
type PredictionSource interface {
	Latest(city units.City, targetDate string) (*prediction.Prediction, error)
	Generate(ctx context.Context, event domain.MarketEvent) (*prediction.Prediction, error)
}

// ForecastSource supplies the forecast set frozen into trade snapshots.
type ForecastSource interface {
	NewestFor(city units.City, targetDate string) (map[string]forecast.Forecast, error)
}

// ApprovalQueue receives signals for users trading in manual mode.
type ApprovalQueue interface {
	Enqueue(userID string, signal domain.TradeSignal) (string, error)
}

// Orchestrator owns the per-user trade cycle. Cycles for one user are
// serialized; different users run concurrently.
type Orchestrator struct {
	users       UserDirectory
	clients     ClientFactory
	predictions PredictionSource
	forecasts   ForecastSource
	risk        *risk.Service
	trades      *trading.TradeRepository
	queue       ApprovalQueue

	defaults risk.Limits
	fees     money.FeeSchedule
	kellyCap float64

	events       *events.Manager
	metrics      *metrics.Metrics
	log          zerolog.Logger
	now          func() time.Time
	cycleTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Config wires the orchestrator.
type Config struct {
	Users       UserDirectory
	Clients     ClientFactory
	Predictions PredictionSource
	Forecasts   ForecastSource
	Risk        *risk.Service
	Trades      *trading.TradeRepository
	Queue       ApprovalQueue

	Defaults risk.Limits
	Fees     money.FeeSchedule
	KellyCap float64

	Events       *events.Manager
	Metrics      *metrics.Metrics
	Log          zerolog.Logger
	Now          func() time.Time // defaults to time.Now
	CycleTimeout time.Duration    // defaults to DefaultCycleTimeout
}

// New creates the orchestrator.
func New(cfg Config) *Orchestrator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	timeout := cfg.CycleTimeout
	if timeout <= 0 {
		timeout = DefaultCycleTimeout
	}
	return &Orchestrator{
		users:        cfg.Users,
		clients:      cfg.Clients,
		predictions:  cfg.Predictions,
		forecasts:    cfg.Forecasts,
		risk:         cfg.Risk,
		trades:       cfg.Trades,
		queue:        cfg.Queue,
		defaults:     cfg.Defaults,
		fees:         cfg.Fees,
		kellyCap:     cfg.KellyCap,
		events:       cfg.Events,
		metrics:      cfg.Metrics,
		log:          cfg.Log.With().Str("service", "orchestrator").Logger(),
		now:          now,
		cycleTimeout: timeout,
		locks:        make(map[string]*sync.Mutex),
	}
}

// RunCycle runs one trade cycle for every enabled user and waits for all
// of them. A user whose previous cycle is still in flight is skipped.
func (o *Orchestrator) RunCycle(ctx context.Context) {
	enabled, err := o.users.Enabled()
	if err != nil {
		o.log.Error().Err(err).Msg("Failed to list users for trade cycle")
		return
	}

	var wg sync.WaitGroup
	for _, u := range enabled {
		u := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runUserCycle(ctx, u)
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) runUserCycle(ctx context.Context, u users.User) {
	lock := o.userLock(u.ID)
	if !lock.TryLock() {
		o.log.Warn().Str("user_id", u.ID).Msg("Previous cycle still running, skipping")
		return
	}
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, o.cycleTimeout)
	defer cancel()

	started := o.now()
	err := o.cycleUser(ctx, u)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		o.log.Error().Str("user_id", u.ID).Dur("elapsed", o.now().Sub(started)).Msg("Trade cycle stalled, cancelled by watchdog")
		if o.metrics != nil {
			o.metrics.CyclesStalled.Inc()
		}
		if o.events != nil {
			o.events.EmitWarning(events.CycleStalled, "orchestrator", map[string]interface{}{
				"user_id": u.ID,
				"timeout": o.cycleTimeout.String(),
			})
		}
	case err != nil:
		o.log.Error().Err(err).Str("user_id", u.ID).Msg("Trade cycle failed")
		if o.events != nil {
			o.events.EmitError("orchestrator", err, map[string]interface{}{"user_id": u.ID})
		}
	default:
		o.log.Info().Str("user_id", u.ID).Dur("elapsed", o.now().Sub(started)).Msg("Trade cycle completed")
		if o.metrics != nil {
			o.metrics.CyclesRun.Inc()
		}
	}
}

func (o *Orchestrator) cycleUser(ctx context.Context, u users.User) error {
	client, err := o.clients(u)
	if err != nil {
		return err
	}

	o.reconcileUncertain(ctx, client, u.ID)

	limits := u.Settings.ResolveLimits(o.defaults)
	state, err := o.risk.RebuildState(u.ID, limits)
	if err != nil {
		return err
	}
	bankroll, err := client.GetBalance(ctx)
	if err != nil {
		return err
	}

	evCfg := trading.EVConfig{
		Fees:              o.fees,
		MinEVThreshold:    limits.MinEVThreshold,
		KellyCap:          o.kellyCap,
		MaxTradeSizeCents: limits.MaxTradeSizeCents,
		BankrollCents:     bankroll,
	}

	now := o.now()
	for _, city := range units.AllCities() {
		for _, targetDate := range []string{city.LocalDate(now), city.NextLocalDate(now)} {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.cycleCityDate(ctx, client, u, &state, limits, evCfg, city, targetDate)
		}
	}

	o.publishRiskGauges(state, limits)
	return ctx.Err()
}

func (o *Orchestrator) cycleCityDate(ctx context.Context, client ExchangeClient, u users.User, state *risk.State, limits risk.Limits, evCfg trading.EVConfig, city units.City, targetDate string) {
	log := o.log.With().
		Str("user_id", u.ID).
		Str("city", string(city)).
		Str("target_date", targetDate).
		Logger()

	event, err := client.ListEventsFor(ctx, city, targetDate)
	if err != nil {
		log.Warn().Err(err).Msg("No market event, skipping")
		return
	}
	if event == nil || len(event.Brackets) == 0 {
		log.Debug().Msg("Event has no brackets, skipping")
		return
	}

	pred := o.freshPrediction(ctx, *event, limits, log)
	if pred == nil {
		return
	}

	signals := trading.ScanSignals(*pred, event.Brackets, evCfg)
	for _, signal := range signals {
		if o.metrics != nil {
			o.metrics.SignalsEmitted.WithLabelValues(string(signal.City), string(signal.Side)).Inc()
		}
		if o.events != nil {
			o.events.Emit(events.SignalEmitted, "orchestrator", map[string]interface{}{
				"user_id":   u.ID,
				"city":      string(signal.City),
				"ticker":    signal.BracketTicker,
				"side":      string(signal.Side),
				"ev":        signal.EV,
				"quantity":  signal.Quantity,
				"reasoning": signal.Reasoning,
			})
		}

		decision := o.risk.Allow(signal, *state, limits)
		if !decision.Allowed {
			continue
		}

		if u.Settings.Mode() == domain.ModeAuto {
			if err := o.executeFor(ctx, client, u.ID, signal); err != nil {
				log.Warn().Err(err).Str("ticker", signal.BracketTicker).Msg("Order placement failed")
				continue
			}
			state.OpenedCentsToday += signal.Cost()
		} else {
			id, err := o.queue.Enqueue(u.ID, signal)
			if err != nil {
				log.Error().Err(err).Str("ticker", signal.BracketTicker).Msg("Failed to queue trade for approval")
				continue
			}
			log.Info().Str("pending_id", id).Str("ticker", signal.BracketTicker).Msg("Signal queued for approval")
		}
	}
}

// freshPrediction returns a snapshot young enough to trade on,
// regenerating against the live ladder when the stored one has aged out.
// A regeneration failure falls back to the stored snapshot as long as it
// is within the freshness cap.
func (o *Orchestrator) freshPrediction(ctx context.Context, event domain.MarketEvent, limits risk.Limits, log zerolog.Logger) *prediction.Prediction {
	stored, err := o.predictions.Latest(event.City, event.TargetDate)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load prediction")
		stored = nil
	}
	if stored != nil && o.now().Sub(stored.GeneratedAt) <= predictionMaxAge {
		return stored
	}

	fresh, err := o.predictions.Generate(ctx, event)
	if err == nil {
		return fresh
	}

	if stored != nil && o.now().Sub(stored.GeneratedAt) <= limits.FreshnessCap {
		log.Warn().Err(err).Msg("Prediction refresh failed, using stored snapshot")
		return stored
	}
	log.Warn().Err(err).Msg("Prediction missing or stale, skipping")
	return nil
}

func (o *Orchestrator) publishRiskGauges(state risk.State, limits risk.Limits) {
	if o.metrics == nil {
		return
	}
	o.metrics.ConsecutiveLosses.WithLabelValues(state.UserID).Set(float64(state.ConsecutiveLosses))
	o.metrics.DailyExposure.WithLabelValues(state.UserID).Set(float64(state.OpenedCentsToday))
	o.metrics.RealizedPnL.WithLabelValues(state.UserID).Set(float64(state.RealizedPnLToday) / 100.0)
	cooldown := 0.0
	if state.CooldownUntil.After(o.now()) {
		cooldown = 1.0
	}
	o.metrics.CooldownActive.WithLabelValues(state.UserID).Set(cooldown)
}

func (o *Orchestrator) userLock(userID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[userID] = lock
	}
	return lock
}
