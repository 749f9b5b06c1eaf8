// Package risk is the single authoritative guard in front of every order
// placement. Its state is rebuilt from the trade ledger at the start of
// each cycle, never cached across cycles.
package risk

import (
	"time"

	"github.com/bozweather/trader/pkg/money"
)

// DenyReason names the guard check that blocked a signal.
type DenyReason string

const (
	DenyStaleData          DenyReason = "StaleData"
	DenyMinEvNotMet        DenyReason = "MinEvNotMet"
	DenySizeCap            DenyReason = "SizeCap"
	DenyExposureCap        DenyReason = "ExposureCap"
	DenyDailyLossCap       DenyReason = "DailyLossCap"
	DenyCooldown           DenyReason = "Cooldown"
	DenyConsecutiveLossCap DenyReason = "ConsecutiveLossCap"
)

// Decision is the outcome of one guard evaluation.
type Decision struct {
	Allowed bool                   `json:"allowed"`
	Reason  DenyReason             `json:"reason,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Allow returns the passing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a blocking decision with its reason and context.
func Deny(reason DenyReason, context map[string]interface{}) Decision {
	return Decision{Allowed: false, Reason: reason, Context: context}
}

// Limits are the per-user guard parameters, config defaults overridden by
// user settings.
type Limits struct {
	MaxTradeSizeCents    money.Cents   `json:"max_trade_size_cents"`
	DailyLossLimitCents  money.Cents   `json:"daily_loss_limit_cents"`
	MaxDailyExposure     money.Cents   `json:"max_daily_exposure_cents"`
	MinEVThreshold       float64       `json:"min_ev_threshold"`
	Cooldown             time.Duration `json:"cooldown"`
	ConsecutiveLossLimit int           `json:"consecutive_loss_limit"`
	FreshnessCap         time.Duration `json:"freshness_cap"`
}

// State is one user's risk picture for the current cycle, derived from
// the ledger at cycle start.
type State struct {
	UserID            string      `json:"user_id"`
	RealizedPnLToday  money.Cents `json:"realized_pnl_today_cents"`
	OpenedCentsToday  money.Cents `json:"opened_cents_today"`
	ConsecutiveLosses int         `json:"consecutive_losses"`
	CooldownUntil     time.Time   `json:"cooldown_until"`
	RebuiltAt         time.Time   `json:"rebuilt_at"`
}

// RealizedLossToday returns today's realized loss as a positive number,
// zero when the day is profitable.
func (s State) RealizedLossToday() money.Cents {
	if s.RealizedPnLToday >= 0 {
		return 0
	}
	return -s.RealizedPnLToday
}
