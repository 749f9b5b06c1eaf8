// Package users holds trading accounts: the encrypted exchange
// credentials and the per-user settings that override config defaults.
package users

import (
	"encoding/json"
	"time"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/modules/risk"
	"github.com/bozweather/trader/pkg/money"
)

// User is one trading account. The private key is stored encrypted and
// only decrypted inside the client factory.
type User struct {
	ID                  string    `json:"id"`
	APIKeyID            string    `json:"api_key_id"`
	EncryptedPrivateKey []byte    `json:"-"`
	Settings            Settings  `json:"settings"`
	CreatedAt           time.Time `json:"created_at"`
}

// Settings are per-user overrides stored as JSON. Absent fields fall
// back to the config defaults; nil pointers mean "not overridden".
type Settings struct {
	Enabled              *bool               `json:"enabled,omitempty"`
	TradingMode          *domain.TradingMode `json:"trading_mode,omitempty"`
	MaxTradeSizeCents    *money.Cents        `json:"max_trade_size_cents,omitempty"`
	DailyLossLimitCents  *money.Cents        `json:"daily_loss_limit_cents,omitempty"`
	MaxDailyExposure     *money.Cents        `json:"max_daily_exposure_cents,omitempty"`
	MinEVThreshold       *float64            `json:"min_ev_threshold,omitempty"`
	CooldownMinutes      *int                `json:"cooldown_minutes,omitempty"`
	ConsecutiveLossLimit *int                `json:"consecutive_loss_limit,omitempty"`
}

// ParseSettings decodes a settings_json payload; empty input yields the
// all-defaults zero value.
func ParseSettings(raw []byte) (Settings, error) {
	var s Settings
	if len(raw) == 0 {
		return s, nil
	}
	err := json.Unmarshal(raw, &s)
	return s, err
}

// IsEnabled reports whether the user participates in trade cycles.
// Accounts are enabled unless explicitly switched off.
func (s Settings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Mode returns the user's trading mode. Unset accounts run manual, so a
// fresh user never places an order without operator approval.
func (s Settings) Mode() domain.TradingMode {
	if s.TradingMode != nil && s.TradingMode.Valid() {
		return *s.TradingMode
	}
	return domain.ModeManual
}

// ResolveLimits layers the user's overrides on top of the config
// defaults.
func (s Settings) ResolveLimits(defaults risk.Limits) risk.Limits {
	limits := defaults
	if s.MaxTradeSizeCents != nil {
		limits.MaxTradeSizeCents = *s.MaxTradeSizeCents
	}
	if s.DailyLossLimitCents != nil {
		limits.DailyLossLimitCents = *s.DailyLossLimitCents
	}
	if s.MaxDailyExposure != nil {
		limits.MaxDailyExposure = *s.MaxDailyExposure
	}
	if s.MinEVThreshold != nil {
		limits.MinEVThreshold = *s.MinEVThreshold
	}
	if s.CooldownMinutes != nil {
		limits.Cooldown = time.Duration(*s.CooldownMinutes) * time.Minute
	}
	if s.ConsecutiveLossLimit != nil {
		limits.ConsecutiveLossLimit = *s.ConsecutiveLossLimit
	}
	return limits
}
