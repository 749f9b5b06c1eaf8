// Package domain holds the enums and value types shared across modules.
package domain

import (
	"fmt"
	"time"

	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

// Side is the side of a binary contract.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// IsValid reports whether s is a known side.
func (s Side) IsValid() bool {
	return s == SideYes || s == SideNo
}

// Confidence buckets a prediction's quality score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Rank orders confidences for signal tie-breaking (higher is better).
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	default:
		return 1
	}
}

// TradeStatus is the lifecycle state of an executed trade.
type TradeStatus string

const (
	TradeOpen      TradeStatus = "OPEN"
	TradeWon       TradeStatus = "WON"
	TradeLost      TradeStatus = "LOST"
	TradeCancelled TradeStatus = "CANCELLED"
	// TradeUncertain marks an order whose placement outcome is unknown
	// (timeout after send); reconciled from positions before the next cycle.
	TradeUncertain TradeStatus = "UNCERTAIN"
)

// Terminal reports whether the status admits no further transitions.
func (s TradeStatus) Terminal() bool {
	return s == TradeWon || s == TradeLost || s == TradeCancelled
}

// PendingStatus is the lifecycle state of a queued manual-approval trade.
type PendingStatus string

const (
	PendingPending  PendingStatus = "PENDING"
	PendingApproved PendingStatus = "APPROVED"
	PendingRejected PendingStatus = "REJECTED"
	PendingExpired  PendingStatus = "EXPIRED"
	PendingExecuted PendingStatus = "EXECUTED"
)

// Terminal reports whether the status admits no further transitions.
func (s PendingStatus) Terminal() bool {
	return s == PendingRejected || s == PendingExpired || s == PendingExecuted
}

// TradingMode controls whether signals execute automatically or queue for
// manual approval.
type TradingMode string

const (
	ModeAuto   TradingMode = "auto"
	ModeManual TradingMode = "manual"
)

// Valid reports whether the mode is a known value.
func (m TradingMode) Valid() bool {
	return m == ModeAuto || m == ModeManual
}

// Bracket is one temperature range of a daily-high market. Exactly one
// bracket per event has a nil LowerBound (bottom edge) and one a nil
// UpperBound (top edge).
type Bracket struct {
	Ticker     string      `json:"ticker"`
	LowerBound *float64    `json:"lower_bound,omitempty"`
	UpperBound *float64    `json:"upper_bound,omitempty"`
	Label      string      `json:"label"`
	Status     string      `json:"status"`
	YesBid     money.Cents `json:"yes_bid_cents"`
	YesAsk     money.Cents `json:"yes_ask_cents"`
	NoBid      money.Cents `json:"no_bid_cents"`
	NoAsk      money.Cents `json:"no_ask_cents"`
	LastPrice  money.Cents `json:"last_price_cents"`
	CloseTime  time.Time   `json:"close_time_utc"`
}

// Contains reports whether a settled temperature lands in the bracket.
// Bounds follow the exchange's published strikes: a bracket covers
// (lower, upper] against the official high.
func (b Bracket) Contains(tempF float64) bool {
	if b.LowerBound != nil && tempF <= *b.LowerBound {
		return false
	}
	if b.UpperBound != nil && tempF > *b.UpperBound {
		return false
	}
	return true
}

// MarketEvent is a single city/date market with its brackets.
type MarketEvent struct {
	EventID    string        `json:"event_id"`
	City       units.City    `json:"city"`
	TargetDate string        `json:"target_date"`
	Brackets   []Bracket     `json:"brackets"`
}

// TradeSignal is the ephemeral output of one EV scan; it lives for at most
// one trade cycle.
type TradeSignal struct {
	City          units.City  `json:"city"`
	TargetDate    string      `json:"target_date"`
	BracketTicker string      `json:"bracket_ticker"`
	BracketLabel  string      `json:"bracket_label"`
	Side          Side        `json:"side"`
	ModelProb     float64     `json:"model_probability"`
	MarketProb    float64     `json:"market_probability"`
	EV            float64     `json:"ev"`
	Confidence    Confidence  `json:"confidence"`
	Reasoning     string      `json:"reasoning"`
	Quantity      int64       `json:"sized_quantity"`
	LimitPrice    money.Cents `json:"limit_price_cents"`
}

// Cost returns the total entry cost of the signal in cents.
func (s TradeSignal) Cost() money.Cents {
	return money.Cents(int64(s.LimitPrice) * s.Quantity)
}

// Validate checks the signal's wire constraints before it reaches the
// exchange.
func (s TradeSignal) Validate() error {
	if !s.City.IsValid() {
		return fmt.Errorf("invalid city %q", s.City)
	}
	if !s.Side.IsValid() {
		return fmt.Errorf("invalid side %q", s.Side)
	}
	if s.Quantity < 1 {
		return fmt.Errorf("quantity %d below minimum", s.Quantity)
	}
	return money.CheckPrice(s.LimitPrice)
}
