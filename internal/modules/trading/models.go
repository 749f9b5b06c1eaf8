// Package trading owns the EV engine, Kelly sizing, and the durable trade
// ledger.
package trading

import (
	"encoding/json"
	"time"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

// TradeRecord is one ledger row. The weather and prediction snapshots are
// frozen in by value at entry time; settling a trade never mutates them.
type TradeRecord struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	City               units.City         `json:"city"`
	TargetDate         string             `json:"target_date"`
	BracketTicker      string             `json:"bracket_ticker"`
	BracketLabel       string             `json:"bracket_label"`
	Side               domain.Side        `json:"side"`
	EntryPrice         money.Cents        `json:"entry_price_cents"`
	Quantity           int64              `json:"quantity"`
	ModelProb          float64            `json:"model_prob"`
	MarketProb         float64            `json:"market_prob"`
	EVAtEntry          float64            `json:"ev_at_entry"`
	Confidence         domain.Confidence  `json:"confidence"`
	ExchangeOrderID    string             `json:"exchange_order_id,omitempty"`
	Status             domain.TradeStatus `json:"status"`
	SettlementTempF    *float64           `json:"settlement_temp_f,omitempty"`
	PnLCents           *money.Cents       `json:"pnl_cents,omitempty"`
	Postmortem         string             `json:"postmortem,omitempty"`
	WeatherSnapshot    json.RawMessage    `json:"weather_snapshot,omitempty"`
	PredictionSnapshot json.RawMessage    `json:"prediction_snapshot,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	SettledAt          *time.Time         `json:"settled_at,omitempty"`
}

// Cost returns the entry notional in cents.
func (t TradeRecord) Cost() money.Cents {
	return money.Cents(int64(t.EntryPrice) * t.Quantity)
}

// SettlePnL computes the realized pnl in cents for a terminal outcome,
// net of entry and settlement fees. The result is fully determined by the
// frozen entry terms, so a settled trade's pnl is recomputable from its
// row alone.
func SettlePnL(fees money.FeeSchedule, entryPrice money.Cents, quantity int64, won bool) money.Cents {
	entryFee := fees.TradeFee(entryPrice, quantity)
	if !won {
		return -money.Cents(int64(entryPrice)*quantity) - entryFee
	}
	profit := money.Cents(int64(100-entryPrice) * quantity)
	return profit - entryFee - fees.SettlementFee(profit)
}

// Won reports whether a settled temperature makes this trade a winner:
// yes wins inside the bracket, no wins outside.
func Won(side domain.Side, bracket domain.Bracket, settledTempF float64) bool {
	inside := bracket.Contains(settledTempF)
	if side == domain.SideYes {
		return inside
	}
	return !inside
}
