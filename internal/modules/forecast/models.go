// Package forecast ingests, normalizes, and serves weather forecasts from
// every configured provider.
package forecast

import (
	"encoding/json"
	"time"

	"github.com/bozweather/trader/pkg/units"
)

// Forecast is one provider reading for a (city, target date). Rows are
// immutable once written; (city, target_date, source, model_run_ts) is
// unique and late arrivals never overwrite.
type Forecast struct {
	ID            int64           `json:"id"`
	City          units.City      `json:"city"`
	TargetDate    string          `json:"target_date"`
	Source        string          `json:"source"`
	PredictedHigh float64         `json:"predicted_high_f"`
	ModelRunTS    time.Time       `json:"model_run_ts"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
	FetchedAt     time.Time       `json:"fetched_at"`
}

// AgeAt returns how old the forecast is at the given instant.
func (f Forecast) AgeAt(now time.Time) time.Duration {
	return now.Sub(f.FetchedAt)
}
