// Package approval is the durable manual-approval queue. Every status
// change is a compare-and-swap on the stored status, so an id reaches
// exactly one terminal state and never places two orders.
package approval

import (
	"time"

	"github.com/bozweather/trader/internal/domain"
)

// DefaultWindow is the approval TTL when the config does not override it.
const DefaultWindow = 30 * time.Minute

// PendingTrade is one queued signal awaiting a human decision.
type PendingTrade struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Signal    domain.TradeSignal   `json:"signal"`
	Status    domain.PendingStatus `json:"status"`
	Reason    string               `json:"reason,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt time.Time            `json:"expires_at"`
	ActedAt   *time.Time           `json:"acted_at,omitempty"`
}

// Expired reports whether the approval window has passed at now.
func (p PendingTrade) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
