package kalshi

import (
	"fmt"
	"sort"
	"time"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/money"
)

// ParseBrackets converts an event's markets into ordered brackets. Strike
// bounds map as: (floor, cap) → middle, (none, cap) → bottom edge,
// (floor, none) → top edge. Exactly one of each edge must exist.
//
// Published bounds are used verbatim; any micro-gap between a cap and the
// next floor is a source quirk the probability renormalization absorbs.
func ParseBrackets(markets []Market) ([]domain.Bracket, error) {
	if len(markets) == 0 {
		return nil, fmt.Errorf("event has no markets")
	}

	brackets := make([]domain.Bracket, 0, len(markets))
	bottomEdges, topEdges := 0, 0

	for _, m := range markets {
		if m.FloorStrike == nil && m.CapStrike == nil {
			return nil, fmt.Errorf("market %s has no strike bounds", m.Ticker)
		}

		b := domain.Bracket{
			Ticker:     m.Ticker,
			LowerBound: m.FloorStrike,
			UpperBound: m.CapStrike,
			Label:      bracketLabel(m.FloorStrike, m.CapStrike),
			Status:     m.Status,
			YesBid:     money.Cents(m.YesBid),
			YesAsk:     money.Cents(m.YesAsk),
			NoBid:      money.Cents(m.NoBid),
			NoAsk:      money.Cents(m.NoAsk),
			LastPrice:  money.Cents(m.LastPrice),
		}
		if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
			b.CloseTime = t
		}

		switch {
		case m.FloorStrike == nil:
			bottomEdges++
		case m.CapStrike == nil:
			topEdges++
		}
		brackets = append(brackets, b)
	}

	if bottomEdges != 1 || topEdges != 1 {
		return nil, fmt.Errorf("expected one bottom and one top edge bracket, got %d and %d", bottomEdges, topEdges)
	}

	sort.Slice(brackets, func(i, j int) bool {
		return bracketSortKey(brackets[i]) < bracketSortKey(brackets[j])
	})

	return brackets, nil
}

// bracketLabel is deterministic from the bounds.
func bracketLabel(floor, cap *float64) string {
	switch {
	case floor == nil:
		return fmt.Sprintf("Below %g°F", *cap+1)
	case cap == nil:
		return fmt.Sprintf("%g°F or above", *floor)
	default:
		return fmt.Sprintf("%g-%g°F", *floor, *cap)
	}
}

func bracketSortKey(b domain.Bracket) float64 {
	if b.LowerBound == nil {
		// Bottom edge sorts first.
		return *b.UpperBound - 1e6
	}
	return *b.LowerBound
}
