package trading

import (
	"testing"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/money"
)

func TestSettlePnL(t *testing.T) {
	fees := money.DefaultFeeSchedule()

	tests := []struct {
		name     string
		entry    money.Cents
		quantity int64
		won      bool
		expected money.Cents
	}{
		{
			// Entry fee ceil(0.22) = 1, profit 78, settlement fee ceil(7.8) = 8.
			name:  "win at 22",
			entry: 22, quantity: 1, won: true,
			expected: 78 - 1 - 8,
		},
		{
			// Loss forfeits the stake plus the entry fee.
			name:  "loss at 22",
			entry: 22, quantity: 1, won: false,
			expected: -22 - 1,
		},
		{
			// 10 contracts at 45: entry fee ceil(4.5) = 5, profit 550,
			// settlement fee ceil(55) = 55.
			name:  "win at 45 x10",
			entry: 45, quantity: 10, won: true,
			expected: 550 - 5 - 55,
		},
		{
			name:  "loss at 45 x10",
			entry: 45, quantity: 10, won: false,
			expected: -450 - 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pnl := SettlePnL(fees, tt.entry, tt.quantity, tt.won)
			if pnl != tt.expected {
				t.Errorf("Expected pnl %d, got %d", tt.expected, pnl)
			}
		})
	}
}

func TestSettlePnL_RecomputableFromEntryTerms(t *testing.T) {
	fees := money.DefaultFeeSchedule()
	// Same inputs always produce the same pnl; a settled row can be
	// audited from its frozen columns alone.
	first := SettlePnL(fees, 37, 12, true)
	for i := 0; i < 5; i++ {
		if got := SettlePnL(fees, 37, 12, true); got != first {
			t.Fatalf("PnL not deterministic: %d vs %d", first, got)
		}
	}
}

func TestWon(t *testing.T) {
	bracket := domain.Bracket{LowerBound: f(52), UpperBound: f(54)}

	tests := []struct {
		name     string
		side     domain.Side
		tempF    float64
		expected bool
	}{
		{"yes inside", domain.SideYes, 53.4, true},
		{"yes on upper bound", domain.SideYes, 54.0, true},
		{"yes on lower bound", domain.SideYes, 52.0, false},
		{"yes outside", domain.SideYes, 55.0, false},
		{"no inside", domain.SideNo, 53.4, false},
		{"no outside", domain.SideNo, 55.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Won(tt.side, bracket, tt.tempF); got != tt.expected {
				t.Errorf("Won(%s, %.1f) = %v, want %v", tt.side, tt.tempF, got, tt.expected)
			}
		})
	}
}
