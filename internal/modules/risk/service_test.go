package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

type fakeLedger struct {
	pnl      money.Cents
	opened   money.Cents
	losses   int
	lastLoss *time.Time
}

func (f *fakeLedger) RealizedPnLSince(string, time.Time) (money.Cents, error) { return f.pnl, nil }
func (f *fakeLedger) OpenedCentsSince(string, time.Time) (money.Cents, error) { return f.opened, nil }
func (f *fakeLedger) ConsecutiveLosses(string) (int, error)                   { return f.losses, nil }
func (f *fakeLedger) LastLossSettledAt(string) (*time.Time, error)            { return f.lastLoss, nil }

type fakeFreshness struct{ stale bool }

func (f *fakeFreshness) IsStale(units.City, string, time.Duration) (bool, error) {
	return f.stale, nil
}

func testLimits() Limits {
	return Limits{
		MaxTradeSizeCents:    10000,
		DailyLossLimitCents:  5000,
		MaxDailyExposure:     50000,
		MinEVThreshold:       0.05,
		Cooldown:             60 * time.Minute,
		ConsecutiveLossLimit: 3,
		FreshnessCap:         120 * time.Minute,
	}
}

func testSignal() domain.TradeSignal {
	return domain.TradeSignal{
		City:          units.CityNYC,
		TargetDate:    "2026-02-18",
		BracketTicker: "KXHIGHNY-26FEB18-T52",
		Side:          domain.SideYes,
		EV:            0.08,
		Quantity:      10,
		LimitPrice:    22,
	}
}

func newTestService(ledger *fakeLedger, fresh *fakeFreshness, now time.Time) *Service {
	return NewService(ServiceConfig{
		Ledger:    ledger,
		Freshness: fresh,
		Log:       zerolog.Nop(),
		Now:       func() time.Time { return now },
	})
}

func TestAllow_PassesCleanSignal(t *testing.T) {
	now := time.Date(2026, 2, 18, 14, 0, 0, 0, time.UTC)
	svc := newTestService(&fakeLedger{}, &fakeFreshness{}, now)

	state, err := svc.RebuildState("u1", testLimits())
	if err != nil {
		t.Fatalf("RebuildState failed: %v", err)
	}

	decision := svc.Allow(testSignal(), state, testLimits())
	if !decision.Allowed {
		t.Errorf("Expected allow, got deny(%s)", decision.Reason)
	}
}

func TestAllow_DenyChain(t *testing.T) {
	now := time.Date(2026, 2, 18, 14, 0, 0, 0, time.UTC)
	recentLoss := now.Add(-10 * time.Minute)

	tests := []struct {
		name     string
		signal   func() domain.TradeSignal
		ledger   fakeLedger
		stale    bool
		expected DenyReason
	}{
		{
			name:     "stale data",
			signal:   testSignal,
			stale:    true,
			expected: DenyStaleData,
		},
		{
			name: "min ev",
			signal: func() domain.TradeSignal {
				s := testSignal()
				s.EV = 0.01
				return s
			},
			expected: DenyMinEvNotMet,
		},
		{
			name: "size cap",
			signal: func() domain.TradeSignal {
				s := testSignal()
				s.Quantity = 500 // 500 x 22 = 11000 > 10000
				return s
			},
			expected: DenySizeCap,
		},
		{
			name:     "exposure cap",
			signal:   testSignal,
			ledger:   fakeLedger{opened: 49900}, // +220 breaches 50000
			expected: DenyExposureCap,
		},
		{
			name:     "daily loss cap",
			signal:   testSignal,
			ledger:   fakeLedger{pnl: -5000},
			expected: DenyDailyLossCap,
		},
		{
			name:     "cooldown",
			signal:   testSignal,
			ledger:   fakeLedger{losses: 1, lastLoss: &recentLoss},
			expected: DenyCooldown,
		},
		{
			name:     "consecutive losses",
			signal:   testSignal,
			ledger:   fakeLedger{losses: 3},
			expected: DenyConsecutiveLossCap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := tt.ledger
			svc := newTestService(&ledger, &fakeFreshness{stale: tt.stale}, now)
			state, err := svc.RebuildState("u1", testLimits())
			if err != nil {
				t.Fatalf("RebuildState failed: %v", err)
			}

			decision := svc.Allow(tt.signal(), state, testLimits())
			if decision.Allowed {
				t.Fatalf("Expected deny(%s), got allow", tt.expected)
			}
			if decision.Reason != tt.expected {
				t.Errorf("Expected reason %s, got %s", tt.expected, decision.Reason)
			}
		})
	}
}

func TestAllow_OrderShortCircuits(t *testing.T) {
	// Stale data and a blown loss cap at once: freshness runs first.
	now := time.Date(2026, 2, 18, 14, 0, 0, 0, time.UTC)
	svc := newTestService(&fakeLedger{pnl: -9000}, &fakeFreshness{stale: true}, now)

	state, err := svc.RebuildState("u1", testLimits())
	if err != nil {
		t.Fatalf("RebuildState failed: %v", err)
	}
	decision := svc.Allow(testSignal(), state, testLimits())
	if decision.Reason != DenyStaleData {
		t.Errorf("Expected StaleData to short-circuit, got %s", decision.Reason)
	}
}

func TestRebuildState_CooldownFromLastLoss(t *testing.T) {
	now := time.Date(2026, 2, 18, 14, 0, 0, 0, time.UTC)
	lastLoss := now.Add(-30 * time.Minute)
	svc := newTestService(&fakeLedger{losses: 1, lastLoss: &lastLoss}, &fakeFreshness{}, now)

	state, err := svc.RebuildState("u1", testLimits())
	if err != nil {
		t.Fatalf("RebuildState failed: %v", err)
	}
	if !state.CooldownUntil.Equal(lastLoss.Add(60 * time.Minute)) {
		t.Errorf("Expected cooldown until loss+60m, got %v", state.CooldownUntil)
	}
}

func TestResetConsecutiveLosses(t *testing.T) {
	now := time.Date(2026, 2, 18, 14, 0, 0, 0, time.UTC)
	oldLoss := now.Add(-2 * time.Hour)
	svc := newTestService(&fakeLedger{losses: 3, lastLoss: &oldLoss}, &fakeFreshness{}, now)

	svc.ResetConsecutiveLosses("u1")

	state, err := svc.RebuildState("u1", testLimits())
	if err != nil {
		t.Fatalf("RebuildState failed: %v", err)
	}
	if state.ConsecutiveLosses != 0 {
		t.Errorf("Expected streak cleared by reset, got %d", state.ConsecutiveLosses)
	}

	decision := svc.Allow(testSignal(), state, testLimits())
	if !decision.Allowed {
		t.Errorf("Expected allow after reset, got deny(%s)", decision.Reason)
	}
}
