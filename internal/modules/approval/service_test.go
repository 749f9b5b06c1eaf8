package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/clients/kalshi"
	"github.com/bozweather/trader/internal/database"
	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/units"
)

type fakeExecutor struct {
	calls int
	err   error
}

func (f *fakeExecutor) Execute(context.Context, string, domain.TradeSignal) error {
	f.calls++
	return f.err
}

func setupService(t *testing.T, executor *fakeExecutor, now *time.Time) *Service {
	t.Helper()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO users (id, api_key_id, encrypted_private_key, settings_json, created_at) VALUES (?, ?, ?, '{}', ?)`,
		"u1", "key-1", []byte("cipher"), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	return NewService(ServiceConfig{
		Repo:     NewRepository(db.Conn(), zerolog.Nop()),
		Executor: executor,
		Window:   30 * time.Minute,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return *now },
	})
}

func testSignal() domain.TradeSignal {
	return domain.TradeSignal{
		City:          units.CityNYC,
		TargetDate:    "2026-02-18",
		BracketTicker: "KXHIGHNY-26FEB18-T52",
		BracketLabel:  "52-54°F",
		Side:          domain.SideYes,
		ModelProb:     0.26,
		MarketProb:    0.22,
		EV:            0.03,
		Confidence:    domain.ConfidenceMedium,
		Quantity:      1,
		LimitPrice:    22,
	}
}

func TestApprove_PlacesOrderOnce(t *testing.T) {
	now := time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	executor := &fakeExecutor{}
	svc := setupService(t, executor, &now)

	id, err := svc.Enqueue("u1", testSignal())
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := svc.Approve(context.Background(), id); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if executor.calls != 1 {
		t.Errorf("Expected 1 placement, got %d", executor.calls)
	}

	p, err := svc.repo.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if p.Status != domain.PendingExecuted {
		t.Errorf("Expected EXECUTED, got %s", p.Status)
	}

	// A second approve must not place a second order.
	if err := svc.Approve(context.Background(), id); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict on double approve, got %v", err)
	}
	if executor.calls != 1 {
		t.Errorf("Double approve placed a second order: %d calls", executor.calls)
	}
}

func TestSweep_ExpiresThenApproveConflicts(t *testing.T) {
	now := time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	executor := &fakeExecutor{}
	svc := setupService(t, executor, &now)

	id, err := svc.Enqueue("u1", testSignal())
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// 35 minutes later the 30-minute window has passed.
	now = now.Add(35 * time.Minute)
	expired, err := svc.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if expired != 1 {
		t.Errorf("Expected 1 expiration, got %d", expired)
	}

	p, _ := svc.repo.GetByID(id)
	if p.Status != domain.PendingExpired {
		t.Errorf("Expected EXPIRED, got %s", p.Status)
	}

	if err := svc.Approve(context.Background(), id); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict approving an expired trade, got %v", err)
	}
	if executor.calls != 0 {
		t.Errorf("Expired trade placed an order: %d calls", executor.calls)
	}
}

func TestSweep_LeavesUnexpiredAlone(t *testing.T) {
	now := time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, &fakeExecutor{}, &now)

	if _, err := svc.Enqueue("u1", testSignal()); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	now = now.Add(10 * time.Minute)
	expired, err := svc.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if expired != 0 {
		t.Errorf("Expected no expirations at 10 minutes, got %d", expired)
	}
}

func TestApprove_ExchangeRejectionMarksRejected(t *testing.T) {
	now := time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	executor := &fakeExecutor{err: &kalshi.Error{
		Kind:       kalshi.KindRejected,
		StatusCode: 400,
		Code:       "insufficient_balance",
		Message:    "insufficient balance",
	}}
	svc := setupService(t, executor, &now)

	id, err := svc.Enqueue("u1", testSignal())
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	err = svc.Approve(context.Background(), id)
	if !kalshi.IsKind(err, kalshi.KindRejected) {
		t.Fatalf("Expected rejection error surfaced, got %v", err)
	}

	p, _ := svc.repo.GetByID(id)
	if p.Status != domain.PendingRejected {
		t.Errorf("Expected REJECTED, got %s", p.Status)
	}
	if p.Reason == "" {
		t.Error("Expected rejection reason recorded")
	}
}

func TestReject(t *testing.T) {
	now := time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, &fakeExecutor{}, &now)

	id, err := svc.Enqueue("u1", testSignal())
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := svc.Reject(id, "not today"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	p, _ := svc.repo.GetByID(id)
	if p.Status != domain.PendingRejected || p.Reason != "not today" {
		t.Errorf("Reject round-trip mismatch: %+v", p)
	}

	// Terminal state; rejecting again conflicts.
	if err := svc.Reject(id, ""); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
}
