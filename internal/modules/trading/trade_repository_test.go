package trading

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/database"
	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

func setupRepo(t *testing.T) *TradeRepository {
	t.Helper()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	repo := NewTradeRepository(db.Conn(), zerolog.Nop())
	if _, err := db.Exec(
		`INSERT INTO users (id, api_key_id, encrypted_private_key, settings_json, created_at) VALUES (?, ?, ?, '{}', ?)`,
		"u1", "key-1", []byte("cipher"), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return repo
}

func sampleTrade(id string, createdAt time.Time) TradeRecord {
	return TradeRecord{
		ID:            id,
		UserID:        "u1",
		City:          units.CityNYC,
		TargetDate:    "2026-02-18",
		BracketTicker: "KXHIGHNY-26FEB18-T52",
		BracketLabel:  "52-54°F",
		Side:          domain.SideYes,
		EntryPrice:    22,
		Quantity:      1,
		ModelProb:     0.26,
		MarketProb:    0.22,
		EVAtEntry:     0.03,
		Confidence:    domain.ConfidenceMedium,
		Status:        domain.TradeOpen,
		CreatedAt:     createdAt,
	}
}

func TestTradeRepository_CreateAndGet(t *testing.T) {
	repo := setupRepo(t)
	created := time.Date(2026, 2, 17, 15, 0, 0, 0, time.UTC)

	if err := repo.Create(sampleTrade("t1", created)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID("t1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected trade, got nil")
	}
	if got.City != units.CityNYC || got.EntryPrice != 22 || got.Status != domain.TradeOpen {
		t.Errorf("Round-trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt mismatch: %v", got.CreatedAt)
	}
}

func TestTradeRepository_SettleIsOneShot(t *testing.T) {
	repo := setupRepo(t)
	if err := repo.Create(sampleTrade("t1", time.Now().UTC())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	settledAt := time.Now().UTC()
	if err := repo.Settle("t1", domain.TradeWon, 53.4, 69, "won it", settledAt); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	// A duplicate settlement observation loses the status CAS.
	err := repo.Settle("t1", domain.TradeLost, 53.4, -23, "", settledAt)
	if err != ErrStatusConflict {
		t.Errorf("Expected ErrStatusConflict on double settle, got %v", err)
	}

	got, _ := repo.GetByID("t1")
	if got.Status != domain.TradeWon {
		t.Errorf("Status changed by duplicate settle: %s", got.Status)
	}
	if got.PnLCents == nil || *got.PnLCents != 69 {
		t.Errorf("Expected pnl 69, got %v", got.PnLCents)
	}
	if got.SettlementTempF == nil || *got.SettlementTempF != 53.4 {
		t.Errorf("Expected settlement temp 53.4, got %v", got.SettlementTempF)
	}
}

func TestTradeRepository_RiskAggregates(t *testing.T) {
	repo := setupRepo(t)
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)

	for i, seed := range []struct {
		id     string
		status domain.TradeStatus
		pnl    money.Cents
	}{
		{"t1", domain.TradeWon, 69},
		{"t2", domain.TradeLost, -23},
		{"t3", domain.TradeLost, -23},
	} {
		tr := sampleTrade(seed.id, base.Add(time.Duration(i)*time.Minute))
		if err := repo.Create(tr); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		settledAt := base.Add(time.Duration(i+10) * time.Minute)
		if err := repo.Settle(seed.id, seed.status, 53.4, seed.pnl, "", settledAt); err != nil {
			t.Fatalf("Settle failed: %v", err)
		}
	}

	pnl, err := repo.RealizedPnLSince("u1", base)
	if err != nil {
		t.Fatalf("RealizedPnLSince failed: %v", err)
	}
	if pnl != 69-23-23 {
		t.Errorf("Expected realized pnl 23, got %d", pnl)
	}

	opened, err := repo.OpenedCentsSince("u1", base)
	if err != nil {
		t.Fatalf("OpenedCentsSince failed: %v", err)
	}
	if opened != 66 {
		t.Errorf("Expected opened notional 66, got %d", opened)
	}

	streak, err := repo.ConsecutiveLosses("u1")
	if err != nil {
		t.Fatalf("ConsecutiveLosses failed: %v", err)
	}
	if streak != 2 {
		t.Errorf("Expected streak 2, got %d", streak)
	}

	lastLoss, err := repo.LastLossSettledAt("u1")
	if err != nil {
		t.Fatalf("LastLossSettledAt failed: %v", err)
	}
	if lastLoss == nil || !lastLoss.Equal(base.Add(12*time.Minute)) {
		t.Errorf("Expected last loss at +12m, got %v", lastLoss)
	}
}

func TestTradeRepository_ResolveUncertain(t *testing.T) {
	repo := setupRepo(t)
	tr := sampleTrade("t1", time.Now().UTC())
	tr.Status = domain.TradeUncertain
	if err := repo.Create(tr); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.Resolve("t1", domain.TradeOpen, "ord-99"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	got, _ := repo.GetByID("t1")
	if got.Status != domain.TradeOpen || got.ExchangeOrderID != "ord-99" {
		t.Errorf("Resolve round-trip mismatch: %+v", got)
	}

	// Already resolved; a second attempt is a conflict.
	if err := repo.Resolve("t1", domain.TradeCancelled, ""); err != ErrStatusConflict {
		t.Errorf("Expected ErrStatusConflict, got %v", err)
	}
}
