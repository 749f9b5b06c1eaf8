package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/clients/kalshi"
	"github.com/bozweather/trader/internal/database"
	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/modules/forecast"
	"github.com/bozweather/trader/internal/modules/prediction"
	"github.com/bozweather/trader/internal/modules/risk"
	"github.com/bozweather/trader/internal/modules/trading"
	"github.com/bozweather/trader/internal/modules/users"
	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

var cycleNow = time.Date(2026, 2, 18, 15, 0, 0, 0, time.UTC)

type fakeClient struct {
	event     *domain.MarketEvent
	balance   money.Cents
	placeErr  error
	placed    []kalshi.OrderRequest
	orders    []kalshi.Order
	positions []kalshi.Position
}

func (c *fakeClient) ListEventsFor(_ context.Context, city units.City, targetDate string) (*domain.MarketEvent, error) {
	if c.event != nil && c.event.City == city && c.event.TargetDate == targetDate {
		return c.event, nil
	}
	return nil, nil
}

func (c *fakeClient) PlaceOrder(_ context.Context, req kalshi.OrderRequest) (*kalshi.Order, error) {
	c.placed = append(c.placed, req)
	if c.placeErr != nil {
		return nil, c.placeErr
	}
	return &kalshi.Order{OrderID: "ord-1", Ticker: req.Ticker, ClientOrderID: req.ClientOrderID}, nil
}

func (c *fakeClient) GetBalance(context.Context) (money.Cents, error) {
	return c.balance, nil
}

func (c *fakeClient) GetPositions(context.Context) ([]kalshi.Position, error) {
	return c.positions, nil
}

func (c *fakeClient) ListOrders(context.Context) ([]kalshi.Order, error) {
	return c.orders, nil
}

type fakeUsers struct {
	list []users.User
}

func (f *fakeUsers) Enabled() ([]users.User, error) { return f.list, nil }

func (f *fakeUsers) Get(id string) (*users.User, error) {
	for i := range f.list {
		if f.list[i].ID == id {
			return &f.list[i], nil
		}
	}
	return nil, users.ErrNotFound
}

type fakePredictions struct {
	pred *prediction.Prediction
}

func (f *fakePredictions) Latest(city units.City, targetDate string) (*prediction.Prediction, error) {
	if f.pred != nil && f.pred.City == city && f.pred.TargetDate == targetDate {
		return f.pred, nil
	}
	return nil, nil
}

func (f *fakePredictions) Generate(_ context.Context, event domain.MarketEvent) (*prediction.Prediction, error) {
	if f.pred != nil && f.pred.City == event.City {
		return f.pred, nil
	}
	return nil, errors.New("no forecasts")
}

type fakeForecasts struct{}

func (fakeForecasts) NewestFor(city units.City, targetDate string) (map[string]forecast.Forecast, error) {
	return map[string]forecast.Forecast{
		"nws": {City: city, TargetDate: targetDate, Source: "nws", PredictedHigh: 55},
	}, nil
}

type fakeQueue struct {
	enqueued []domain.TradeSignal
}

func (q *fakeQueue) Enqueue(_ string, signal domain.TradeSignal) (string, error) {
	q.enqueued = append(q.enqueued, signal)
	return "pending-1", nil
}

type fakeFreshness struct {
	stale bool
}

func (f fakeFreshness) IsStale(units.City, string, time.Duration) (bool, error) {
	return f.stale, nil
}

type fixture struct {
	orch   *Orchestrator
	client *fakeClient
	queue  *fakeQueue
	trades *trading.TradeRepository
}

func nycEvent() *domain.MarketEvent {
	lower, upper := 52.0, 54.0
	return &domain.MarketEvent{
		EventID:    "KXHIGHNY-26FEB18",
		City:       units.CityNYC,
		TargetDate: "2026-02-18",
		Brackets: []domain.Bracket{
			{
				Ticker:     "KXHIGHNY-26FEB18-T52",
				LowerBound: &lower,
				UpperBound: &upper,
				Label:      "52-54°F",
				Status:     "active",
				YesAsk:     22,
			},
		},
	}
}

func nycPrediction(generatedAt time.Time) *prediction.Prediction {
	return &prediction.Prediction{
		City:         units.CityNYC,
		TargetDate:   "2026-02-18",
		EnsembleHigh: 53.0,
		ErrorStd:     3.0,
		Confidence:   domain.ConfidenceMedium,
		Brackets: []prediction.BracketProbability{
			{Ticker: "KXHIGHNY-26FEB18-T52", Label: "52-54°F", Probability: 0.45},
		},
		GeneratedAt: generatedAt,
	}
}

func setup(t *testing.T, mode domain.TradingMode, stale bool) fixture {
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
		"u1", "key-1", []byte("cipher"), cycleNow.Format(time.RFC3339),
	); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	trades := trading.NewTradeRepository(db.Conn(), zerolog.Nop())
	guard := risk.NewService(risk.ServiceConfig{
		Ledger:    trades,
		Freshness: fakeFreshness{stale: stale},
		Log:       zerolog.Nop(),
		Now:       func() time.Time { return cycleNow },
	})

	client := &fakeClient{event: nycEvent(), balance: 100000}
	queue := &fakeQueue{}
	user := users.User{ID: "u1", APIKeyID: "key-1"}
	user.Settings.TradingMode = &mode

	orch := New(Config{
		Users:       &fakeUsers{list: []users.User{user}},
		Clients:     func(users.User) (ExchangeClient, error) { return client, nil },
		Predictions: &fakePredictions{pred: nycPrediction(cycleNow.Add(-5 * time.Minute))},
		Forecasts:   fakeForecasts{},
		Risk:        guard,
		Trades:      trades,
		Queue:       queue,
		Defaults: risk.Limits{
			MaxTradeSizeCents:    10000,
			DailyLossLimitCents:  5000,
			MaxDailyExposure:     50000,
			MinEVThreshold:       0.02,
			Cooldown:             time.Hour,
			ConsecutiveLossLimit: 3,
			FreshnessCap:         2 * time.Hour,
		},
		Fees:     money.DefaultFeeSchedule(),
		KellyCap: 0.25,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return cycleNow },
	})
	return fixture{orch: orch, client: client, queue: queue, trades: trades}
}

func TestRunCycle_AutoModePlacesOrder(t *testing.T) {
	fx := setup(t, domain.ModeAuto, false)

	fx.orch.RunCycle(context.Background())

	if len(fx.client.placed) != 1 {
		t.Fatalf("Expected 1 order placed, got %d", len(fx.client.placed))
	}
	req := fx.client.placed[0]
	if req.Ticker != "KXHIGHNY-26FEB18-T52" || req.Side != "yes" || req.YesPrice != 22 {
		t.Errorf("Unexpected order request: %+v", req)
	}
	if req.ClientOrderID == "" {
		t.Error("Order must carry a client_order_id for reconciliation")
	}

	open, err := fx.trades.OpenByUser("u1")
	if err != nil {
		t.Fatalf("OpenByUser failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("Expected 1 open trade, got %d", len(open))
	}
	trade := open[0]
	if trade.ExchangeOrderID != "ord-1" {
		t.Errorf("Expected exchange order id recorded, got %q", trade.ExchangeOrderID)
	}
	if trade.EntryPrice != 22 || trade.Status != domain.TradeOpen {
		t.Errorf("Unexpected trade record: price %d status %s", trade.EntryPrice, trade.Status)
	}
	if len(trade.PredictionSnapshot) == 0 || len(trade.WeatherSnapshot) == 0 {
		t.Error("Snapshots must be frozen into the trade record")
	}
	if len(fx.queue.enqueued) != 0 {
		t.Error("Auto mode must not enqueue")
	}
}

func TestRunCycle_ManualModeQueues(t *testing.T) {
	fx := setup(t, domain.ModeManual, false)

	fx.orch.RunCycle(context.Background())

	if len(fx.client.placed) != 0 {
		t.Errorf("Manual mode placed %d orders", len(fx.client.placed))
	}
	if len(fx.queue.enqueued) != 1 {
		t.Fatalf("Expected 1 enqueued signal, got %d", len(fx.queue.enqueued))
	}
	sig := fx.queue.enqueued[0]
	if sig.BracketTicker != "KXHIGHNY-26FEB18-T52" || sig.Side != domain.SideYes {
		t.Errorf("Unexpected queued signal: %+v", sig)
	}

	open, _ := fx.trades.OpenByUser("u1")
	if len(open) != 0 {
		t.Error("Manual mode must not create trade records before approval")
	}
}

func TestRunCycle_StaleForecastBlocksPlacement(t *testing.T) {
	fx := setup(t, domain.ModeAuto, true)

	fx.orch.RunCycle(context.Background())

	if len(fx.client.placed) != 0 {
		t.Errorf("Guard deny must block placement, got %d orders", len(fx.client.placed))
	}
}

func TestExecute_AmbiguousFailureRecordsUncertain(t *testing.T) {
	fx := setup(t, domain.ModeAuto, false)
	fx.client.placeErr = &kalshi.Error{Kind: kalshi.KindConnection, Message: "timeout after send"}

	fx.orch.RunCycle(context.Background())

	uncertain, err := fx.trades.UncertainByUser("u1")
	if err != nil {
		t.Fatalf("UncertainByUser failed: %v", err)
	}
	if len(uncertain) != 1 {
		t.Fatalf("Expected 1 uncertain trade, got %d", len(uncertain))
	}
	if uncertain[0].ExchangeOrderID != "" {
		t.Error("Uncertain trade must not carry an order id")
	}
}

func TestExecute_RejectionLeavesNoRecord(t *testing.T) {
	fx := setup(t, domain.ModeAuto, false)
	fx.client.placeErr = &kalshi.Error{Kind: kalshi.KindRejected, Code: "insufficient_balance"}

	fx.orch.RunCycle(context.Background())

	open, _ := fx.trades.OpenByUser("u1")
	uncertain, _ := fx.trades.UncertainByUser("u1")
	if len(open) != 0 || len(uncertain) != 0 {
		t.Errorf("Rejected order must leave no trade rows, got %d open %d uncertain", len(open), len(uncertain))
	}
}

func TestReconcile_ResolvesUncertainTrades(t *testing.T) {
	fx := setup(t, domain.ModeManual, false)

	seed := func(id, ticker string) {
		rec := trading.TradeRecord{
			ID: id, UserID: "u1", City: units.CityNYC, TargetDate: "2026-02-18",
			BracketTicker: ticker, BracketLabel: "52-54°F", Side: domain.SideYes,
			EntryPrice: 22, Quantity: 1, Confidence: domain.ConfidenceMedium,
			Status: domain.TradeUncertain, CreatedAt: cycleNow.Add(-time.Hour),
		}
		if err := fx.trades.Create(rec); err != nil {
			t.Fatalf("Failed to seed uncertain trade: %v", err)
		}
	}
	seed("t-landed", "KXHIGHNY-26FEB18-T52")
	seed("t-lost", "KXHIGHNY-26FEB18-T55")

	fx.client.orders = []kalshi.Order{{OrderID: "ord-9", ClientOrderID: "t-landed"}}

	fx.orch.RunCycle(context.Background())

	landed, _ := fx.trades.GetByID("t-landed")
	if landed.Status != domain.TradeOpen || landed.ExchangeOrderID != "ord-9" {
		t.Errorf("Expected landed trade OPEN with ord-9, got %s %q", landed.Status, landed.ExchangeOrderID)
	}
	lost, _ := fx.trades.GetByID("t-lost")
	if lost.Status != domain.TradeCancelled {
		t.Errorf("Expected vanished order CANCELLED, got %s", lost.Status)
	}
}

func TestReconcile_PositionWithoutOrderStaysOpen(t *testing.T) {
	fx := setup(t, domain.ModeManual, false)
	rec := trading.TradeRecord{
		ID: "t-pos", UserID: "u1", City: units.CityNYC, TargetDate: "2026-02-18",
		BracketTicker: "KXHIGHNY-26FEB18-T52", BracketLabel: "52-54°F", Side: domain.SideYes,
		EntryPrice: 22, Quantity: 1, Confidence: domain.ConfidenceMedium,
		Status: domain.TradeUncertain, CreatedAt: cycleNow.Add(-time.Hour),
	}
	if err := fx.trades.Create(rec); err != nil {
		t.Fatalf("Failed to seed uncertain trade: %v", err)
	}
	fx.client.positions = []kalshi.Position{{Ticker: "KXHIGHNY-26FEB18-T52", YesPosition: 1}}

	fx.orch.RunCycle(context.Background())

	got, _ := fx.trades.GetByID("t-pos")
	if got.Status != domain.TradeOpen {
		t.Errorf("Filled position must resolve OPEN, got %s", got.Status)
	}
}
