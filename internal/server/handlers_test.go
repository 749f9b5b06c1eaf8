package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bozweather/trader/internal/crypto"
	"github.com/bozweather/trader/internal/database"
	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/modules/approval"
	"github.com/bozweather/trader/internal/modules/prediction"
	"github.com/bozweather/trader/internal/modules/risk"
	"github.com/bozweather/trader/internal/modules/trading"
	"github.com/bozweather/trader/internal/modules/users"
	"github.com/bozweather/trader/pkg/units"
)

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, string, domain.TradeSignal) error { return nil }

func setupServer(t *testing.T) (*Server, *approval.Service) {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	log := zerolog.Nop()
	userRepo := users.NewRepository(db.Conn(), log)
	require.NoError(t, userRepo.Create(users.User{
		ID:                  "u1",
		APIKeyID:            "key-1",
		EncryptedPrivateKey: []byte("cipher"),
		CreatedAt:           time.Now().UTC(),
	}))

	tradeRepo := trading.NewTradeRepository(db.Conn(), log)
	approvals := approval.NewService(approval.ServiceConfig{
		Repo:     approval.NewRepository(db.Conn(), log),
		Executor: noopExecutor{},
		Window:   30 * time.Minute,
		Log:      log,
	})
	riskSvc := risk.NewService(risk.ServiceConfig{
		Ledger: tradeRepo,
		Log:    log,
	})

	defaults := risk.Limits{
		MaxTradeSizeCents:    10000,
		DailyLossLimitCents:  5000,
		MaxDailyExposure:     50000,
		MinEVThreshold:       0.05,
		Cooldown:             time.Hour,
		ConsecutiveLossLimit: 3,
		FreshnessCap:         2 * time.Hour,
	}

	srv := New(Config{
		Port:        0,
		Log:         log,
		DB:          db,
		DevMode:     true,
		Trades:      tradeRepo,
		Approvals:   approvals,
		Risk:        riskSvc,
		Predictions: prediction.NewRepository(db.Conn(), log),
		Users:       users.NewService(userRepo, crypto.NewKeystore("test-key"), "", log),
		Defaults:    defaults,
	})
	return srv, approvals
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleListPending_Empty(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(srv, http.MethodGet, "/api/pending/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestApproveRejectLifecycle(t *testing.T) {
	srv, approvals := setupServer(t)

	id, err := approvals.Enqueue("u1", domain.TradeSignal{
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
	})
	require.NoError(t, err)

	w := doRequest(srv, http.MethodGet, "/api/pending/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = doRequest(srv, http.MethodPost, "/api/pending/"+id+"/reject", `{"reason":"not today"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Terminal state; a second decision conflicts.
	w = doRequest(srv, http.MethodPost, "/api/pending/"+id+"/approve", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApprove_UnknownID(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(srv, http.MethodPost, "/api/pending/nope/approve", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPrediction_Validation(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(srv, http.MethodGet, "/api/predictions?city=atlantis&date=2026-02-18", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(srv, http.MethodGet, "/api/predictions?city=nyc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(srv, http.MethodGet, "/api/predictions?city=nyc&date=2026-02-18", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRiskStatus(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(srv, http.MethodGet, "/api/risk/u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Limits risk.Limits `json:"limits"`
		Mode   string      `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, srv.defaults.MaxTradeSizeCents, body.Limits.MaxTradeSizeCents)
	assert.Equal(t, string(domain.ModeManual), body.Mode)

	w = doRequest(srv, http.MethodGet, "/api/risk/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRiskReset(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(srv, http.MethodPost, "/api/risk/u1/reset", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(srv, http.MethodPost, "/api/risk/ghost/reset", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBalance_RequiresUserID(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(srv, http.MethodGet, "/api/balance", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(srv, http.MethodGet, "/api/balance?user_id=ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
