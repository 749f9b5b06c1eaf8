package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"

	"github.com/bozweather/trader/internal/clients/kalshi"
	"github.com/bozweather/trader/internal/modules/approval"
	"github.com/bozweather/trader/internal/modules/users"
	"github.com/bozweather/trader/pkg/units"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Conn().Ping(); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "boz-weather-trader",
	})
}

// handleSystemStatus reports process health for the dashboard.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var pendingCount int
	if pending, err := s.approvals.Pending(); err == nil {
		pendingCount = len(pending)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "running",
		"pending_count": pendingCount,
		"goroutines":    runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc_mb": m.Alloc / 1024 / 1024,
			"sys_mb":   m.Sys / 1024 / 1024,
			"num_gc":   m.NumGC,
		},
	})
}

// handleListPending returns trades awaiting an operator decision.
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.approvals.Pending()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pending == nil {
		pending = []approval.PendingTrade{}
	}
	s.writeJSON(w, http.StatusOK, pending)
}

// handleApprove places the order for a pending trade. A double approve,
// or an approve after expiry, reports a conflict.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.approvals.Approve(r.Context(), id); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "executed", "id": id})
}

// handleReject declines a pending trade.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := s.approvals.Reject(id, body.Reason); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected", "id": id})
}

// handleGetPrediction returns the newest snapshot for ?city=&date=.
func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	city, err := units.ParseCity(r.URL.Query().Get("city"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	targetDate := r.URL.Query().Get("date")
	if targetDate == "" {
		s.writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	pred, err := s.predictions.Latest(city, targetDate)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pred == nil {
		s.writeError(w, http.StatusNotFound, "no prediction for city and date")
		return
	}
	s.writeJSON(w, http.StatusOK, pred)
}

// handleRiskStatus reports a user's current risk picture: today's P&L
// and exposure, the loss streak, and the active limits.
func (s *Server) handleRiskStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	u, err := s.users.Get(userID)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	limits := u.Settings.ResolveLimits(s.defaults)
	state, err := s.risk.RebuildState(userID, limits)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":  state,
		"limits": limits,
		"mode":   u.Settings.Mode(),
	})
}

// handleRiskReset clears a user's consecutive-loss lockout.
func (s *Server) handleRiskReset(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := s.users.Get(userID); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	s.risk.ResetConsecutiveLosses(userID)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "user_id": userID})
}

// handleGetBalance passes the exchange balance through for ?user_id=.
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	client, status, err := s.clientForRequest(r)
	if err != nil {
		s.writeError(w, status, err.Error())
		return
	}

	balance, err := client.GetBalance(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance_cents": int64(balance),
		"balance":       balance.String(),
	})
}

// handleGetPositions passes exchange positions through for ?user_id=.
func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	client, status, err := s.clientForRequest(r)
	if err != nil {
		s.writeError(w, status, err.Error())
		return
	}

	positions, err := client.GetPositions(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	if positions == nil {
		positions = []kalshi.Position{}
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) clientForRequest(r *http.Request) (*kalshi.Client, int, error) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		return nil, http.StatusBadRequest, errors.New("user_id is required")
	}
	u, err := s.users.Get(userID)
	if err != nil {
		return nil, statusFor(err), err
	}
	client, err := s.users.ClientFor(*u)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return client, http.StatusOK, nil
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, approval.ErrNotFound), errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, approval.ErrConflict):
		return http.StatusConflict
	case kalshi.IsKind(err, kalshi.KindAuth):
		return http.StatusUnauthorized
	case kalshi.IsKind(err, kalshi.KindRateLimit):
		return http.StatusTooManyRequests
	case kalshi.IsKind(err, kalshi.KindRejected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
