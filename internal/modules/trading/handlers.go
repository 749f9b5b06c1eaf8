package trading

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// TradingHandlers contains HTTP handlers for the trade ledger API.
type TradingHandlers struct {
	tradeRepo *TradeRepository
	log       zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance.
func NewTradingHandlers(tradeRepo *TradeRepository, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		tradeRepo: tradeRepo,
		log:       log.With().Str("handler", "trading").Logger(),
	}
}

// HandleGetTrades returns a user's trade history, most recent first.
// GET /api/trades?user_id=...&limit=50
func (h *TradingHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}

	trades, err := h.tradeRepo.History(userID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get trade history")
		http.Error(w, "Failed to get trade history", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []TradeRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(trades)
}

// HandleGetOpenTrades returns a user's OPEN trades.
// GET /api/trades/open?user_id=...
func (h *TradingHandlers) HandleGetOpenTrades(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	trades, err := h.tradeRepo.OpenByUser(userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get open trades")
		http.Error(w, "Failed to get open trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []TradeRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(trades)
}
