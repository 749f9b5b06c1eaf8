package orchestrator

import (
	"context"

	"github.com/bozweather/trader/internal/clients/kalshi"
	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/modules/trading"
)

// reconcileUncertain resolves trades whose placement outcome was unknown
// at the time they were written. The trade id was sent as the exchange
// client_order_id, so a matching order proves the placement landed; no
// matching order and no position means it never did. Resolution failures
// leave the trade UNCERTAIN for the next cycle.
func (o *Orchestrator) reconcileUncertain(ctx context.Context, client ExchangeClient, userID string) {
	uncertain, err := o.trades.UncertainByUser(userID)
	if err != nil {
		o.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load uncertain trades")
		return
	}
	if len(uncertain) == 0 {
		return
	}

	orders, err := client.ListOrders(ctx)
	if err != nil {
		o.log.Warn().Err(err).Str("user_id", userID).Msg("Cannot list orders, trades stay uncertain")
		return
	}
	positions, err := client.GetPositions(ctx)
	if err != nil {
		o.log.Warn().Err(err).Str("user_id", userID).Msg("Cannot list positions, trades stay uncertain")
		return
	}

	byClientID := make(map[string]kalshi.Order, len(orders))
	for _, order := range orders {
		if order.ClientOrderID != "" {
			byClientID[order.ClientOrderID] = order
		}
	}
	byTicker := make(map[string]kalshi.Position, len(positions))
	for _, pos := range positions {
		byTicker[pos.Ticker] = pos
	}

	for _, trade := range uncertain {
		status, orderID := resolveAgainst(trade, byClientID, byTicker)
		if err := o.trades.Resolve(trade.ID, status, orderID); err != nil {
			o.log.Error().Err(err).Str("trade_id", trade.ID).Msg("Failed to resolve uncertain trade")
			continue
		}
		o.log.Info().
			Str("trade_id", trade.ID).
			Str("status", string(status)).
			Str("order_id", orderID).
			Msg("Uncertain trade reconciled")
	}
}

func resolveAgainst(trade trading.TradeRecord, byClientID map[string]kalshi.Order, byTicker map[string]kalshi.Position) (domain.TradeStatus, string) {
	if order, ok := byClientID[trade.ID]; ok {
		return domain.TradeOpen, order.OrderID
	}
	if pos, ok := byTicker[trade.BracketTicker]; ok && positionHeld(pos, trade.Side) {
		return domain.TradeOpen, ""
	}
	return domain.TradeCancelled, ""
}

func positionHeld(pos kalshi.Position, side domain.Side) bool {
	if side == domain.SideYes {
		return pos.YesPosition > 0
	}
	return pos.NoPosition > 0
}
