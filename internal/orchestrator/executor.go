package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/bozweather/trader/internal/clients/kalshi"
	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/events"
	"github.com/bozweather/trader/internal/modules/trading"
)

// Execute places an approved signal for a user. It satisfies the
// approval queue's Executor; the queue's CAS guarantees it runs at most
// once per pending trade.
func (o *Orchestrator) Execute(ctx context.Context, userID string, signal domain.TradeSignal) error {
	u, err := o.users.Get(userID)
	if err != nil {
		return err
	}
	client, err := o.clients(*u)
	if err != nil {
		return err
	}
	return o.executeFor(ctx, client, userID, signal)
}

// executeFor places one order and records the trade. The trade id doubles
// as the exchange client_order_id, so an ambiguous failure can be
// reconciled against list_orders later. Placement is never retried here.
func (o *Orchestrator) executeFor(ctx context.Context, client ExchangeClient, userID string, signal domain.TradeSignal) error {
	if err := signal.Validate(); err != nil {
		return err
	}

	tradeID := uuid.NewString()
	req := kalshi.OrderRequest{
		Ticker:        signal.BracketTicker,
		Action:        "buy",
		Side:          string(signal.Side),
		Type:          "limit",
		Count:         signal.Quantity,
		ClientOrderID: tradeID,
	}
	if signal.Side == domain.SideYes {
		req.YesPrice = int64(signal.LimitPrice)
	} else {
		req.NoPrice = int64(signal.LimitPrice)
	}

	// Snapshots are frozen before placement so the record always holds
	// the inputs that justified the order.
	weatherSnap, predSnap := o.snapshots(signal)

	order, err := client.PlaceOrder(ctx, req)
	if err != nil {
		switch {
		case kalshi.IsKind(err, kalshi.KindRejected):
			if o.metrics != nil {
				o.metrics.OrdersRejected.WithLabelValues(string(signal.City)).Inc()
			}
			if o.events != nil {
				o.events.EmitWarning(events.OrderRejected, "orchestrator", map[string]interface{}{
					"user_id": userID,
					"city":    string(signal.City),
					"ticker":  signal.BracketTicker,
					"error":   err.Error(),
				})
			}
			return err
		case kalshi.IsKind(err, kalshi.KindConnection):
			// The order may have reached the exchange. Record it
			// UNCERTAIN and let the next cycle reconcile.
			record := o.buildRecord(tradeID, userID, signal, "", domain.TradeUncertain, weatherSnap, predSnap)
			if cerr := o.trades.Create(record); cerr != nil {
				o.log.Error().Err(cerr).Str("trade_id", tradeID).Msg("Failed to record uncertain order")
			}
			return err
		default:
			return err
		}
	}

	record := o.buildRecord(tradeID, userID, signal, order.OrderID, domain.TradeOpen, weatherSnap, predSnap)
	if err := o.trades.Create(record); err != nil {
		// The order is live but unrecorded; reconciliation cannot find
		// it without the row, so this is an operator-attention error.
		o.log.Error().Err(err).Str("trade_id", tradeID).Str("order_id", order.OrderID).Msg("Order placed but trade record not persisted")
		return fmt.Errorf("order %s placed but not recorded: %w", order.OrderID, err)
	}

	o.log.Info().
		Str("trade_id", tradeID).
		Str("order_id", order.OrderID).
		Str("city", string(signal.City)).
		Str("ticker", signal.BracketTicker).
		Str("side", string(signal.Side)).
		Int64("quantity", signal.Quantity).
		Str("price", signal.LimitPrice.String()).
		Msg("Order placed")
	if o.metrics != nil {
		o.metrics.OrdersPlaced.WithLabelValues(string(signal.City), string(signal.Side)).Inc()
	}
	if o.events != nil {
		o.events.Emit(events.OrderPlaced, "orchestrator", map[string]interface{}{
			"user_id":  userID,
			"trade_id": tradeID,
			"order_id": order.OrderID,
			"city":     string(signal.City),
			"ticker":   signal.BracketTicker,
			"side":     string(signal.Side),
			"quantity": signal.Quantity,
			"price":    int64(signal.LimitPrice),
		})
	}
	return nil
}

func (o *Orchestrator) buildRecord(tradeID, userID string, signal domain.TradeSignal, orderID string, status domain.TradeStatus, weatherSnap, predSnap json.RawMessage) trading.TradeRecord {
	return trading.TradeRecord{
		ID:                 tradeID,
		UserID:             userID,
		City:               signal.City,
		TargetDate:         signal.TargetDate,
		BracketTicker:      signal.BracketTicker,
		BracketLabel:       signal.BracketLabel,
		Side:               signal.Side,
		EntryPrice:         signal.LimitPrice,
		Quantity:           signal.Quantity,
		ModelProb:          signal.ModelProb,
		MarketProb:         signal.MarketProb,
		EVAtEntry:          signal.EV,
		Confidence:         signal.Confidence,
		ExchangeOrderID:    orderID,
		Status:             status,
		WeatherSnapshot:    weatherSnap,
		PredictionSnapshot: predSnap,
		CreatedAt:          o.now().UTC(),
	}
}

// snapshots marshals the current forecast set and prediction for the
// signal's city and date. A failed read leaves that snapshot empty
// rather than blocking the order.
func (o *Orchestrator) snapshots(signal domain.TradeSignal) (weather, pred json.RawMessage) {
	if o.forecasts != nil {
		if bySource, err := o.forecasts.NewestFor(signal.City, signal.TargetDate); err == nil && len(bySource) > 0 {
			weather, _ = json.Marshal(bySource)
		}
	}
	if o.predictions != nil {
		if p, err := o.predictions.Latest(signal.City, signal.TargetDate); err == nil && p != nil {
			pred, _ = json.Marshal(p)
		}
	}
	return weather, pred
}
