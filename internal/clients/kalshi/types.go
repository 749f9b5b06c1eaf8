package kalshi

import (
	"encoding/json"

	"github.com/bozweather/trader/pkg/money"
)

// Market is the wire representation of one bracket market. Strikes are
// pointers: edge brackets omit one bound entirely, and 0°F is a real
// temperature.
type Market struct {
	Ticker      string   `json:"ticker"`
	EventTicker string   `json:"event_ticker"`
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle"`
	Status      string   `json:"status"`
	YesBid      int64    `json:"yes_bid"`
	YesAsk      int64    `json:"yes_ask"`
	NoBid       int64    `json:"no_bid"`
	NoAsk       int64    `json:"no_ask"`
	LastPrice   int64    `json:"last_price"`
	Volume      int64    `json:"volume"`
	FloorStrike *float64 `json:"floor_strike,omitempty"`
	CapStrike   *float64 `json:"cap_strike,omitempty"`
	CloseTime   string   `json:"close_time"`
	Result      string   `json:"result"`
}

// Event is the wire representation of one daily event.
type Event struct {
	EventTicker  string `json:"event_ticker"`
	SeriesTicker string `json:"series_ticker"`
	Title        string `json:"title"`
	StrikeDate   string `json:"strike_date"`
}

type getEventResponse struct {
	Event   Event    `json:"event"`
	Markets []Market `json:"markets"`
}

type getMarketsResponse struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// PriceLevel is one resting level of the book.
type PriceLevel struct {
	Price money.Cents
	Qty   int64
}

// Orderbook holds the resting yes and no levels for a market.
type Orderbook struct {
	Ticker    string
	YesLevels []PriceLevel
	NoLevels  []PriceLevel
}

// The wire book is arrays of [price, qty] pairs.
type orderbookWire struct {
	Orderbook struct {
		Yes [][2]int64 `json:"yes"`
		No  [][2]int64 `json:"no"`
	} `json:"orderbook"`
}

// Balance is the account balance in integer cents.
type Balance struct {
	Balance        int64 `json:"balance"`
	PortfolioValue int64 `json:"portfolio_value"`
}

// Position is one market position row.
type Position struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	YesPosition int64  `json:"yes_position"`
	NoPosition  int64  `json:"no_position"`
	TotalCost   int64  `json:"total_cost"`
	RealizedPnl int64  `json:"realized_pnl"`
	Fees        int64  `json:"fees"`
}

type getPositionsResponse struct {
	Positions []Position `json:"market_positions"`
	Cursor    string     `json:"cursor"`
}

// OrderRequest is the body for POST /portfolio/orders. Prices are integer
// cents in [1, 99]; the client rejects anything else before sending.
type OrderRequest struct {
	Ticker        string `json:"ticker"`
	Action        string `json:"action"` // buy or sell
	Side          string `json:"side"`   // yes or no
	Type          string `json:"type"`   // limit
	Count         int64  `json:"count"`
	YesPrice      int64  `json:"yes_price,omitempty"`
	NoPrice       int64  `json:"no_price,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// Order is the exchange's order record.
type Order struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Action         string `json:"action"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	RemainingCount int64  `json:"remaining_count"`
	TakerFillCount int64  `json:"taker_fill_count"`
	ClientOrderID  string `json:"client_order_id"`
	CreatedTime    string `json:"created_time"`
}

type createOrderResponse struct {
	Order Order `json:"order"`
}

type getOrdersResponse struct {
	Orders []Order `json:"orders"`
	Cursor string  `json:"cursor"`
}

// SettlementRow is one settled-position row from the portfolio.
type SettlementRow struct {
	Ticker       string `json:"ticker"`
	MarketResult string `json:"market_result"`
	YesCount     int64  `json:"yes_count"`
	NoCount      int64  `json:"no_count"`
	Revenue      int64  `json:"revenue"`
	SettledTime  string `json:"settled_time"`
}

type getSettlementsResponse struct {
	Settlements []SettlementRow `json:"settlements"`
	Cursor      string          `json:"cursor"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// StreamEventType discriminates stream payloads.
type StreamEventType string

const (
	StreamOrderbookDelta StreamEventType = "orderbook_delta"
	StreamTicker         StreamEventType = "ticker"
	StreamFill           StreamEventType = "fill"
)

// StreamEvent is one message from the order-book stream.
type StreamEvent struct {
	Type   StreamEventType
	Ticker string
	Seq    int64
	Raw    json.RawMessage
}
