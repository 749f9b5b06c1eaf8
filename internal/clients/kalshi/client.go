// Package kalshi is the exchange adapter: a signed REST client plus the
// live order-book stream. All prices cross the wire as integer cents.
package kalshi

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bozweather/trader/internal/crypto"
	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

const signPrefix = "/trade-api/v2"

// Client is a signed REST client for the exchange. One client exists per
// user; the token bucket is per-client.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKeyID   string
	PrivateKey *rsa.PrivateKey
	RPS        float64 // sustained request rate; 0 means the default 10
	Burst      int     // bucket size; 0 means the default 10
	Log        zerolog.Logger
}

// NewClient creates a new exchange client.
func NewClient(cfg Config) *Client {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKeyID:   cfg.APIKeyID,
		privateKey: cfg.PrivateKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		log:        cfg.Log.With().Str("client", "kalshi").Logger(),
	}
}

// request makes an authenticated API request. The private key is used only
// within this call's scope and never enters errors or logs.
func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, connectionError(err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// The signature covers the full path including the API prefix, but not
	// the query string.
	signPath := signPrefix + path
	if i := strings.IndexByte(signPath, '?'); i >= 0 {
		signPath = signPath[:i]
	}
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature, err := crypto.SignRequest(c.privateKey, timestamp, method, signPath)
	if err != nil {
		return nil, fmt.Errorf("generate signature: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, connectionError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, connectionError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var retryAfter time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		var errResp errorResponse
		_ = json.Unmarshal(respBody, &errResp)
		message := errResp.Error.Message
		if message == "" {
			message = strings.TrimSpace(string(respBody))
		}
		isOrder := strings.HasPrefix(path, "/portfolio/orders")
		return nil, classify(resp.StatusCode, errResp.Error.Code, message, isOrder, retryAfter)
	}

	return respBody, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	data, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// EventTicker derives the event ticker for a city and target date, e.g.
// KXHIGHNY-26FEB18 for New York on 2026-02-18.
func EventTicker(city units.City, targetDate string) (string, error) {
	d, err := time.Parse("2006-01-02", targetDate)
	if err != nil {
		return "", fmt.Errorf("parse target date: %w", err)
	}
	return fmt.Sprintf("%s-%s", city.EventSeries(), strings.ToUpper(d.Format("06Jan02"))), nil
}

// ListEventsFor fetches the daily-high market event for a city and date,
// with parsed brackets.
func (c *Client) ListEventsFor(ctx context.Context, city units.City, targetDate string) (*domain.MarketEvent, error) {
	ticker, err := EventTicker(city, targetDate)
	if err != nil {
		return nil, err
	}

	var resp getEventResponse
	if err := c.get(ctx, "/events/"+ticker, &resp); err != nil {
		return nil, err
	}

	brackets, err := ParseBrackets(resp.Markets)
	if err != nil {
		return nil, fmt.Errorf("parse brackets for %s: %w", ticker, err)
	}

	return &domain.MarketEvent{
		EventID:    resp.Event.EventTicker,
		City:       city,
		TargetDate: targetDate,
		Brackets:   brackets,
	}, nil
}

// GetEventMarkets fetches the full bracket set with the current book for
// an event id.
func (c *Client) GetEventMarkets(ctx context.Context, eventID string) ([]domain.Bracket, error) {
	var resp getEventResponse
	if err := c.get(ctx, "/events/"+eventID, &resp); err != nil {
		return nil, err
	}
	return ParseBrackets(resp.Markets)
}

// GetMarket fetches a single market.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*Market, error) {
	var resp struct {
		Market Market `json:"market"`
	}
	if err := c.get(ctx, "/markets/"+ticker, &resp); err != nil {
		return nil, err
	}
	return &resp.Market, nil
}

// GetOrderbook fetches the resting book for a market.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*Orderbook, error) {
	var wire orderbookWire
	if err := c.get(ctx, "/markets/"+ticker+"/orderbook", &wire); err != nil {
		return nil, err
	}

	book := &Orderbook{Ticker: ticker}
	for _, lvl := range wire.Orderbook.Yes {
		book.YesLevels = append(book.YesLevels, PriceLevel{Price: money.Cents(lvl[0]), Qty: lvl[1]})
	}
	for _, lvl := range wire.Orderbook.No {
		book.NoLevels = append(book.NoLevels, PriceLevel{Price: money.Cents(lvl[0]), Qty: lvl[1]})
	}
	return book, nil
}

// GetBalance returns the available balance in integer cents.
func (c *Client) GetBalance(ctx context.Context) (money.Cents, error) {
	var resp Balance
	if err := c.get(ctx, "/portfolio/balance", &resp); err != nil {
		return 0, err
	}
	return money.Cents(resp.Balance), nil
}

// GetPositions returns all market positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var resp getPositionsResponse
	if err := c.get(ctx, "/portfolio/positions", &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// PlaceOrder submits a limit order. The price constraint is enforced
// before anything touches the wire. Placement is never retried here: an
// ambiguous failure is the caller's cue to mark the trade UNCERTAIN and
// reconcile from positions.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	price := req.YesPrice
	if req.Side == string(domain.SideNo) {
		price = req.NoPrice
	}
	if err := money.CheckPrice(money.Cents(price)); err != nil {
		return nil, fmt.Errorf("refusing order: %w", err)
	}
	if req.Count < 1 {
		return nil, fmt.Errorf("refusing order: count %d below minimum", req.Count)
	}

	data, err := c.request(ctx, http.MethodPost, "/portfolio/orders", req)
	if err != nil {
		return nil, err
	}

	var resp createOrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	c.log.Info().
		Str("ticker", req.Ticker).
		Str("side", req.Side).
		Int64("count", req.Count).
		Int64("price", price).
		Str("order_id", resp.Order.OrderID).
		Msg("Order placed")

	return &resp.Order, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	_, err := c.request(ctx, http.MethodDelete, "/portfolio/orders/"+orderID, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListOrders returns the user's orders, used for reconciling UNCERTAIN
// placements.
func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var resp getOrdersResponse
	if err := c.get(ctx, "/portfolio/orders", &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetSettlements returns settled-position rows.
func (c *Client) GetSettlements(ctx context.Context) ([]SettlementRow, error) {
	var resp getSettlementsResponse
	if err := c.get(ctx, "/portfolio/settlements", &resp); err != nil {
		return nil, err
	}
	return resp.Settlements, nil
}
