package kalshi

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/crypto"
)

const (
	wsSignPath        = "/trade-api/ws/v2"
	pingInterval      = 10 * time.Second
	maxReconnectTries = 5
)

// ErrStreamClosed is returned after the reconnect budget is exhausted; the
// orchestrator falls back to REST polling until the next scheduled attempt.
var ErrStreamClosed = &Error{Kind: KindConnection, Message: "stream: reconnect attempts exhausted"}

// StreamConfig configures the order-book stream.
type StreamConfig struct {
	URL        string
	APIKeyID   string
	PrivateKey *rsa.PrivateKey
	Log        zerolog.Logger
	// OnReconnect is invoked after each successful reconnect, once
	// subscriptions have been re-issued.
	OnReconnect func()
}

// subscription is one recorded subscribe command, replayed on reconnect.
type subscription struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers"`
}

type wsCommand struct {
	ID     int64        `json:"id"`
	Cmd    string       `json:"cmd"`
	Params subscription `json:"params"`
}

type wsMessage struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq"`
	Msg  json.RawMessage `json:"msg"`
}

type wsPayload struct {
	MarketTicker string `json:"market_ticker"`
}

// Stream consumes order-book deltas, ticker updates, and fills over the
// exchange WebSocket, reconnecting with exponential backoff and re-issuing
// every recorded subscription.
type Stream struct {
	cfg    StreamConfig
	log    zerolog.Logger
	events chan StreamEvent

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   []subscription
	nextID int64
}

// NewStream creates a stream; Run drives it.
func NewStream(cfg StreamConfig) *Stream {
	return &Stream{
		cfg:    cfg,
		log:    cfg.Log.With().Str("client", "kalshi_stream").Logger(),
		events: make(chan StreamEvent, 256),
	}
}

// Events returns the event channel. It is closed when Run returns.
func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// Subscribe records a subscription and issues it when connected. Recorded
// subscriptions survive reconnects.
func (s *Stream) Subscribe(channels []string, marketTickers []string) error {
	sub := subscription{Channels: channels, MarketTickers: marketTickers}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	conn := s.conn
	var err error
	if conn != nil {
		err = s.sendSubscribeLocked(conn, sub)
	}
	s.mu.Unlock()

	return err
}

func (s *Stream) sendSubscribeLocked(conn *websocket.Conn, sub subscription) error {
	s.nextID++
	cmd := wsCommand{ID: s.nextID, Cmd: "subscribe", Params: sub}
	if err := conn.WriteJSON(cmd); err != nil {
		return connectionError(err)
	}
	return nil
}

// Run connects and consumes until ctx is cancelled or the reconnect budget
// is exhausted. Backoff between attempts is 2^attempt seconds.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.events)

	attempt := 0
	for {
		if err := s.connect(ctx); err != nil {
			attempt++
			if attempt > maxReconnectTries {
				s.log.Error().Err(err).Msg("Stream reconnect attempts exhausted")
				return ErrStreamClosed
			}
			wait := time.Duration(1<<uint(attempt)) * time.Second
			s.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Msg("Stream connect failed, backing off")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		// Connected; a completed session resets the budget.
		attempt = 0
		err := s.consume(ctx)
		s.closeConn()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Msg("Stream disconnected, reconnecting")
	}
}

// connect dials, authenticates, and replays recorded subscriptions.
func (s *Stream) connect(ctx context.Context) error {
	header := http.Header{}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig, err := crypto.SignRequest(s.cfg.PrivateKey, ts, http.MethodGet, wsSignPath)
	if err != nil {
		return fmt.Errorf("generate signature: %w", err)
	}
	header.Set("KALSHI-ACCESS-KEY", s.cfg.APIKeyID)
	header.Set("KALSHI-ACCESS-SIGNATURE", sig)
	header.Set("KALSHI-ACCESS-TIMESTAMP", ts)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return connectionError(err)
	}

	s.mu.Lock()
	s.conn = conn
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	for _, sub := range subs {
		if err := s.sendSubscribeLocked(conn, sub); err != nil {
			s.mu.Unlock()
			conn.Close()
			return err
		}
	}
	s.mu.Unlock()

	s.log.Info().Int("subscriptions", len(subs)).Msg("Stream connected")
	if s.cfg.OnReconnect != nil {
		s.cfg.OnReconnect()
	}
	return nil
}

// consume reads until error, heartbeating every 10s.
func (s *Stream) consume(ctx context.Context) error {
	conn := s.currentConn()
	if conn == nil {
		return ErrStreamClosed
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return connectionError(err)
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug().Err(err).Msg("Skipping unparseable stream message")
			continue
		}

		var evType StreamEventType
		switch msg.Type {
		case string(StreamOrderbookDelta), "orderbook_snapshot":
			evType = StreamOrderbookDelta
		case string(StreamTicker):
			evType = StreamTicker
		case string(StreamFill):
			evType = StreamFill
		default:
			continue
		}

		var payload wsPayload
		_ = json.Unmarshal(msg.Msg, &payload)

		select {
		case s.events <- StreamEvent{Type: evType, Ticker: payload.MarketTicker, Seq: msg.Seq, Raw: msg.Msg}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Stream) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Stream) closeConn() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
}
