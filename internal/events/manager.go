package events

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/crypto"
)

// EventType represents different event types
type EventType string

const (
	ForecastFetched    EventType = "FORECAST_FETCHED"
	ForecastFetchError EventType = "FORECAST_FETCH_ERROR"
	PredictionCreated  EventType = "PREDICTION_CREATED"
	SignalEmitted      EventType = "SIGNAL_EMITTED"
	GuardDenied        EventType = "GUARD_DENIED"
	OrderPlaced        EventType = "ORDER_PLACED"
	OrderRejected      EventType = "ORDER_REJECTED"
	TradeQueued        EventType = "TRADE_QUEUED"
	TradeExecuted      EventType = "TRADE_EXECUTED"
	TradeClosed        EventType = "TRADE_CLOSED"
	SettlementObserved EventType = "SETTLEMENT_OBSERVED"
	ClosureStalled     EventType = "CLOSURE_STALLED"
	CycleStalled       EventType = "CYCLE_STALLED"
	StreamReconnected  EventType = "STREAM_RECONNECTED"
	ErrorOccurred      EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Manager handles event emission, logging, and the durable operational
// trail in log_entries. Context maps are scrubbed of secret-named keys
// before they leave the caller.
type Manager struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewManager creates a new event manager. db may be nil in tests that only
// need in-memory emission.
func NewManager(db *sql.DB, log zerolog.Logger) *Manager {
	return &Manager{
		db:  db,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	data = crypto.ScrubContext(data)
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	m.persist("INFO", module, string(eventType), data)
}

// EmitWarning emits an event at warning severity.
func (m *Manager) EmitWarning(eventType EventType, module string, data map[string]interface{}) {
	data = crypto.ScrubContext(data)
	m.log.Warn().
		Str("event_type", string(eventType)).
		Str("module", module).
		Interface("data", data).
		Msg("Event emitted")

	m.persist("WARN", module, string(eventType), data)
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	context = crypto.ScrubContext(context)
	m.log.Error().
		Err(err).
		Str("module", module).
		Interface("context", context).
		Msg("Error event")

	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.persist("ERROR", module, string(ErrorOccurred), data)
}

func (m *Manager) persist(level, module, message string, data map[string]interface{}) {
	if m.db == nil {
		return
	}
	dataJSON, _ := json.Marshal(data)
	_, err := m.db.Exec(
		`INSERT INTO log_entries (timestamp, level, module, message, data_json) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), level, module, message, string(dataJSON),
	)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to persist log entry")
	}
}
