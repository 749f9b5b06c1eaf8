package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

// ErrStatusConflict is returned when a settlement write loses the CAS on
// the status column. The trade was already closed by another writer.
var ErrStatusConflict = errors.New("trade status conflict")

// TradeRepository handles trade ledger database operations.
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository.
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

const tradeColumns = `id, user_id, city, target_date, bracket_ticker, bracket_label, side,
	entry_price_cents, quantity, model_prob, market_prob, ev_at_entry, confidence,
	exchange_order_id, status, settlement_temp_f, pnl_cents, postmortem,
	weather_snapshot_json, prediction_snapshot_json, created_at, settled_at`

// Create inserts a new ledger row.
func (r *TradeRepository) Create(t TradeRecord) error {
	query := fmt.Sprintf(`INSERT INTO trades (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tradeColumns)

	_, err := r.db.Exec(query,
		t.ID,
		t.UserID,
		string(t.City),
		t.TargetDate,
		t.BracketTicker,
		t.BracketLabel,
		string(t.Side),
		int64(t.EntryPrice),
		t.Quantity,
		t.ModelProb,
		t.MarketProb,
		t.EVAtEntry,
		string(t.Confidence),
		nullString(t.ExchangeOrderID),
		string(t.Status),
		nullFloat64Ptr(t.SettlementTempF),
		nullCentsPtr(t.PnLCents),
		nullString(t.Postmortem),
		nullString(string(t.WeatherSnapshot)),
		nullString(string(t.PredictionSnapshot)),
		t.CreatedAt.UTC().Format(time.RFC3339),
		nullTimePtr(t.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	r.log.Info().
		Str("trade_id", t.ID).
		Str("city", string(t.City)).
		Str("ticker", t.BracketTicker).
		Str("side", string(t.Side)).
		Int64("quantity", t.Quantity).
		Str("status", string(t.Status)).
		Msg("Trade created")
	return nil
}

// GetByID retrieves a trade, nil when absent.
func (r *TradeRepository) GetByID(id string) (*TradeRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM trades WHERE id = ?", tradeColumns)

	row := r.db.QueryRow(query, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return &t, nil
}

// History retrieves a user's trades, most recent first.
func (r *TradeRepository) History(userID string, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, tradeColumns)
	return r.queryTrades(query, userID, limit)
}

// OpenForCityDate returns every OPEN trade across users for a city and
// settlement date.
func (r *TradeRepository) OpenForCityDate(city units.City, targetDate string) ([]TradeRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE city = ? AND target_date = ? AND status = ?
		ORDER BY created_at ASC
	`, tradeColumns)
	return r.queryTrades(query, string(city), targetDate, string(domain.TradeOpen))
}

// OpenByUser returns a user's OPEN trades.
func (r *TradeRepository) OpenByUser(userID string) ([]TradeRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE user_id = ? AND status = ?
		ORDER BY created_at ASC
	`, tradeColumns)
	return r.queryTrades(query, userID, string(domain.TradeOpen))
}

// UncertainByUser returns a user's trades whose placement outcome is
// unknown and needs reconciliation.
func (r *TradeRepository) UncertainByUser(userID string) ([]TradeRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE user_id = ? AND status = ?
		ORDER BY created_at ASC
	`, tradeColumns)
	return r.queryTrades(query, userID, string(domain.TradeUncertain))
}

// Settle closes an OPEN trade with its terminal outcome. The status
// column guards the write: a trade already closed returns
// ErrStatusConflict so duplicate settlement observations are rejected.
func (r *TradeRepository) Settle(id string, status domain.TradeStatus, tempF float64, pnl money.Cents, postmortem string, settledAt time.Time) error {
	query := `
		UPDATE trades
		SET status = ?, settlement_temp_f = ?, pnl_cents = ?, postmortem = ?, settled_at = ?
		WHERE id = ? AND status = ?
	`
	res, err := r.db.Exec(query,
		string(status), tempF, int64(pnl), postmortem,
		settledAt.UTC().Format(time.RFC3339),
		id, string(domain.TradeOpen),
	)
	if err != nil {
		return fmt.Errorf("failed to settle trade: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStatusConflict
	}

	r.log.Info().
		Str("trade_id", id).
		Str("status", string(status)).
		Str("pnl", pnl.String()).
		Msg("Trade settled")
	return nil
}

// Resolve moves an UNCERTAIN trade to its reconciled status, filling the
// exchange order id when the order turned out to exist.
func (r *TradeRepository) Resolve(id string, status domain.TradeStatus, exchangeOrderID string) error {
	query := `
		UPDATE trades
		SET status = ?, exchange_order_id = COALESCE(NULLIF(?, ''), exchange_order_id)
		WHERE id = ? AND status = ?
	`
	res, err := r.db.Exec(query, string(status), exchangeOrderID, id, string(domain.TradeUncertain))
	if err != nil {
		return fmt.Errorf("failed to resolve trade: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStatusConflict
	}
	return nil
}

// RealizedPnLSince sums a user's settled pnl from the given instant.
func (r *TradeRepository) RealizedPnLSince(userID string, since time.Time) (money.Cents, error) {
	query := `
		SELECT COALESCE(SUM(pnl_cents), 0) FROM trades
		WHERE user_id = ? AND settled_at >= ? AND pnl_cents IS NOT NULL
	`
	var sum int64
	err := r.db.QueryRow(query, userID, since.UTC().Format(time.RFC3339)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	return money.Cents(sum), nil
}

// OpenedCentsSince sums the entry notional a user committed from the
// given instant. Cancelled trades never count against exposure.
func (r *TradeRepository) OpenedCentsSince(userID string, since time.Time) (money.Cents, error) {
	query := `
		SELECT COALESCE(SUM(entry_price_cents * quantity), 0) FROM trades
		WHERE user_id = ? AND created_at >= ? AND status != ?
	`
	var sum int64
	err := r.db.QueryRow(query, userID, since.UTC().Format(time.RFC3339), string(domain.TradeCancelled)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum opened notional: %w", err)
	}
	return money.Cents(sum), nil
}

// ConsecutiveLosses counts a user's trailing LOST streak over settled
// trades, newest first. A WON breaks the streak.
func (r *TradeRepository) ConsecutiveLosses(userID string) (int, error) {
	query := `
		SELECT status FROM trades
		WHERE user_id = ? AND status IN (?, ?)
		ORDER BY settled_at DESC
	`
	rows, err := r.db.Query(query, userID, string(domain.TradeWon), string(domain.TradeLost))
	if err != nil {
		return 0, fmt.Errorf("failed to query settled trades: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return 0, fmt.Errorf("failed to scan status: %w", err)
		}
		if status != string(domain.TradeLost) {
			break
		}
		streak++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating settled trades: %w", err)
	}
	return streak, nil
}

// LastLossSettledAt returns when the user's most recent LOST trade
// settled, nil when they have none.
func (r *TradeRepository) LastLossSettledAt(userID string) (*time.Time, error) {
	query := `
		SELECT settled_at FROM trades
		WHERE user_id = ? AND status = ? AND settled_at IS NOT NULL
		ORDER BY settled_at DESC LIMIT 1
	`
	var ts string
	err := r.db.QueryRow(query, userID, string(domain.TradeLost)).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last loss: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settled_at: %w", err)
	}
	return &t, nil
}

func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]TradeRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

type tradeScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row tradeScanner) (TradeRecord, error) {
	var (
		t               TradeRecord
		city            string
		side            string
		confidence      string
		status          string
		entryPrice      int64
		exchangeOrderID sql.NullString
		settlementTemp  sql.NullFloat64
		pnl             sql.NullInt64
		postmortem      sql.NullString
		weatherSnap     sql.NullString
		predictionSnap  sql.NullString
		createdAt       string
		settledAt       sql.NullString
	)

	err := row.Scan(
		&t.ID, &t.UserID, &city, &t.TargetDate, &t.BracketTicker, &t.BracketLabel, &side,
		&entryPrice, &t.Quantity, &t.ModelProb, &t.MarketProb, &t.EVAtEntry, &confidence,
		&exchangeOrderID, &status, &settlementTemp, &pnl, &postmortem,
		&weatherSnap, &predictionSnap, &createdAt, &settledAt,
	)
	if err != nil {
		return t, err
	}

	t.City = units.City(city)
	t.Side = domain.Side(side)
	t.Confidence = domain.Confidence(confidence)
	t.Status = domain.TradeStatus(status)
	t.EntryPrice = money.Cents(entryPrice)
	if exchangeOrderID.Valid {
		t.ExchangeOrderID = exchangeOrderID.String
	}
	if settlementTemp.Valid {
		v := settlementTemp.Float64
		t.SettlementTempF = &v
	}
	if pnl.Valid {
		v := money.Cents(pnl.Int64)
		t.PnLCents = &v
	}
	if postmortem.Valid {
		t.Postmortem = postmortem.String
	}
	if weatherSnap.Valid {
		t.WeatherSnapshot = []byte(weatherSnap.String)
	}
	if predictionSnap.Valid {
		t.PredictionSnapshot = []byte(predictionSnap.String)
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if settledAt.Valid {
		if ts, err := time.Parse(time.RFC3339, settledAt.String); err == nil {
			t.SettledAt = &ts
		}
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat64Ptr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullCentsPtr(c *money.Cents) sql.NullInt64 {
	if c == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: int64(*c), Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
