package approval

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/domain"
)

// ErrConflict is returned when a status transition loses its CAS: the row
// was already moved by another actor.
var ErrConflict = errors.New("pending trade status conflict")

// ErrNotFound is returned when no pending trade has the given id.
var ErrNotFound = errors.New("pending trade not found")

// Repository handles pending-trade database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new approval repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "approval").Logger(),
	}
}

// Create inserts a PENDING row.
func (r *Repository) Create(p PendingTrade) error {
	signalJSON, err := json.Marshal(p.Signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	query := `
		INSERT INTO pending_trades (id, user_id, signal_json, status, reason, created_at, expires_at, acted_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?, NULL)
	`
	_, err = r.db.Exec(query,
		p.ID,
		p.UserID,
		string(signalJSON),
		string(p.Status),
		p.CreatedAt.UTC().Format(time.RFC3339),
		p.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create pending trade: %w", err)
	}
	return nil
}

// GetByID retrieves a pending trade.
func (r *Repository) GetByID(id string) (*PendingTrade, error) {
	query := `
		SELECT id, user_id, signal_json, status, reason, created_at, expires_at, acted_at
		FROM pending_trades WHERE id = ?
	`
	row := r.db.QueryRow(query, id)
	p, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByStatus returns trades in a status, oldest first.
func (r *Repository) ListByStatus(status domain.PendingStatus) ([]PendingTrade, error) {
	query := `
		SELECT id, user_id, signal_json, status, reason, created_at, expires_at, acted_at
		FROM pending_trades WHERE status = ?
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending trades: %w", err)
	}
	defer rows.Close()

	var out []PendingTrade
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending trades: %w", err)
	}
	return out, nil
}

// Transition moves a row from one status to another atomically. A lost
// CAS returns ErrConflict and changes nothing.
func (r *Repository) Transition(id string, from, to domain.PendingStatus, reason string, actedAt time.Time) error {
	query := `
		UPDATE pending_trades
		SET status = ?, reason = COALESCE(NULLIF(?, ''), reason), acted_at = ?
		WHERE id = ? AND status = ?
	`
	res, err := r.db.Exec(query,
		string(to), reason,
		actedAt.UTC().Format(time.RFC3339),
		id, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to transition pending trade: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}

	r.log.Info().
		Str("pending_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Pending trade transitioned")
	return nil
}

// ExpireDue moves every PENDING row past its deadline to EXPIRED and
// returns the expired ids.
func (r *Repository) ExpireDue(now time.Time) ([]string, error) {
	cutoff := now.UTC().Format(time.RFC3339)

	rows, err := r.db.Query(
		`SELECT id FROM pending_trades WHERE status = ? AND expires_at < ?`,
		string(domain.PendingPending), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due pending trades: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pending id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due pending trades: %w", err)
	}

	var expired []string
	for _, id := range ids {
		err := r.Transition(id, domain.PendingPending, domain.PendingExpired, "approval window elapsed", now)
		if errors.Is(err, ErrConflict) {
			// Approved or rejected between the select and the swap.
			continue
		}
		if err != nil {
			return expired, err
		}
		expired = append(expired, id)
	}
	return expired, nil
}

type pendingScanner interface {
	Scan(dest ...interface{}) error
}

func scanPending(row pendingScanner) (PendingTrade, error) {
	var (
		p          PendingTrade
		signalJSON string
		status     string
		reason     sql.NullString
		createdAt  string
		expiresAt  string
		actedAt    sql.NullString
	)
	err := row.Scan(&p.ID, &p.UserID, &signalJSON, &status, &reason, &createdAt, &expiresAt, &actedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PendingTrade{}, err
		}
		return PendingTrade{}, fmt.Errorf("failed to scan pending trade: %w", err)
	}

	p.Status = domain.PendingStatus(status)
	if reason.Valid {
		p.Reason = reason.String
	}
	if err := json.Unmarshal([]byte(signalJSON), &p.Signal); err != nil {
		return PendingTrade{}, fmt.Errorf("failed to unmarshal signal: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, expiresAt); err == nil {
		p.ExpiresAt = t
	}
	if actedAt.Valid {
		if t, err := time.Parse(time.RFC3339, actedAt.String); err == nil {
			p.ActedAt = &t
		}
	}
	return p, nil
}
