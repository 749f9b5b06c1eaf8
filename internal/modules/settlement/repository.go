// Package settlement observes official outcomes from the daily climate
// report and drives the closeout loop that settles open trades.
package settlement

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/pkg/units"
)

// SourceNWSCLI marks settlements drawn from the daily climate report.
const SourceNWSCLI = "NWS_CLI"

// Settlement is one official outcome row, unique per (city, target_date).
type Settlement struct {
	ID          int64           `json:"id"`
	City        units.City      `json:"city"`
	TargetDate  string          `json:"target_date"`
	ActualHighF float64         `json:"actual_high_f"`
	Source      string          `json:"source"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// Repository handles settlement database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new settlement repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "settlement").Logger(),
	}
}

// Create inserts a settlement row. The unique (city, target_date) key
// makes the write idempotent: the first observation wins and a duplicate
// reports inserted=false without touching the stored row.
func (r *Repository) Create(s Settlement) (inserted bool, err error) {
	query := `
		INSERT INTO settlements (city, target_date, actual_high_f, source, raw_json, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(city, target_date) DO NOTHING
	`
	var raw interface{}
	if len(s.RawPayload) > 0 {
		raw = string(s.RawPayload)
	}
	res, err := r.db.Exec(query,
		string(s.City),
		s.TargetDate,
		s.ActualHighF,
		s.Source,
		raw,
		s.FetchedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create settlement: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Info().
			Str("city", string(s.City)).
			Str("target_date", s.TargetDate).
			Float64("actual_high_f", s.ActualHighF).
			Msg("Settlement recorded")
	}
	return n > 0, nil
}

// Get returns the settlement for a city and date, nil when absent.
func (r *Repository) Get(city units.City, targetDate string) (*Settlement, error) {
	query := `
		SELECT id, city, target_date, actual_high_f, source, raw_json, fetched_at
		FROM settlements WHERE city = ? AND target_date = ?
	`
	var (
		s         Settlement
		cityStr   string
		rawJSON   sql.NullString
		fetchedAt string
	)
	err := r.db.QueryRow(query, string(city), targetDate).Scan(
		&s.ID, &cityStr, &s.TargetDate, &s.ActualHighF, &s.Source, &rawJSON, &fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	s.City = units.City(cityStr)
	if rawJSON.Valid {
		s.RawPayload = []byte(rawJSON.String)
	}
	if t, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
		s.FetchedAt = t
	}
	return &s, nil
}
