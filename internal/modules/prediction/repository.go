package prediction

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/units"
)

// Repository handles prediction database operations. Snapshots are
// append-only; every engine run inserts a new row.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new prediction repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "prediction").Logger(),
	}
}

// Create inserts a prediction snapshot and returns its id.
func (r *Repository) Create(p Prediction) (int64, error) {
	bracketsJSON, err := json.Marshal(p.Brackets)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal bracket probabilities: %w", err)
	}
	sourcesJSON, err := json.Marshal(p.Sources)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal sources: %w", err)
	}

	query := `
		INSERT INTO predictions
		(city, target_date, ensemble_high_f, bracket_probs_json, confidence,
		 model_sources_json, forecast_spread_f, error_std_f, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.Exec(query,
		string(p.City),
		p.TargetDate,
		p.EnsembleHigh,
		string(bracketsJSON),
		string(p.Confidence),
		string(sourcesJSON),
		p.Spread,
		p.ErrorStd,
		p.GeneratedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create prediction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read prediction id: %w", err)
	}

	r.log.Debug().
		Str("city", string(p.City)).
		Str("target_date", p.TargetDate).
		Float64("ensemble_high_f", p.EnsembleHigh).
		Str("confidence", string(p.Confidence)).
		Msg("Prediction stored")
	return id, nil
}

// Latest returns the newest snapshot for a city and date, nil when none
// exists.
func (r *Repository) Latest(city units.City, targetDate string) (*Prediction, error) {
	query := `
		SELECT id, city, target_date, ensemble_high_f, bracket_probs_json,
			confidence, model_sources_json, forecast_spread_f, error_std_f, generated_at
		FROM predictions
		WHERE city = ? AND target_date = ?
		ORDER BY generated_at DESC, id DESC
		LIMIT 1
	`
	row := r.db.QueryRow(query, string(city), targetDate)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// History returns snapshots for a city and date, newest first.
func (r *Repository) History(city units.City, targetDate string, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, city, target_date, ensemble_high_f, bracket_probs_json,
			confidence, model_sources_json, forecast_spread_f, error_std_f, generated_at
		FROM predictions
		WHERE city = ? AND target_date = ?
		ORDER BY generated_at DESC, id DESC
		LIMIT ?
	`
	rows, err := r.db.Query(query, string(city), targetDate, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row rowScanner) (Prediction, error) {
	var (
		p            Prediction
		city         string
		confidence   string
		bracketsJSON string
		sourcesJSON  string
		generatedAt  string
	)
	err := row.Scan(&p.ID, &city, &p.TargetDate, &p.EnsembleHigh, &bracketsJSON,
		&confidence, &sourcesJSON, &p.Spread, &p.ErrorStd, &generatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Prediction{}, err
		}
		return Prediction{}, fmt.Errorf("failed to scan prediction: %w", err)
	}
	p.City = units.City(city)
	p.Confidence = domain.Confidence(confidence)
	if err := json.Unmarshal([]byte(bracketsJSON), &p.Brackets); err != nil {
		return Prediction{}, fmt.Errorf("failed to unmarshal bracket probabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &p.Sources); err != nil {
		return Prediction{}, fmt.Errorf("failed to unmarshal sources: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, generatedAt); err == nil {
		p.GeneratedAt = t
	}
	return p, nil
}
