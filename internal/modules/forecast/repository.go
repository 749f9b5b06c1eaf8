package forecast

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/clients/nws"
	"github.com/bozweather/trader/pkg/units"
)

// Repository handles forecast database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new forecast repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "forecast").Logger(),
	}
}

// Create inserts a forecast row. Writes are idempotent on
// (city, target_date, source, model_run_ts): a duplicate is a no-op and
// the stored row keeps its original values.
func (r *Repository) Create(f Forecast) error {
	query := `
		INSERT INTO weather_forecasts
		(city, target_date, source, predicted_high_f, model_run_ts, raw_json, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(city, target_date, source, model_run_ts) DO NOTHING
	`

	res, err := r.db.Exec(query,
		string(f.City),
		f.TargetDate,
		f.Source,
		f.PredictedHigh,
		f.ModelRunTS.UTC().Format(time.RFC3339),
		nullableJSON(f.RawPayload),
		f.FetchedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create forecast: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		r.log.Debug().
			Str("city", string(f.City)).
			Str("source", f.Source).
			Str("target_date", f.TargetDate).
			Float64("high_f", f.PredictedHigh).
			Msg("Forecast stored")
	}
	return nil
}

// NewestBySource returns the most recent forecast per source for a city
// and date, newest first.
func (r *Repository) NewestBySource(city units.City, targetDate string) (map[string]Forecast, error) {
	query := `
		SELECT id, city, target_date, source, predicted_high_f, model_run_ts, raw_json, fetched_at
		FROM weather_forecasts
		WHERE city = ? AND target_date = ?
		ORDER BY fetched_at DESC
	`

	rows, err := r.db.Query(query, string(city), targetDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Forecast)
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		// Rows arrive newest first; keep the first one seen per source.
		if _, seen := out[f.Source]; !seen {
			out[f.Source] = f
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forecasts: %w", err)
	}
	return out, nil
}

// NewestFetchedAt returns the fetch time of the newest forecast for a city
// and date, or zero time when none exists.
func (r *Repository) NewestFetchedAt(city units.City, targetDate string) (time.Time, error) {
	query := `
		SELECT fetched_at FROM weather_forecasts
		WHERE city = ? AND target_date = ?
		ORDER BY fetched_at DESC LIMIT 1
	`
	var ts string
	err := r.db.QueryRow(query, string(city), targetDate).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query newest forecast: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse fetched_at: %w", err)
	}
	return t, nil
}

// HistoricalErrors returns actual-minus-predicted pairs for a city within
// the given months, joining stored forecasts against settlements. Used by
// the prediction engine's error calibration.
func (r *Repository) HistoricalErrors(city units.City, months []int, source string) ([]float64, error) {
	if len(months) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(months)), ",")
	query := fmt.Sprintf(`
		SELECT s.actual_high_f - f.predicted_high_f
		FROM settlements s
		JOIN weather_forecasts f
			ON f.city = s.city AND f.target_date = s.target_date
		WHERE s.city = ? AND f.source = ?
			AND CAST(strftime('%%m', s.target_date) AS INTEGER) IN (%s)
	`, placeholders)

	args := []interface{}{string(city), source}
	for _, m := range months {
		args = append(args, m)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical errors: %w", err)
	}
	defer rows.Close()

	var errsOut []float64
	for rows.Next() {
		var diff float64
		if err := rows.Scan(&diff); err != nil {
			return nil, fmt.Errorf("failed to scan error pair: %w", err)
		}
		errsOut = append(errsOut, diff)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error pairs: %w", err)
	}
	return errsOut, nil
}

func scanForecast(rows *sql.Rows) (Forecast, error) {
	var (
		f         Forecast
		city      string
		modelRun  string
		fetchedAt string
		rawJSON   sql.NullString
	)
	if err := rows.Scan(&f.ID, &city, &f.TargetDate, &f.Source, &f.PredictedHigh, &modelRun, &rawJSON, &fetchedAt); err != nil {
		return Forecast{}, fmt.Errorf("failed to scan forecast: %w", err)
	}
	f.City = units.City(city)
	if t, err := time.Parse(time.RFC3339, modelRun); err == nil {
		f.ModelRunTS = t
	}
	if t, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
		f.FetchedAt = t
	}
	if rawJSON.Valid {
		f.RawPayload = []byte(rawJSON.String)
	}
	return f, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// GridRepository persists resolved forecast grids for the governmental
// provider.
type GridRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewGridRepository creates a new grid repository.
func NewGridRepository(db *sql.DB, log zerolog.Logger) *GridRepository {
	return &GridRepository{
		db:  db,
		log: log.With().Str("repo", "forecast_grid").Logger(),
	}
}

// Get returns the cached grid for a city, nil when absent.
func (r *GridRepository) Get(city units.City) (*nws.Grid, error) {
	query := `
		SELECT grid_id, grid_x, grid_y, forecast_url, forecast_hourly_url, forecast_grid_data_url, cached_at
		FROM forecast_grids WHERE city = ?
	`
	var (
		g        nws.Grid
		cachedAt string
	)
	err := r.db.QueryRow(query, string(city)).Scan(
		&g.GridID, &g.GridX, &g.GridY, &g.ForecastURL, &g.HourlyURL, &g.GridDataURL, &cachedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forecast grid: %w", err)
	}
	g.City = city
	if t, err := time.Parse(time.RFC3339, cachedAt); err == nil {
		g.CachedAt = t
	}
	return &g, nil
}

// Save upserts a resolved grid.
func (r *GridRepository) Save(g nws.Grid) error {
	query := `
		INSERT INTO forecast_grids
		(city, grid_id, grid_x, grid_y, forecast_url, forecast_hourly_url, forecast_grid_data_url, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(city) DO UPDATE SET
			grid_id = excluded.grid_id,
			grid_x = excluded.grid_x,
			grid_y = excluded.grid_y,
			forecast_url = excluded.forecast_url,
			forecast_hourly_url = excluded.forecast_hourly_url,
			forecast_grid_data_url = excluded.forecast_grid_data_url,
			cached_at = excluded.cached_at
	`
	_, err := r.db.Exec(query,
		string(g.City), g.GridID, g.GridX, g.GridY,
		g.ForecastURL, g.HourlyURL, g.GridDataURL,
		g.CachedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save forecast grid: %w", err)
	}
	return nil
}
