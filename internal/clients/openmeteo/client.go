// Package openmeteo is the client for the free multi-model forecast
// service. One request per city returns the daily high from several global
// models; the Fahrenheit unit parameter is mandatory so no conversion
// happens on this path.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/bozweather/trader/pkg/units"
)

const defaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// Model identifiers requested from the service, mapped to the source names
// the ensemble weights know.
var modelSources = map[string]string{
	"ecmwf_ifs025":  "ecmwf",
	"gfs_seamless":  "gfs",
	"icon_seamless": "icon",
	"gem_seamless":  "gem",
}

var requestedModels = []string{"ecmwf_ifs025", "gfs_seamless", "icon_seamless", "gem_seamless"}

// Forecast is one model's reading for a city/date.
type Forecast struct {
	City          units.City
	TargetDate    string
	Source        string
	PredictedHigh float64 // Fahrenheit
	ModelRunTS    time.Time
	RawPayload    json.RawMessage
}

// Client talks to the service at up to 5 req/s.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// Config configures the client.
type Config struct {
	BaseURL string
	RPS     float64
	Log     zerolog.Logger
}

// NewClient creates a new client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "openmeteo",
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		log: cfg.Log.With().Str("client", "openmeteo").Logger(),
	}
}

type forecastResponse struct {
	Daily map[string]json.RawMessage `json:"daily"`
}

// ForecastHighs fetches each model's daily high for a city and target
// date. Models missing the date are skipped, not fatal.
func (c *Client) ForecastHighs(ctx context.Context, city units.City, targetDate string) ([]Forecast, error) {
	lat, lon := city.Coordinates()

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("daily", "temperature_2m_max")
	// Fahrenheit must be requested explicitly; the default is Celsius.
	q.Set("temperature_unit", "fahrenheit")
	q.Set("timezone", "UTC")
	q.Set("models", strings.Join(requestedModels, ","))

	body, err := c.getWithRetry(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	var dates []string
	if rawTime, ok := resp.Daily["time"]; ok {
		if err := json.Unmarshal(rawTime, &dates); err != nil {
			return nil, fmt.Errorf("parse daily time axis: %w", err)
		}
	}
	dateIdx := -1
	for i, d := range dates {
		if d == targetDate {
			dateIdx = i
			break
		}
	}
	if dateIdx < 0 {
		return nil, fmt.Errorf("target date %s not in response window", targetDate)
	}

	// With multiple models the service suffixes each series with the model
	// name: temperature_2m_max_ecmwf_ifs025, etc.
	modelRun := time.Now().UTC().Truncate(time.Hour)
	var forecasts []Forecast
	for model, source := range modelSources {
		raw, ok := resp.Daily["temperature_2m_max_"+model]
		if !ok {
			continue
		}
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil || dateIdx >= len(values) || values[dateIdx] == nil {
			c.log.Debug().
				Str("model", model).
				Str("city", string(city)).
				Msg("Model missing target date, skipping")
			continue
		}

		forecasts = append(forecasts, Forecast{
			City:          city,
			TargetDate:    targetDate,
			Source:        source,
			PredictedHigh: *values[dateIdx],
			ModelRunTS:    modelRun,
			RawPayload:    raw,
		})
	}

	if len(forecasts) == 0 {
		return nil, fmt.Errorf("no model produced a high for %s on %s", city, targetDate)
	}
	return forecasts, nil
}

// getWithRetry performs a rate-limited GET with exponential backoff on 5xx
// and transport errors (1s, 2s, 4s; three retries).
func (c *Client) getWithRetry(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= 3; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, u)
		})
		if err != nil {
			lastErr = err
			if !transient(err) {
				return nil, err
			}
			continue
		}
		return body.([]byte), nil
	}
	return nil, fmt.Errorf("fetch %s: %w", u, lastErr)
}

func (c *Client) doRequest(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transientError{err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err}
	}
	if resp.StatusCode >= 500 {
		return nil, &transientError{fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) bool {
	if _, ok := err.(*transientError); ok {
		return true
	}
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
