// Package nws is the client for the governmental weather service. It
// resolves each city's coordinates to a forecast grid once, caches the
// grid durably, and reads the raw numerical gridpoint data (Celsius on the
// wire) with the period text forecast (already Fahrenheit) as fallback.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/bozweather/trader/pkg/units"
)

const defaultBaseURL = "https://api.weather.gov"

// Grid is a city's cached forecast grid. Resolved once per city and never
// refetched unless explicitly invalidated.
type Grid struct {
	City        units.City
	GridID      string
	GridX       int
	GridY       int
	ForecastURL string
	HourlyURL   string
	GridDataURL string
	CachedAt    time.Time
}

// GridRepository persists resolved grids across restarts.
type GridRepository interface {
	Get(city units.City) (*Grid, error) // nil, nil when absent
	Save(grid Grid) error
}

// Forecast is one normalized forecast reading from this provider.
type Forecast struct {
	City          units.City
	TargetDate    string
	PredictedHigh float64 // Fahrenheit, whatever the wire unit was
	ModelRunTS    time.Time
	RawPayload    json.RawMessage
}

// Client talks to the service. The token bucket honors the service's
// 1 req/s guidance; the breaker sheds load after repeated failures.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	grids      GridRepository
	log        zerolog.Logger

	mu       sync.Mutex
	memGrids map[units.City]*Grid
}

// Config configures the client.
type Config struct {
	BaseURL   string
	UserAgent string // required by the service
	RPS       float64
	Grids     GridRepository
	Log       zerolog.Logger
}

// NewClient creates a new client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "nws",
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		grids:    cfg.Grids,
		log:      cfg.Log.With().Str("client", "nws").Logger(),
		memGrids: make(map[units.City]*Grid),
	}
}

// getJSON performs a rate-limited GET with exponential backoff on 5xx and
// transport errors: 1s, 2s, 4s, three retries, then the failure surfaces.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= 3; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		body, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, url)
		})
		if err != nil {
			lastErr = err
			if !retryable(err) {
				return err
			}
			continue
		}

		if err := json.Unmarshal(body.([]byte), out); err != nil {
			return fmt.Errorf("parse response from %s: %w", url, err)
		}
		return nil
	}
	return fmt.Errorf("fetch %s: %w", url, lastErr)
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

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
		return nil, &transientError{fmt.Errorf("status %d from %s", resp.StatusCode, url)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}
	return body, nil
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func retryable(err error) bool {
	if _, ok := err.(*transientError); ok {
		return true
	}
	// The breaker rejecting fast counts as transient; the backoff gives it
	// time to close.
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

type pointsResponse struct {
	Properties struct {
		GridID           string `json:"gridId"`
		GridX            int    `json:"gridX"`
		GridY            int    `json:"gridY"`
		Forecast         string `json:"forecast"`
		ForecastHourly   string `json:"forecastHourly"`
		ForecastGridData string `json:"forecastGridData"`
	} `json:"properties"`
}

// grid returns the city's forecast grid, resolving and persisting it on
// first use.
func (c *Client) grid(ctx context.Context, city units.City) (*Grid, error) {
	if g := c.cachedGrid(city); g != nil {
		return g, nil
	}
	if c.grids != nil {
		g, err := c.grids.Get(city)
		if err != nil {
			return nil, err
		}
		if g != nil {
			c.cacheGrid(city, g)
			return g, nil
		}
	}

	lat, lon := city.Coordinates()
	url := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, lat, lon)

	var resp pointsResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("resolve grid for %s: %w", city, err)
	}

	g := &Grid{
		City:        city,
		GridID:      resp.Properties.GridID,
		GridX:       resp.Properties.GridX,
		GridY:       resp.Properties.GridY,
		ForecastURL: resp.Properties.Forecast,
		HourlyURL:   resp.Properties.ForecastHourly,
		GridDataURL: resp.Properties.ForecastGridData,
		CachedAt:    time.Now().UTC(),
	}
	if c.grids != nil {
		if err := c.grids.Save(*g); err != nil {
			c.log.Warn().Err(err).Str("city", string(city)).Msg("Failed to persist forecast grid")
		}
	}
	c.cacheGrid(city, g)

	c.log.Info().
		Str("city", string(city)).
		Str("grid", fmt.Sprintf("%s/%d,%d", g.GridID, g.GridX, g.GridY)).
		Msg("Forecast grid resolved")
	return g, nil
}

// InvalidateGrid drops the cached grid for a city.
func (c *Client) InvalidateGrid(city units.City) {
	c.mu.Lock()
	delete(c.memGrids, city)
	c.mu.Unlock()
}

// cachedGrid and cacheGrid guard the in-memory cache; overlapping sweeps
// share one client.
func (c *Client) cachedGrid(city units.City) *Grid {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memGrids[city]
}

func (c *Client) cacheGrid(city units.City, g *Grid) {
	c.mu.Lock()
	c.memGrids[city] = g
	c.mu.Unlock()
}

type gridDataResponse struct {
	Properties struct {
		UpdateTime  string `json:"updateTime"`
		Temperature struct {
			UOM    string `json:"uom"`
			Values []struct {
				ValidTime string  `json:"validTime"`
				Value     float64 `json:"value"`
			} `json:"values"`
		} `json:"temperature"`
	} `json:"properties"`
}

type periodForecastResponse struct {
	Properties struct {
		UpdateTime string `json:"updateTime"`
		Periods    []struct {
			StartTime       string `json:"startTime"`
			IsDaytime       bool   `json:"isDaytime"`
			Temperature     int    `json:"temperature"`
			TemperatureUnit string `json:"temperatureUnit"`
		} `json:"periods"`
	} `json:"properties"`
}

// ForecastHigh returns the forecast daily high for a city and target date.
// The numerical gridpoint data is preferred; the period text forecast is
// the fallback. Both are normalized to Fahrenheit here, at the boundary.
func (c *Client) ForecastHigh(ctx context.Context, city units.City, targetDate string) (*Forecast, error) {
	g, err := c.grid(ctx, city)
	if err != nil {
		return nil, err
	}

	f, err := c.gridpointHigh(ctx, g, city, targetDate)
	if err == nil {
		return f, nil
	}
	c.log.Warn().
		Err(err).
		Str("city", string(city)).
		Str("target_date", targetDate).
		Msg("Gridpoint high unavailable, falling back to period forecast")

	return c.periodHigh(ctx, g, city, targetDate)
}

func (c *Client) gridpointHigh(ctx context.Context, g *Grid, city units.City, targetDate string) (*Forecast, error) {
	var resp gridDataResponse
	if err := c.getJSON(ctx, g.GridDataURL, &resp); err != nil {
		return nil, err
	}

	zone := city.StandardZone()
	found := false
	var maxC float64
	for _, v := range resp.Properties.Temperature.Values {
		start := v.ValidTime
		if i := strings.IndexByte(start, '/'); i >= 0 {
			start = start[:i]
		}
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			continue
		}
		if t.In(zone).Format("2006-01-02") != targetDate {
			continue
		}
		if !found || v.Value > maxC {
			maxC = v.Value
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("no gridpoint temperatures for %s on %s", city, targetDate)
	}

	// The gridpoint endpoint reports wmoUnit:degC.
	highF := units.CelsiusToFahrenheit(maxC)
	if !strings.Contains(resp.Properties.Temperature.UOM, "degC") {
		highF = maxC
	}

	raw, _ := json.Marshal(map[string]any{"max_c": maxC, "uom": resp.Properties.Temperature.UOM})
	return &Forecast{
		City:          city,
		TargetDate:    targetDate,
		PredictedHigh: highF,
		ModelRunTS:    parseModelRun(resp.Properties.UpdateTime),
		RawPayload:    raw,
	}, nil
}

func (c *Client) periodHigh(ctx context.Context, g *Grid, city units.City, targetDate string) (*Forecast, error) {
	var resp periodForecastResponse
	if err := c.getJSON(ctx, g.ForecastURL, &resp); err != nil {
		return nil, err
	}

	zone := city.StandardZone()
	for _, p := range resp.Properties.Periods {
		if !p.IsDaytime {
			continue
		}
		t, err := time.Parse(time.RFC3339, p.StartTime)
		if err != nil {
			continue
		}
		if t.In(zone).Format("2006-01-02") != targetDate {
			continue
		}

		// Period forecasts are already Fahrenheit.
		high := float64(p.Temperature)
		if p.TemperatureUnit == "C" {
			high = units.CelsiusToFahrenheit(high)
		}

		raw, _ := json.Marshal(p)
		return &Forecast{
			City:          city,
			TargetDate:    targetDate,
			PredictedHigh: high,
			ModelRunTS:    parseModelRun(resp.Properties.UpdateTime),
			RawPayload:    raw,
		}, nil
	}
	return nil, fmt.Errorf("no daytime period for %s on %s", city, targetDate)
}

func parseModelRun(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC().Truncate(time.Hour)
}
