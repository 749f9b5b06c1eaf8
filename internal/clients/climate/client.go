// Package climate fetches the authoritative daily climate report (CLI
// product) each city's market settles against and extracts the official
// maximum temperature. The measurement window is the city's standard-time
// calendar day.
package climate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/bozweather/trader/pkg/units"
)

const defaultBaseURL = "https://api.weather.gov"

// Report is one parsed climate report.
type Report struct {
	City       units.City
	TargetDate string
	HighF      float64
	IssuedAt   time.Time
	RawText    string
}

// Client reads CLI products from the governmental service. Same access
// etiquette as the forecast side: User-Agent, 1 req/s, breaker on
// repeated failures.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// Config configures the client.
type Config struct {
	BaseURL   string
	UserAgent string
	RPS       float64
	Log       zerolog.Logger
}

// NewClient creates a new climate report client.
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
			Name:    "climate",
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		log: cfg.Log.With().Str("client", "climate").Logger(),
	}
}

type productListResponse struct {
	Graph []struct {
		ID           string `json:"id"`
		IssuanceTime string `json:"issuanceTime"`
	} `json:"@graph"`
}

type productResponse struct {
	IssuanceTime string `json:"issuanceTime"`
	ProductText  string `json:"productText"`
}

// DailyHigh finds the climate report covering targetDate for a city and
// returns its official maximum. Recent CLI issuances are scanned newest
// first; the summary date inside the product text decides the match, not
// the issuance time, because the morning report covers the prior day.
func (c *Client) DailyHigh(ctx context.Context, city units.City, targetDate string) (*Report, error) {
	listURL := fmt.Sprintf("%s/products/types/CLI/locations/%s", c.baseURL, city.CLISite())

	var list productListResponse
	if err := c.getJSON(ctx, listURL, &list); err != nil {
		return nil, fmt.Errorf("list climate reports for %s: %w", city, err)
	}
	if len(list.Graph) == 0 {
		return nil, fmt.Errorf("no climate reports issued for %s", city)
	}

	// The list arrives newest first. A handful is enough to cover the
	// morning and evening issuances around the target day.
	const maxScan = 8
	for i, item := range list.Graph {
		if i >= maxScan {
			break
		}

		var product productResponse
		if err := c.getJSON(ctx, item.ID, &product); err != nil {
			c.log.Warn().Err(err).Str("product", item.ID).Msg("Failed to fetch climate product, trying next")
			continue
		}

		summaryDate, err := ParseSummaryDate(product.ProductText)
		if err != nil || summaryDate != targetDate {
			continue
		}
		highF, err := ParseMaxTemperature(product.ProductText)
		if err != nil {
			c.log.Warn().Err(err).Str("product", item.ID).Msg("Climate report missing maximum temperature")
			continue
		}

		issuedAt, _ := time.Parse(time.RFC3339, product.IssuanceTime)
		c.log.Info().
			Str("city", string(city)).
			Str("target_date", targetDate).
			Float64("high_f", highF).
			Msg("Official high observed")
		return &Report{
			City:       city,
			TargetDate: targetDate,
			HighF:      highF,
			IssuedAt:   issuedAt.UTC(),
			RawText:    product.ProductText,
		}, nil
	}
	return nil, fmt.Errorf("no climate report covering %s for %s yet", targetDate, city)
}

// getJSON performs a rate-limited GET with exponential backoff on 5xx and
// transport errors: 1s, 2s, 4s, three retries.
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
	req.Header.Set("Accept", "application/ld+json")

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
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
