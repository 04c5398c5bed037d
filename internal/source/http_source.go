// Package source provides metrics sources for the refresh engine.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"biofilter_monitor/internal/engine"
	"biofilter_monitor/internal/models"

	"github.com/sony/gobreaker/v2"
)

// MetricsPath is the upstream dashboard endpoint.
const MetricsPath = "/api/dashboard/metrics"

// maxBodyBytes caps the upstream response size.
const maxBodyBytes = 1 << 20

var (
	// ErrFetch covers network errors, timeouts, non-2xx responses and an open breaker.
	ErrFetch = errors.New("metrics fetch failed")
	// ErrParse means the upstream body was not a valid metrics payload.
	ErrParse = errors.New("metrics payload malformed")
)

// BreakerSettings configures the circuit breaker in front of the upstream.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32        // trips after more than this many failures in a row
	OpenTimeout         time.Duration // how long the breaker stays open
}

// DefaultBreakerSettings returns the stock breaker configuration.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "metrics-upstream",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// HTTPSource fetches DashboardMetrics from an upstream JSON endpoint.
// It never retries; the engine owns the retry policy.
type HTTPSource struct {
	client  *http.Client
	url     string
	breaker *gobreaker.CircuitBreaker[models.Reading]
}

var _ engine.Source = (*HTTPSource)(nil)

// NewHTTPSource returns a source reading {baseURL}/api/dashboard/metrics.
func NewHTTPSource(client *http.Client, baseURL string, bs BreakerSettings) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: engine.DefaultFetchTimeout}
	}
	def := DefaultBreakerSettings()
	if bs.Name == "" {
		bs.Name = def.Name
	}
	if bs.ConsecutiveFailures == 0 {
		bs.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = def.OpenTimeout
	}
	trip := bs.ConsecutiveFailures

	cb := gobreaker.NewCircuitBreaker[models.Reading](gobreaker.Settings{
		Name:        bs.Name,
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > trip
		},
		IsSuccessful: func(err error) bool {
			// A cancelled caller says nothing about the upstream.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &HTTPSource{
		client:  client,
		url:     strings.TrimRight(baseURL, "/") + MetricsPath,
		breaker: cb,
	}
}

// Fetch performs one GET and converts the present values into a Reading.
func (s *HTTPSource) Fetch(ctx context.Context) (models.Reading, error) {
	r, err := s.breaker.Execute(func() (models.Reading, error) {
		return s.fetch(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit %s: %v", ErrFetch, s.breaker.Name(), err)
	}
	return r, err
}

// State returns the breaker state name: closed, half-open or open.
func (s *HTTPSource) State() string {
	return s.breaker.State().String()
}

func (s *HTTPSource) fetch(ctx context.Context) (models.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%w: upstream status %d", ErrFetch, resp.StatusCode)
	}

	var m models.DashboardMetrics
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	r := m.Reading()
	if len(r) == 0 {
		return nil, fmt.Errorf("%w: no metric values", ErrParse)
	}
	return r, nil
}
