package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ebrossard/meteo-vanoise/internal/observability"
)

// Sentinel errors for upstream failures.
var (
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrNotFound        = errors.New("document not found")
	ErrRateLimited     = errors.New("rate limited")
)

// MeteoFranceClient fetches the structured BRA document and the unstructured
// pages from Météo-France. Every call is bounded by the configured timeout;
// there are no retries, the pipeline falls through to the next tier instead.
type MeteoFranceClient struct {
	braURL        string
	massifPageURL string
	vigilanceURL  string
	timeout       time.Duration
	client        *http.Client
}

// NewMeteoFranceClient creates a client for the three Météo-France sources.
func NewMeteoFranceClient(braURL, massifPageURL, vigilanceURL string, timeout time.Duration) *MeteoFranceClient {
	return &MeteoFranceClient{
		braURL:        braURL,
		massifPageURL: massifPageURL,
		vigilanceURL:  vigilanceURL,
		timeout:       timeout,
		client:        &http.Client{Timeout: timeout},
	}
}

// FetchBulletinXML fetches the machine-readable BRA document for the massif.
func (c *MeteoFranceClient) FetchBulletinXML(ctx context.Context) ([]byte, error) {
	return c.fetch(ctx, c.braURL, "bra", "application/xml")
}

// FetchMassifPage fetches the public massif page for heuristic scraping.
func (c *MeteoFranceClient) FetchMassifPage(ctx context.Context) ([]byte, error) {
	return c.fetch(ctx, c.massifPageURL, "massif_page", "text/html")
}

// FetchVigilancePage fetches the département vigilance page.
func (c *MeteoFranceClient) FetchVigilancePage(ctx context.Context) ([]byte, error) {
	return c.fetch(ctx, c.vigilanceURL, "vigilance", "text/html")
}

// BulletinSourceURL is the URL reported in bulletin payloads.
func (c *MeteoFranceClient) BulletinSourceURL() string { return c.massifPageURL }

// VigilanceSourceURL is the URL reported in warnings payloads.
func (c *MeteoFranceClient) VigilanceSourceURL() string { return c.vigilanceURL }

func (c *MeteoFranceClient) fetch(ctx context.Context, url, source, accept string) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(source, "error").Inc()
		observability.UpstreamDurationSeconds.WithLabelValues(source).Observe(duration)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	observability.UpstreamCallsTotal.WithLabelValues(source, statusLabel(resp.StatusCode)).Inc()
	observability.UpstreamDurationSeconds.WithLabelValues(source).Observe(duration)

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	case code < 200 || code >= 300:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
	return nil
}

func statusLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "success"
	case code == 429:
		return "rate_limited"
	case code >= 400 && code < 500:
		return "client_error"
	case code >= 500:
		return "server_error"
	default:
		return "error"
	}
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}
