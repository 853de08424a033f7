package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ebrossard/meteo-vanoise/internal/circuitbreaker"
	"github.com/ebrossard/meteo-vanoise/internal/observability"
)

// OpenMeteoResponse mirrors the parallel-array layout of the Open-Meteo
// forecast API. Daily and hourly fields share an index with their time axis.
type OpenMeteoResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Daily     struct {
		Time             []string  `json:"time"`
		TempMax          []float64 `json:"temperature_2m_max"`
		TempMin          []float64 `json:"temperature_2m_min"`
		SnowfallSum      []float64 `json:"snowfall_sum"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
		WindSpeedMax     []float64 `json:"wind_speed_10m_max"`
		WindGustsMax     []float64 `json:"wind_gusts_10m_max"`
		WeatherCode      []int     `json:"weather_code"`
	} `json:"daily"`
	Hourly struct {
		Time          []string  `json:"time"`
		Temperature   []float64 `json:"temperature_2m"`
		Snowfall      []float64 `json:"snowfall"`
		Precipitation []float64 `json:"precipitation"`
		WindSpeed     []float64 `json:"wind_speed_10m"`
		WeatherCode   []int     `json:"weather_code"`
	} `json:"hourly"`
}

// OpenMeteoClient fetches the extended forecast. Unlike the Météo-France
// sources this upstream has no fallback tier, so its failures surface to the
// caller; an optional circuit breaker stops hammering it while it is down.
type OpenMeteoClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewOpenMeteoClient creates a forecast client for the given base URL.
func NewOpenMeteoClient(baseURL string, timeout time.Duration) *OpenMeteoClient {
	return &OpenMeteoClient{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// SetCircuitBreaker installs a breaker around forecast calls.
func (c *OpenMeteoClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// FetchForecast fetches days of daily and hourly forecast data for the
// coordinates.
func (c *OpenMeteoClient) FetchForecast(ctx context.Context, lat, lon float64, days int) (OpenMeteoResponse, error) {
	var resp OpenMeteoResponse
	call := func() error {
		var err error
		resp, err = c.fetchForecast(ctx, lat, lon, days)
		return err
	}
	if c.breaker != nil {
		if err := c.breaker.Call(ctx, call); err != nil {
			return OpenMeteoResponse{}, err
		}
		return resp, nil
	}
	if err := call(); err != nil {
		return OpenMeteoResponse{}, err
	}
	return resp, nil
}

func (c *OpenMeteoClient) fetchForecast(ctx context.Context, lat, lon float64, days int) (OpenMeteoResponse, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, lat, lon, days)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("openmeteo", "error").Inc()
		return OpenMeteoResponse{}, fmt.Errorf("build request: %w", err)
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues("openmeteo", "error").Inc()
		observability.UpstreamDurationSeconds.WithLabelValues("openmeteo").Observe(duration)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return OpenMeteoResponse{}, fmt.Errorf("request timeout: %w", err)
		}
		return OpenMeteoResponse{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	observability.UpstreamCallsTotal.WithLabelValues("openmeteo", statusLabel(resp.StatusCode)).Inc()
	observability.UpstreamDurationSeconds.WithLabelValues("openmeteo").Observe(duration)

	if err := checkStatus(resp.StatusCode); err != nil {
		return OpenMeteoResponse{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return OpenMeteoResponse{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp OpenMeteoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return OpenMeteoResponse{}, fmt.Errorf("parse response: %w", err)
	}
	return apiResp, nil
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, lat, lon float64, days int) (*http.Request, error) {
	baseURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	params.Set("forecast_days", strconv.Itoa(days))
	params.Set("daily", "temperature_2m_max,temperature_2m_min,snowfall_sum,precipitation_sum,wind_speed_10m_max,wind_gusts_10m_max,weather_code")
	params.Set("hourly", "temperature_2m,snowfall,precipitation,wind_speed_10m,weather_code")
	params.Set("timezone", "Europe/Paris")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
