package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ebrossard/meteo-vanoise/internal/cache"
	"github.com/ebrossard/meteo-vanoise/internal/config"
	"github.com/ebrossard/meteo-vanoise/internal/lifecycle"
	"github.com/ebrossard/meteo-vanoise/internal/service"
	"github.com/ebrossard/meteo-vanoise/internal/traffic"
	"github.com/ebrossard/meteo-vanoise/internal/upstream"
)

var errUpstreamDown = errors.New("upstream down")

const braFixture = `<BULLETINS_NEIGE_AVALANCHE MASSIF="VANOISE" DATEVALIDITE="2026-01-16T16:00:00">
  <CARTOUCHERISQUE>
    <RISQUE RISQUE1="2" RISQUE2="4" ALTITUDE="2200"/>
  </CARTOUCHERISQUE>
</BULLETINS_NEIGE_AVALANCHE>`

type stubUpstream struct {
	xml         []byte
	xmlErr      error
	page        []byte
	pageErr     error
	vigilance   []byte
	vigErr      error
	forecast    upstream.OpenMeteoResponse
	forecastErr error
}

func (s *stubUpstream) FetchBulletinXML(ctx context.Context) ([]byte, error) {
	return s.xml, s.xmlErr
}

func (s *stubUpstream) FetchMassifPage(ctx context.Context) ([]byte, error) {
	return s.page, s.pageErr
}

func (s *stubUpstream) FetchVigilancePage(ctx context.Context) ([]byte, error) {
	return s.vigilance, s.vigErr
}

func (s *stubUpstream) BulletinSourceURL() string  { return "https://example.test/bra" }
func (s *stubUpstream) VigilanceSourceURL() string { return "https://example.test/vigilance" }

func (s *stubUpstream) FetchForecast(ctx context.Context, lat, lon float64, days int) (upstream.OpenMeteoResponse, error) {
	return s.forecast, s.forecastErr
}

func testRegion() config.Region {
	return config.Region{
		Massif:         "Vanoise",
		MassifSlug:     "vanoise",
		Department:     "Savoie",
		DepartmentSlug: "savoie",
		Latitude:       45.38,
		Longitude:      6.82,
	}
}

func newTestHandler(t *testing.T, src *stubUpstream) (*Handler, *cache.InMemoryCache, clockwork.Clock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	c := cache.NewInMemoryCache(6*time.Hour, clock)

	bulletins := service.NewBulletinService(src, c, "Vanoise", false, 0, clock)
	warnings := service.NewWarningsService(src, c, "Savoie", false, 0, clock)
	forecasts := service.NewForecastService(src, c, clock)

	h := NewHandler(bulletins, warnings, forecasts, c, testRegion(),
		&HealthConfig{DegradedWindow: 6 * time.Hour}, zap.NewNop())
	return h, c, clock
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not JSON: %v", err)
	}
	return body
}

// TestGetBulletin_AlwaysOK verifies the bulletin endpoint returns 200 for
// every upstream condition; degradation is visible only in the payload.
func TestGetBulletin_AlwaysOK(t *testing.T) {
	tests := []struct {
		name       string
		src        *stubUpstream
		wantSource string
	}{
		{
			name:       "structured tier",
			src:        &stubUpstream{xml: []byte(braFixture)},
			wantSource: "structured",
		},
		{
			name:       "heuristic tier",
			src:        &stubUpstream{xmlErr: errUpstreamDown, page: []byte(`<div class="risque">fort</div>`)},
			wantSource: "heuristic",
		},
		{
			name:       "fallback tier",
			src:        &stubUpstream{xmlErr: errUpstreamDown, pageErr: errUpstreamDown},
			wantSource: "fallback",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _, _ := newTestHandler(t, tc.src)

			req := httptest.NewRequest("GET", "/api/avalanche/vanoise", nil)
			rec := httptest.NewRecorder()
			h.GetBulletin(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			body := decodeBody(t, rec)
			if body["dataSource"] != tc.wantSource {
				t.Errorf("dataSource = %v, want %q", body["dataSource"], tc.wantSource)
			}
			bands, ok := body["elevationBands"].([]interface{})
			if !ok || len(bands) != 3 {
				t.Errorf("elevationBands = %v, want 3 bands", body["elevationBands"])
			}
		})
	}
}

// TestGetWarnings_AlwaysOK verifies the warnings endpoint returns 200 with an
// empty alerts array on total failure.
func TestGetWarnings_AlwaysOK(t *testing.T) {
	h, _, _ := newTestHandler(t, &stubUpstream{vigErr: errUpstreamDown})

	req := httptest.NewRequest("GET", "/api/warnings/savoie", nil)
	rec := httptest.NewRecorder()
	h.GetWarnings(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	alerts, ok := body["alerts"].([]interface{})
	if !ok {
		t.Fatalf("alerts = %v (%T), want JSON array", body["alerts"], body["alerts"])
	}
	if len(alerts) != 0 {
		t.Errorf("got %d alerts, want 0", len(alerts))
	}
}

// TestGetForecast verifies the parameter handling and error contract of the
// forecast endpoint.
func TestGetForecast(t *testing.T) {
	var okResp upstream.OpenMeteoResponse
	okResp.Daily.Time = []string{"2026-01-15"}
	okResp.Daily.TempMax = []float64{-5}

	tests := []struct {
		name       string
		target     string
		src        *stubUpstream
		wantStatus int
		wantError  string
	}{
		{
			name:       "default params",
			target:     "/api/forecast/extended",
			src:        &stubUpstream{forecast: okResp},
			wantStatus: http.StatusOK,
		},
		{
			name:       "explicit params",
			target:     "/api/forecast/extended?lat=45.5&lon=6.9&days=3",
			src:        &stubUpstream{forecast: okResp},
			wantStatus: http.StatusOK,
		},
		{
			name:       "days clamped not rejected",
			target:     "/api/forecast/extended?days=99",
			src:        &stubUpstream{forecast: okResp},
			wantStatus: http.StatusOK,
		},
		{
			name:       "malformed lat",
			target:     "/api/forecast/extended?lat=abc&lon=6.9",
			src:        &stubUpstream{forecast: okResp},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_parameters",
		},
		{
			name:       "malformed days",
			target:     "/api/forecast/extended?days=-1",
			src:        &stubUpstream{forecast: okResp},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_parameters",
		},
		{
			name:       "upstream failure",
			target:     "/api/forecast/extended",
			src:        &stubUpstream{forecastErr: errUpstreamDown},
			wantStatus: http.StatusInternalServerError,
			wantError:  "forecast_unavailable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _, _ := newTestHandler(t, tc.src)

			req := httptest.NewRequest("GET", tc.target, nil)
			rec := httptest.NewRecorder()
			h.GetForecast(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantError != "" {
				body := decodeBody(t, rec)
				if body["error"] != tc.wantError {
					t.Errorf("error = %v, want %q", body["error"], tc.wantError)
				}
			}
		})
	}
}

// TestGetHealth_CacheSlots verifies the health payload reports null for
// unpopulated slots and ISO-8601 timestamps after acquisition.
func TestGetHealth_CacheSlots(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	h, _, _ := newTestHandler(t, &stubUpstream{xml: []byte(braFixture)})

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	h.GetHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	slots, ok := body["cache"].(map[string]interface{})
	if !ok {
		t.Fatalf("cache = %v, want object", body["cache"])
	}
	for _, key := range []string{"bulletin", "warnings", "forecast"} {
		if slots[key] != nil {
			t.Errorf("slot %q = %v, want null before population", key, slots[key])
		}
	}

	// Populate the bulletin slot and re-check.
	bReq := httptest.NewRequest("GET", "/api/avalanche/vanoise", nil)
	h.GetBulletin(httptest.NewRecorder(), bReq)

	rec = httptest.NewRecorder()
	h.GetHealth(rec, req)
	body = decodeBody(t, rec)
	slots = body["cache"].(map[string]interface{})

	ts, ok := slots["bulletin"].(string)
	if !ok {
		t.Fatalf("bulletin slot = %v, want timestamp string", slots["bulletin"])
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("bulletin slot %q is not RFC3339: %v", ts, err)
	}
	if slots["warnings"] != nil {
		t.Errorf("warnings slot = %v, want null", slots["warnings"])
	}
}

// TestGetHealth_Degraded verifies the status turns degraded when fallback
// acquisitions dominate the recent window.
func TestGetHealth_Degraded(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	h, _, _ := newTestHandler(t, &stubUpstream{})

	traffic.RecordAcquisition(true)
	traffic.RecordAcquisition(true)
	traffic.RecordAcquisition(false)

	rec := httptest.NewRecorder()
	h.GetHealth(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 while degraded", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

// TestGetHealth_ShuttingDown verifies the 503 during graceful shutdown.
func TestGetHealth_ShuttingDown(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	lifecycle.SetShuttingDown(true)
	defer lifecycle.SetShuttingDown(false)

	h, _, _ := newTestHandler(t, &stubUpstream{})

	rec := httptest.NewRecorder()
	h.GetHealth(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "shutting-down" {
		t.Errorf("status = %v, want shutting-down", body["status"])
	}
}

// TestGetHealth_CacheBackendCheck verifies the optional backend check is
// reported when configured.
func TestGetHealth_CacheBackendCheck(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	h, _, _ := newTestHandler(t, &stubUpstream{})
	h.healthConfig.CachePing = func() error { return nil }

	rec := httptest.NewRecorder()
	h.GetHealth(rec, httptest.NewRequest("GET", "/api/health", nil))
	body := decodeBody(t, rec)

	checks, ok := body["checks"].(map[string]interface{})
	if !ok {
		t.Fatalf("checks = %v, want object", body["checks"])
	}
	if checks["cacheBackend"] != "healthy" {
		t.Errorf("cacheBackend = %v, want healthy", checks["cacheBackend"])
	}

	h.healthConfig.CachePing = func() error { return errUpstreamDown }
	rec = httptest.NewRecorder()
	h.GetHealth(rec, httptest.NewRequest("GET", "/api/health", nil))
	body = decodeBody(t, rec)
	checks = body["checks"].(map[string]interface{})
	if checks["cacheBackend"] != "unhealthy" {
		t.Errorf("cacheBackend = %v, want unhealthy", checks["cacheBackend"])
	}
}

// TestGetIndex verifies the discovery document lists the region routes.
func TestGetIndex(t *testing.T) {
	h, _, _ := newTestHandler(t, &stubUpstream{})

	rec := httptest.NewRecorder()
	h.GetIndex(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	endpoints, ok := body["endpoints"].(map[string]interface{})
	if !ok {
		t.Fatalf("endpoints = %v, want object", body["endpoints"])
	}
	if endpoints["avalancheBulletin"] != "/api/avalanche/vanoise" {
		t.Errorf("avalancheBulletin = %v, want region slug route", endpoints["avalancheBulletin"])
	}
	if endpoints["weatherWarnings"] != "/api/warnings/savoie" {
		t.Errorf("weatherWarnings = %v, want region slug route", endpoints["weatherWarnings"])
	}
}
