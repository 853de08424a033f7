package http

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ebrossard/meteo-vanoise/internal/cache"
	"github.com/ebrossard/meteo-vanoise/internal/config"
	"github.com/ebrossard/meteo-vanoise/internal/lifecycle"
	"github.com/ebrossard/meteo-vanoise/internal/service"
	"github.com/ebrossard/meteo-vanoise/internal/traffic"
	"github.com/ebrossard/meteo-vanoise/internal/validation"
)

// HealthConfig holds the knobs the health handler needs.
type HealthConfig struct {
	// DegradedWindow is the sliding window over acquisition outcomes; when
	// more than half of recent acquisitions came from the fallback tier the
	// service reports degraded.
	DegradedWindow time.Duration
	// CachePing, when set, checks cache backend reachability (memcached).
	CachePing func() error
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	bulletins    *service.BulletinService
	warnings     *service.WarningsService
	forecasts    *service.ForecastService
	cache        cache.Cache
	region       config.Region
	healthConfig *HealthConfig
	logger       *zap.Logger
}

// NewHandler returns a new Handler.
func NewHandler(
	bulletins *service.BulletinService,
	warnings *service.WarningsService,
	forecasts *service.ForecastService,
	c cache.Cache,
	region config.Region,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		bulletins:    bulletins,
		warnings:     warnings,
		forecasts:    forecasts,
		cache:        c,
		region:       region,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetBulletin handles GET /api/avalanche/{massif}. The pipeline absorbs
// every upstream failure, so this endpoint always answers 200; degraded
// quality is visible only in the payload's dataSource/error fields.
func (h *Handler) GetBulletin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bulletins.GetBulletin(r.Context()))
}

// GetWarnings handles GET /api/warnings/{department}. Always 200; total
// failure yields an empty alerts list.
func (h *Handler) GetWarnings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.warnings.GetWarnings(r.Context()))
}

// GetForecast handles GET /api/forecast/extended. This endpoint has no
// fallback tier: upstream failure surfaces as 500 with an error body.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, lon, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lon"), h.region.Latitude, h.region.Longitude)
	if err != nil {
		writeForecastError(w, http.StatusBadRequest, "invalid_parameters", "lat and lon must be valid coordinates")
		return
	}
	days, err := validation.ParseDays(q.Get("days"))
	if err != nil {
		writeForecastError(w, http.StatusBadRequest, "invalid_parameters", "days must be a positive integer")
		return
	}

	forecast, err := h.forecasts.GetForecast(r.Context(), lat, lon, days)
	if err != nil {
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Error("forecast fetch failed", zap.Error(err))
		}
		writeForecastError(w, http.StatusInternalServerError, "forecast_unavailable", "Unable to fetch extended forecast data")
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

// GetHealth handles GET /api/health. Reports per-resource cache fetch times
// (null for a slot never populated) and a coarse status derived from the
// recent acquisition fallback rate.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := h.computeStatus()

	checks := map[string]interface{}{}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cacheBackend"] = "healthy"
		} else {
			checks["cacheBackend"] = "unhealthy"
		}
	}

	resp := map[string]interface{}{
		"status":    status,
		"service":   "meteo-vanoise",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"cache": map[string]interface{}{
			cache.KeyBulletin: h.slotTimestamp(r, cache.KeyBulletin),
			cache.KeyWarnings: h.slotTimestamp(r, cache.KeyWarnings),
			cache.KeyForecast: h.slotTimestamp(r, cache.KeyForecast),
		},
	}
	if len(checks) > 0 {
		resp["checks"] = checks
	}

	statusCode := http.StatusOK
	if status == "shutting-down" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, resp)
}

func (h *Handler) computeStatus() string {
	if lifecycle.IsShuttingDown() {
		return "shutting-down"
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		fallbacks, total := traffic.FallbackRate(h.healthConfig.DegradedWindow)
		if total > 0 && fallbacks*2 > total {
			return "degraded"
		}
	}
	return "ok"
}

// slotTimestamp returns the slot's fetch time as an ISO-8601 string, or nil
// when the slot was never populated.
func (h *Handler) slotTimestamp(r *http.Request, key string) interface{} {
	fetchedAt, ok := h.cache.LastFetched(r.Context(), key)
	if !ok {
		return nil
	}
	return fetchedAt.UTC().Format(time.RFC3339)
}

// GetIndex handles GET /. Returns the discovery document.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "meteo-vanoise",
		"region": map[string]string{
			"massif":     h.region.Massif,
			"department": h.region.Department,
		},
		"endpoints": map[string]string{
			"avalancheBulletin": "/api/avalanche/" + h.region.MassifSlug,
			"weatherWarnings":   "/api/warnings/" + h.region.DepartmentSlug,
			"extendedForecast":  "/api/forecast/extended?lat={lat}&lon={lon}&days={days}",
			"health":            "/api/health",
			"metrics":           "/metrics",
		},
	})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeForecastError writes the flat {error, message} body the forecast
// endpoint uses for both parameter and upstream failures.
func writeForecastError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
