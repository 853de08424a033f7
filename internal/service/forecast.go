package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/ebrossard/meteo-vanoise/internal/cache"
	"github.com/ebrossard/meteo-vanoise/internal/models"
	"github.com/ebrossard/meteo-vanoise/internal/observability"
	"github.com/ebrossard/meteo-vanoise/internal/riskrules"
	"github.com/ebrossard/meteo-vanoise/internal/upstream"
)

// ForecastSource is the upstream surface the forecast service needs.
type ForecastSource interface {
	FetchForecast(ctx context.Context, lat, lon float64, days int) (upstream.OpenMeteoResponse, error)
}

// ForecastService reshapes the Open-Meteo parallel arrays into per-day
// entries with 3-hourly samples and derived mountain fields. Unlike the
// bulletin and warnings pipelines there is no synthesized tier: no
// meaningful forecast can be derived without a weather model, so upstream
// failure surfaces to the caller.
type ForecastService struct {
	source ForecastSource
	cache  cache.Cache
	clock  clockwork.Clock
}

// cachedForecast is the forecast cache envelope. The single slot is
// parameterized by the request: a coordinate or day-count change is a
// different logical key and overwrites the slot on the next store.
type cachedForecast struct {
	Params   string          `json:"params"`
	Forecast models.Forecast `json:"forecast"`
}

// NewForecastService creates the forecast service. A nil clock uses real time.
func NewForecastService(source ForecastSource, c cache.Cache, clock clockwork.Clock) *ForecastService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ForecastService{source: source, cache: c, clock: clock}
}

// GetForecast returns the extended forecast for the coordinates, cached per
// parameter set.
func (s *ForecastService) GetForecast(ctx context.Context, lat, lon float64, days int) (models.Forecast, error) {
	params := forecastParams(lat, lon, days)

	if f, ok := s.cachedForecast(ctx, params); ok {
		observability.CacheHitsTotal.WithLabelValues(cache.KeyForecast).Inc()
		return f, nil
	}

	resp, err := s.source.FetchForecast(ctx, lat, lon, days)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("fetch forecast: %w", err)
	}

	f := s.reshape(resp, lat, lon, days)
	s.store(ctx, params, f)
	observability.AcquisitionResultsTotal.WithLabelValues(cache.KeyForecast, models.SourceStructured).Inc()
	return f, nil
}

func forecastParams(lat, lon float64, days int) string {
	return fmt.Sprintf("%.4f,%.4f,%d", lat, lon, days)
}

func (s *ForecastService) cachedForecast(ctx context.Context, params string) (models.Forecast, bool) {
	entry, ok, err := s.cache.Get(ctx, cache.KeyForecast)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		return models.Forecast{}, false
	}
	if !ok {
		return models.Forecast{}, false
	}
	var cached cachedForecast
	if err := json.Unmarshal(entry.Payload, &cached); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("decode").Inc()
		return models.Forecast{}, false
	}
	if cached.Params != params {
		return models.Forecast{}, false
	}
	return cached.Forecast, true
}

func (s *ForecastService) store(ctx context.Context, params string, f models.Forecast) {
	payload, err := json.Marshal(cachedForecast{Params: params, Forecast: f})
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("encode").Inc()
		return
	}
	if err := s.cache.Set(ctx, cache.KeyForecast, payload); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
	}
}

// reshape folds the parallel daily/hourly arrays into ordered per-day
// entries. Array lengths are taken defensively; missing indices read as zero.
func (s *ForecastService) reshape(resp upstream.OpenMeteoResponse, lat, lon float64, days int) models.Forecast {
	f := models.Forecast{
		Latitude:    lat,
		Longitude:   lon,
		GeneratedAt: s.clock.Now(),
		Days:        days,
		Daily:       make([]models.ForecastDay, 0, len(resp.Daily.Time)),
	}

	for i, date := range resp.Daily.Time {
		tempMax := at(resp.Daily.TempMax, i)
		snowfall := at(resp.Daily.SnowfallSum, i)
		wind := at(resp.Daily.WindSpeedMax, i)

		day := models.ForecastDay{
			Date:          date,
			TempMin:       at(resp.Daily.TempMin, i),
			TempMax:       tempMax,
			Snowfall:      snowfall,
			Precipitation: at(resp.Daily.PrecipitationSum, i),
			WindSpeed:     wind,
			WindGusts:     at(resp.Daily.WindGustsMax, i),
			WeatherCode:   atInt(resp.Daily.WeatherCode, i),
			FreezingLevel: riskrules.FreezingLevel(tempMax),
			AvalancheRisk: riskrules.AvalancheBucket(snowfall, wind, tempMax),
			Hours:         hoursForDay(resp, date),
		}
		f.Daily = append(f.Daily, day)
	}
	return f
}

// hoursForDay picks every third hourly sample belonging to the given date.
func hoursForDay(resp upstream.OpenMeteoResponse, date string) []models.ForecastHour {
	hours := make([]models.ForecastHour, 0, 8)
	for i, ts := range resp.Hourly.Time {
		if !strings.HasPrefix(ts, date) || i%3 != 0 {
			continue
		}
		hours = append(hours, models.ForecastHour{
			Time:          ts,
			Temperature:   at(resp.Hourly.Temperature, i),
			Snowfall:      at(resp.Hourly.Snowfall, i),
			Precipitation: at(resp.Hourly.Precipitation, i),
			WindSpeed:     at(resp.Hourly.WindSpeed, i),
			WeatherCode:   atInt(resp.Hourly.WeatherCode, i),
		})
	}
	return hours
}

func at(s []float64, i int) float64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func atInt(s []int, i int) int {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}
