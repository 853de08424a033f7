package validation

import (
	"errors"
	"strconv"
	"strings"
)

// MaxForecastDays is the upstream limit on forecast length; larger requests
// are clamped, not rejected.
const MaxForecastDays = 16

// DefaultForecastDays is used when the days parameter is absent.
const DefaultForecastDays = 7

// ErrInvalidCoordinate is returned for malformed or out-of-range lat/lon values.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// ErrInvalidDays is returned for a malformed or non-positive days value.
var ErrInvalidDays = errors.New("invalid days value")

// ParseCoordinates parses the lat/lon query parameters, falling back to the
// configured region coordinates when both are absent. A present but
// malformed or out-of-range value is an error suitable for a 400 response.
func ParseCoordinates(latStr, lonStr string, defaultLat, defaultLon float64) (lat, lon float64, err error) {
	latStr = strings.TrimSpace(latStr)
	lonStr = strings.TrimSpace(lonStr)
	if latStr == "" && lonStr == "" {
		return defaultLat, defaultLon, nil
	}

	lat, err = parseCoord(latStr, 90)
	if err != nil {
		return 0, 0, err
	}
	lon, err = parseCoord(lonStr, 180)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func parseCoord(s string, bound float64) (float64, error) {
	if s == "" {
		return 0, ErrInvalidCoordinate
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidCoordinate
	}
	if v < -bound || v > bound {
		return 0, ErrInvalidCoordinate
	}
	return v, nil
}

// ParseDays parses the days query parameter. Absent means the default;
// values above MaxForecastDays clamp to the maximum; zero, negative or
// malformed values are errors.
func ParseDays(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultForecastDays, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, ErrInvalidDays
	}
	if n > MaxForecastDays {
		return MaxForecastDays, nil
	}
	return n, nil
}
