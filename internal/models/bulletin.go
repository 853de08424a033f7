package models

import "time"

// Data provenance labels. Structured means the machine-readable BRA document
// was parsed; heuristic means the risk level was scraped from the public
// massif page; fallback means no upstream source was reachable and the
// bulletin was synthesized from the default risk level.
const (
	SourceStructured = "structured"
	SourceHeuristic  = "heuristic"
	SourceFallback   = "fallback"
)

// ElevationBand is one of the three fixed altitude strata of a bulletin.
type ElevationBand struct {
	Elevation   string   `json:"elevation"`
	Risk        int      `json:"risk"`
	Aspects     []string `json:"aspects"`
	Description string   `json:"description"`
}

// AvalancheProblem describes one active avalanche problem type.
type AvalancheProblem struct {
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	Distribution string `json:"distribution"`
	Sensitivity  string `json:"sensitivity"`
	Icon         string `json:"icon,omitempty"`
}

// Snowpack holds the snowpack narrative of a bulletin.
type Snowpack struct {
	RecentSnow string `json:"recentSnow"`
	TotalDepth string `json:"totalDepth"`
	Quality    string `json:"quality"`
}

// WeatherSummary holds the mountain weather narrative of a bulletin.
type WeatherSummary struct {
	Forecast    string `json:"forecast"`
	Temperature string `json:"temperature"`
	Wind        string `json:"wind"`
}

// Bulletin is the avalanche resource payload. ElevationBands always holds
// exactly 3 bands ordered high to low altitude, with non-increasing risk.
type Bulletin struct {
	Massif         string             `json:"massif"`
	GeneratedAt    time.Time          `json:"generatedAt"`
	ValidUntil     string             `json:"validUntil"`
	OverallRisk    int                `json:"overallRisk"`
	Summary        string             `json:"summary"`
	ElevationBands []ElevationBand    `json:"elevationBands"`
	Problems       []AvalancheProblem `json:"problems"`
	Snowpack       Snowpack           `json:"snowpack"`
	Weather        WeatherSummary     `json:"weather"`
	Tendency       string             `json:"tendency"`
	SourceURL      string             `json:"sourceUrl"`
	DataSource     string             `json:"dataSource"`
	Note           string             `json:"note,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Alert is one active weather warning for the département.
type Alert struct {
	Hazard      string `json:"hazard"`
	Level       string `json:"level"`
	Severity    int    `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Warnings is the regional weather-warnings payload. Alerts is empty (never
// nil in JSON) when no warning is active or no source was reachable.
type Warnings struct {
	Department  string    `json:"department"`
	GeneratedAt time.Time `json:"generatedAt"`
	Alerts      []Alert   `json:"alerts"`
	SourceURL   string    `json:"sourceUrl"`
}

// ForecastHour is a 3-hourly sample within a forecast day.
type ForecastHour struct {
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature"`
	Snowfall      float64 `json:"snowfall"`
	Precipitation float64 `json:"precipitation"`
	WindSpeed     float64 `json:"windSpeed"`
	WeatherCode   int     `json:"weatherCode"`
}

// ForecastDay is one day of the extended forecast with derived mountain
// fields (freezing level, avalanche-risk bucket).
type ForecastDay struct {
	Date          string         `json:"date"`
	TempMin       float64        `json:"tempMin"`
	TempMax       float64        `json:"tempMax"`
	Snowfall      float64        `json:"snowfall"`
	Precipitation float64        `json:"precipitation"`
	WindSpeed     float64        `json:"windSpeed"`
	WindGusts     float64        `json:"windGusts"`
	WeatherCode   int            `json:"weatherCode"`
	FreezingLevel int            `json:"freezingLevel"`
	AvalancheRisk string         `json:"avalancheRisk"`
	Hours         []ForecastHour `json:"hours"`
}

// Forecast is the extended multi-day forecast payload.
type Forecast struct {
	Latitude    float64       `json:"latitude"`
	Longitude   float64       `json:"longitude"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Days        int           `json:"days"`
	Daily       []ForecastDay `json:"daily"`
}
