package parser

import (
	"strings"
	"time"

	"github.com/ebrossard/meteo-vanoise/internal/models"
)

// vigilanceColours maps Météo-France vigilance colour words to alert levels,
// ordered highest severity first.
var vigilanceColours = []struct {
	word     string
	level    string
	severity int
}{
	{"rouge", "Red", 4},
	{"orange", "Orange", 3},
	{"jaune", "Yellow", 2},
}

// vigilanceHazards is the fixed hazard vocabulary scanned on the vigilance
// page, keyed by the French page keyword.
var vigilanceHazards = []struct {
	keyword string
	hazard  string
	title   string
}{
	{"avalanche", "Avalanches", "Avalanche warning"},
	{"neige", "Snow-Ice", "Snow and ice warning"},
	{"vent", "Wind", "Strong wind warning"},
	{"pluie", "Rain-Flood", "Heavy rain warning"},
	{"orage", "Thunderstorms", "Thunderstorm warning"},
}

// ParseVigilance scans the département vigilance page for active warnings.
// One alert is produced per hazard keyword found, at the highest colour
// present on the page. A page with no colour above green yields no alerts.
func ParseVigilance(page []byte, department, sourceURL string, now time.Time) models.Warnings {
	text := strings.ToLower(tagRe.ReplaceAllString(string(page), " "))

	warnings := models.Warnings{
		Department:  department,
		GeneratedAt: now,
		Alerts:      []models.Alert{},
		SourceURL:   sourceURL,
	}

	var level string
	var severity int
	for _, c := range vigilanceColours {
		if strings.Contains(text, c.word) {
			level = c.level
			severity = c.severity
			break
		}
	}
	if level == "" {
		return warnings
	}

	for _, h := range vigilanceHazards {
		if !strings.Contains(text, h.keyword) {
			continue
		}
		warnings.Alerts = append(warnings.Alerts, models.Alert{
			Hazard:      h.hazard,
			Level:       level,
			Severity:    severity,
			Title:       h.title,
			Description: h.title + " in effect for " + department + " (vigilance " + strings.ToLower(level) + ").",
		})
	}
	return warnings
}
