package parser

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ebrossard/meteo-vanoise/internal/models"
	"github.com/ebrossard/meteo-vanoise/internal/riskrules"
)

// braDocument mirrors the structure of the Météo-France BRA XML export.
// Only the fields the bulletin needs are mapped; everything else is ignored.
type braDocument struct {
	XMLName      xml.Name `xml:"BULLETINS_NEIGE_AVALANCHE"`
	Massif       string   `xml:"MASSIF,attr"`
	DateValidite string   `xml:"DATEVALIDITE,attr"`
	Cartouche    struct {
		Risque struct {
			// RISQUE1 applies below ALTITUDE, RISQUE2 above it.
			Risque1  string `xml:"RISQUE1,attr"`
			Risque2  string `xml:"RISQUE2,attr"`
			Altitude string `xml:"ALTITUDE,attr"`
		} `xml:"RISQUE"`
		Accidentel string `xml:"ACCIDENTEL"`
	} `xml:"CARTOUCHERISQUE"`
	Stabilite string `xml:"STABILITE"`
}

// problemVocabulary translates BRA problem tokens into bulletin problem
// entries. Severity and sensitivity are filled from the overall risk level.
var problemVocabulary = map[string]struct {
	label string
	icon  string
}{
	"PLAQUES_VENT":          {"Wind Slab", "🌬️"},
	"SOUS_COUCHES_FRAGILES": {"Persistent Weak Layers", "🧊"},
	"NEIGE_FRAICHE":         {"New Snow", "❄️"},
	"NEIGE_HUMIDE":          {"Wet Snow", "💧"},
	"GLISSEMENT":            {"Glide Snow", "⚠️"},
}

// ParseStructured turns a BRA XML document into a Bulletin. The high- and
// low-altitude zone risks default to 3 and 2 when absent. The overall risk
// is max(high, low); the mid band derives as max(high-1, low).
func ParseStructured(doc []byte, massif, sourceURL string, now time.Time) (models.Bulletin, error) {
	var bra braDocument
	if err := xml.Unmarshal(doc, &bra); err != nil {
		return models.Bulletin{}, fmt.Errorf("parse bulletin xml: %w", err)
	}

	high := parseRiskAttr(bra.Cartouche.Risque.Risque2, 3)
	low := parseRiskAttr(bra.Cartouche.Risque.Risque1, 2)
	overall := high
	if low > overall {
		overall = low
	}

	validUntil := strings.TrimSpace(bra.DateValidite)
	if validUntil == "" {
		validUntil = now.Add(24 * time.Hour).Format(time.RFC3339)
	}

	summary := strings.TrimSpace(bra.Stabilite)
	if summary == "" {
		summary = riskrules.Summary(overall)
	}

	return models.Bulletin{
		Massif:         massif,
		GeneratedAt:    now,
		ValidUntil:     validUntil,
		OverallRisk:    overall,
		Summary:        summary,
		ElevationBands: riskrules.ElevationBands(high, low),
		Problems:       parseProblems(bra.Cartouche.Accidentel, overall),
		Snowpack:       riskrules.Snowpack(overall),
		Weather:        riskrules.Weather(overall),
		Tendency:       riskrules.Tendency(overall),
		SourceURL:      sourceURL,
		DataSource:     models.SourceStructured,
	}, nil
}

// parseRiskAttr reads a zone risk attribute, clamped to [1,5], falling back
// to def when the attribute is absent or malformed.
func parseRiskAttr(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return riskrules.Clamp(n)
}

// parseProblems translates the comma-separated ACCIDENTEL token list through
// the fixed vocabulary. Unknown tokens are skipped; an empty or fully
// unknown list falls back to the rule-derived defaults for the risk level.
func parseProblems(tokens string, overall int) []models.AvalancheProblem {
	var problems []models.AvalancheProblem
	for _, token := range strings.Split(tokens, ",") {
		token = strings.ToUpper(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		entry, ok := problemVocabulary[token]
		if !ok {
			continue
		}
		problems = append(problems, models.AvalancheProblem{
			Type:         entry.label,
			Severity:     severityForLevel(overall),
			Distribution: "See elevation bands",
			Sensitivity:  sensitivityForLevel(overall),
			Icon:         entry.icon,
		})
	}
	if len(problems) == 0 {
		return riskrules.Problems(overall)
	}
	return problems
}

func severityForLevel(level int) string {
	switch {
	case level >= 4:
		return "High"
	case level >= 3:
		return "Considerable"
	case level >= 2:
		return "Moderate"
	default:
		return "Low"
	}
}

func sensitivityForLevel(level int) string {
	switch {
	case level >= 4:
		return "Triggerable by low additional loads"
	case level >= 3:
		return "Triggerable by a single skier"
	default:
		return "Triggerable by high additional loads"
	}
}
