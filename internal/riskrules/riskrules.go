package riskrules

import (
	"time"

	"github.com/ebrossard/meteo-vanoise/internal/models"
)

// DefaultRisk is the level assumed when no upstream source yields a usable
// risk figure. Level 3 ("considerable") is the most common winter rating in
// the northern Alps and the conservative middle of the scale.
const DefaultRisk = 3

// Clamp bounds a risk level to the European 1-5 danger scale.
func Clamp(level int) int {
	if level < 1 {
		return 1
	}
	if level > 5 {
		return 5
	}
	return level
}

// normalize maps out-of-range input to DefaultRisk so every rule function is
// total. In-range input passes through unchanged.
func normalize(level int) int {
	if level < 1 || level > 5 {
		return DefaultRisk
	}
	return level
}

// Description returns the short danger-scale label for a risk level.
func Description(level int) string {
	switch normalize(level) {
	case 1:
		return "Low danger. Generally stable snowpack, triggering possible only with very high additional loads on isolated very steep slopes."
	case 2:
		return "Moderate danger. Snowpack only moderately well bonded on some steep slopes, triggering possible mainly with high additional loads."
	case 4:
		return "High danger. Snowpack poorly bonded on most steep slopes, triggering likely even with low additional loads; numerous natural avalanches expected."
	case 5:
		return "Very high danger. Widespread unstable snowpack, numerous large natural avalanches expected, including on moderately steep terrain."
	default:
		return "Considerable danger. Snowpack moderately to poorly bonded on many steep slopes, triggering possible even with low additional loads."
	}
}

// Summary returns the longer bulletin-level narrative for a risk level.
func Summary(level int) string {
	switch normalize(level) {
	case 1:
		return "Conditions are generally favourable. Avalanche activity is limited to small sluffs in extreme terrain. Standard caution on very steep slopes above 2500m."
	case 2:
		return "Mostly favourable conditions with localised instabilities. Wind-loaded slopes near ridgelines require careful route selection, particularly on shaded aspects above 2200m."
	case 4:
		return "Critical avalanche situation. Fresh and wind-drifted snow rest on a weak old snowpack. Remote triggering is possible and natural avalanches may reach valley-bottom paths. Travel in avalanche terrain is not recommended."
	case 5:
		return "Exceptional avalanche situation. Very large natural avalanches are expected and may threaten exposed infrastructure. Stay out of avalanche terrain entirely and heed local closures."
	default:
		return "Considerable avalanche danger. Wind slabs formed over the last days are sensitive to the weight of a single skier, mainly on north through east aspects above 2200m. Careful evaluation of individual slopes is essential."
	}
}

// Problems returns the ordered default avalanche-problem list for a risk
// level. Used when the structured source lists no explicit problem tokens
// and for every synthesized bulletin.
func Problems(level int) []models.AvalancheProblem {
	l := normalize(level)
	var problems []models.AvalancheProblem

	if l >= 2 {
		problems = append(problems, models.AvalancheProblem{
			Type:         "Wind Slab",
			Severity:     severityLabel(l),
			Distribution: "Lee slopes near ridgelines, N-E aspects",
			Sensitivity:  sensitivityLabel(l),
			Icon:         "🌬️",
		})
	}
	if l >= 3 {
		problems = append(problems, models.AvalancheProblem{
			Type:         "Persistent Weak Layers",
			Severity:     severityLabel(l),
			Distribution: "Shaded slopes above 2200m",
			Sensitivity:  "Triggerable by a single skier",
			Icon:         "🧊",
		})
	}
	if l >= 2 {
		problems = append(problems, models.AvalancheProblem{
			Type:         "Wet Snow",
			Severity:     severityLabel(l - 1),
			Distribution: "Sunny aspects below 2400m during afternoon warming",
			Sensitivity:  "Natural releases during warm spells",
			Icon:         "💧",
		})
	}

	if len(problems) == 0 {
		problems = append(problems, models.AvalancheProblem{
			Type:         "Generally Stable",
			Severity:     "Low",
			Distribution: "Isolated extreme terrain only",
			Sensitivity:  "Very high additional loads required",
			Icon:         "✅",
		})
	}
	return problems
}

func severityLabel(level int) string {
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

func sensitivityLabel(level int) string {
	switch {
	case level >= 4:
		return "Triggerable by low additional loads"
	case level >= 3:
		return "Triggerable by a single skier"
	default:
		return "Triggerable by high additional loads"
	}
}

// Snowpack returns the snowpack narrative for a risk level.
func Snowpack(level int) models.Snowpack {
	switch l := normalize(level); {
	case l >= 4:
		return models.Snowpack{
			RecentSnow: "40-60cm of fresh snow over the last 48h, heavily wind-transported",
			TotalDepth: "180-260cm at 2500m, well above seasonal average",
			Quality:    "Fresh slabs poorly bonded to a weak, faceted old surface",
		}
	case l >= 3:
		return models.Snowpack{
			RecentSnow: "15-30cm of recent snow, drifted by moderate northwest wind",
			TotalDepth: "120-200cm at 2500m, near seasonal average",
			Quality:    "Recent slabs resting on buried surface hoar in places, bonding slowly",
		}
	case l >= 2:
		return models.Snowpack{
			RecentSnow: "A few centimetres of recent snow, locally drifted near ridges",
			TotalDepth: "100-160cm at 2500m",
			Quality:    "Generally well settled; isolated old wind slabs on shaded slopes",
		}
	default:
		return models.Snowpack{
			RecentSnow: "No significant snowfall over the last week",
			TotalDepth: "80-140cm at 2500m",
			Quality:    "Well consolidated spring-type snowpack with good refreeze overnight",
		}
	}
}

// Weather returns the mountain weather narrative for a risk level.
func Weather(level int) models.WeatherSummary {
	switch l := normalize(level); {
	case l >= 4:
		return models.WeatherSummary{
			Forecast:    "Heavy snowfall continuing, poor visibility above 2000m",
			Temperature: "-12°C at 2500m, -6°C at 2000m",
			Wind:        "Strong northwest wind 60-80km/h at ridgelines",
		}
	case l >= 3:
		return models.WeatherSummary{
			Forecast:    "Overcast with snow showers, clearing in the evening",
			Temperature: "-8°C at 2500m, -3°C at 2000m",
			Wind:        "Moderate northwest wind 30-50km/h, stronger on exposed ridges",
		}
	case l >= 2:
		return models.WeatherSummary{
			Forecast:    "Partly cloudy, isolated flurries on the peaks",
			Temperature: "-5°C at 2500m, 0°C at 2000m",
			Wind:        "Light to moderate west wind 15-30km/h",
		}
	default:
		return models.WeatherSummary{
			Forecast:    "Sunny and dry, excellent visibility",
			Temperature: "-2°C at 2500m, +4°C at 2000m",
			Wind:        "Light variable wind below 15km/h",
		}
	}
}

// Tendency returns the trend narrative for a risk level.
func Tendency(level int) string {
	switch l := normalize(level); {
	case l >= 4:
		return "Danger remains critical while snowfall and wind continue; slow improvement expected once the storm passes."
	case l >= 3:
		return "Gradual stabilisation over the coming days as wind slabs settle, though persistent weak layers will remain reactive."
	case l >= 2:
		return "Slight improvement expected with stable weather; afternoon wet-snow activity on sunny slopes."
	default:
		return "Stable conditions persisting; typical spring cycle with overnight refreeze and afternoon softening."
	}
}

// ElevationBands builds the three fixed bands from the high- and low-altitude
// zone risks. The mid band derives as max(high-1, low) so risk never
// increases with decreasing elevation; every band is clamped to [1,5].
func ElevationBands(highRisk, lowRisk int) []models.ElevationBand {
	high := Clamp(highRisk)
	low := Clamp(lowRisk)
	if low > high {
		low = high
	}
	mid := Clamp(max(high-1, low))

	return []models.ElevationBand{
		{
			Elevation:   "> 2500m",
			Risk:        high,
			Aspects:     []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"},
			Description: Description(high),
		},
		{
			Elevation:   "2000-2500m",
			Risk:        mid,
			Aspects:     []string{"N", "NE", "E", "W", "NW"},
			Description: Description(mid),
		},
		{
			Elevation:   "< 2000m",
			Risk:        low,
			Aspects:     []string{"N", "NE", "E"},
			Description: Description(low),
		},
	}
}

// Synthesize builds a complete Bulletin from a single scalar risk level.
// Everything except the scalar is rule-derived. Used by the heuristic tier
// (which only scrapes the scalar) and by the fallback tier.
func Synthesize(massif string, level int, source, sourceURL, note string, now time.Time) models.Bulletin {
	l := normalize(level)
	return models.Bulletin{
		Massif:         massif,
		GeneratedAt:    now,
		ValidUntil:     now.Add(24 * time.Hour).Format(time.RFC3339),
		OverallRisk:    l,
		Summary:        Summary(l),
		ElevationBands: ElevationBands(l, Clamp(l-1)),
		Problems:       Problems(l),
		Snowpack:       Snowpack(l),
		Weather:        Weather(l),
		Tendency:       Tendency(l),
		SourceURL:      sourceURL,
		DataSource:     source,
		Note:           note,
	}
}
