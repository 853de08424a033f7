package riskrules

// Avalanche-risk buckets derived for forecast days. These are coarse
// day-level estimates from raw weather fields, not the bulletin danger scale.
const (
	BucketLow          = "low"
	BucketModerate     = "moderate"
	BucketConsiderable = "considerable"
	BucketHigh         = "high"
)

// FreezingLevel estimates the freezing altitude in metres from the daily
// maximum temperature at ~2000m using a fixed linear model (base 1500m,
// 150m per degree). Never below zero.
func FreezingLevel(tempMax float64) int {
	level := 1500 + int(150*tempMax)
	if level < 0 {
		return 0
	}
	return level
}

// AvalancheBucket derives a day-level risk bucket from daily snowfall (cm),
// maximum wind speed (km/h) and maximum temperature (°C). Snowfall sets the
// base bucket; strong wind escalates one step (drifting), and warm daytime
// temperatures with fresh snow escalate one step (wet-snow instability).
func AvalancheBucket(snowfallCm, windKmh, tempMax float64) string {
	bucket := 0
	switch {
	case snowfallCm > 30:
		bucket = 3
	case snowfallCm > 20:
		bucket = 2
	case snowfallCm > 10:
		bucket = 1
	}

	if windKmh > 40 {
		bucket++
	}
	if tempMax > 2 && snowfallCm > 0 {
		bucket++
	}
	if bucket > 3 {
		bucket = 3
	}

	switch bucket {
	case 3:
		return BucketHigh
	case 2:
		return BucketConsiderable
	case 1:
		return BucketModerate
	default:
		return BucketLow
	}
}
