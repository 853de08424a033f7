package riskrules

import "testing"

// TestFreezingLevel verifies the linear freezing-altitude model.
func TestFreezingLevel(t *testing.T) {
	tests := []struct {
		name    string
		tempMax float64
		want    int
	}{
		{name: "zero degrees", tempMax: 0, want: 1500},
		{name: "plus five", tempMax: 5, want: 2250},
		{name: "minus five", tempMax: -5, want: 750},
		{name: "deep cold floors at zero", tempMax: -20, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FreezingLevel(tc.tempMax); got != tc.want {
				t.Errorf("FreezingLevel(%v) = %d, want %d", tc.tempMax, got, tc.want)
			}
		})
	}
}

// TestAvalancheBucket verifies the day-level bucket derivation: snowfall sets
// the base, wind and warm temperatures escalate one step each, capped at high.
func TestAvalancheBucket(t *testing.T) {
	tests := []struct {
		name     string
		snowfall float64
		wind     float64
		tempMax  float64
		want     string
	}{
		{name: "dry calm day", snowfall: 0, wind: 10, tempMax: -5, want: BucketLow},
		{name: "light snow", snowfall: 12, wind: 10, tempMax: -5, want: BucketModerate},
		{name: "heavy snow", snowfall: 25, wind: 10, tempMax: -5, want: BucketConsiderable},
		{name: "very heavy snow", snowfall: 35, wind: 10, tempMax: -5, want: BucketHigh},
		{name: "wind escalates dry day", snowfall: 5, wind: 45, tempMax: -5, want: BucketModerate},
		{name: "wind escalates heavy snow", snowfall: 25, wind: 45, tempMax: -5, want: BucketHigh},
		{name: "warm with fresh snow escalates", snowfall: 15, wind: 10, tempMax: 4, want: BucketConsiderable},
		{name: "warm without snow does not escalate", snowfall: 0, wind: 10, tempMax: 4, want: BucketLow},
		{name: "all escalations cap at high", snowfall: 35, wind: 60, tempMax: 5, want: BucketHigh},
		{name: "boundary 30cm is considerable", snowfall: 30, wind: 0, tempMax: -2, want: BucketConsiderable},
		{name: "boundary 10cm is low", snowfall: 10, wind: 0, tempMax: -2, want: BucketLow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AvalancheBucket(tc.snowfall, tc.wind, tc.tempMax)
			if got != tc.want {
				t.Errorf("AvalancheBucket(%v, %v, %v) = %q, want %q",
					tc.snowfall, tc.wind, tc.tempMax, got, tc.want)
			}
		})
	}
}
