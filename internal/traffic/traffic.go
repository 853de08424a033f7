package traffic

import (
	"sync"
	"time"
)

var defaultTracker Tracker

// RecordAcquisition records the outcome of one acquisition pipeline run.
// fallback is true when the synthesized tier produced the payload.
func RecordAcquisition(fallback bool) {
	defaultTracker.RecordAcquisition(fallback)
}

// FallbackRate returns (fallbackCount, totalCount) within the window.
func FallbackRate(window time.Duration) (fallbacks, total int) {
	return defaultTracker.FallbackRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of acquisition outcomes. The health
// endpoint uses the fallback rate to report degraded data quality: upstream
// failure never surfaces as an HTTP error, so the window is the only
// process-level signal that real data has stopped flowing.
type Tracker struct {
	mu            sync.Mutex
	sourcedTimes  []time.Time
	fallbackTimes []time.Time
}

// RecordAcquisition records one pipeline outcome at the current time.
func (t *Tracker) RecordAcquisition(fallback bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if fallback {
		t.fallbackTimes = append(t.fallbackTimes, now)
	} else {
		t.sourcedTimes = append(t.sourcedTimes, now)
	}
	t.pruneLocked(now)
}

// FallbackRate returns (fallbackCount, totalCount) within the window ending
// at now.
func (t *Tracker) FallbackRate(window time.Duration) (fallbacks, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	fb := countInWindow(t.fallbackTimes, cutoff)
	sourced := countInWindow(t.sourcedTimes, cutoff)
	return fb, fb + sourced
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sourcedTimes = nil
	t.fallbackTimes = nil
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked removes outcomes older than maxAge so the slices stay bounded
// between requests. Must be called with the mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	const maxAge = 24 * time.Hour
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.sourcedTimes)
	prune(&t.fallbackTimes)
}
