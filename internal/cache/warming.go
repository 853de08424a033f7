package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ebrossard/meteo-vanoise/internal/observability"
)

// ResourceFetcher is implemented by the service layer to run the acquisition
// pipeline for the cacheable resources. Declared here to avoid a circular
// dependency on the service package.
type ResourceFetcher interface {
	WarmResources(ctx context.Context)
}

// Warmer prefetches the bulletin and warnings resources so the first request
// after boot is a cache hit instead of a 10-second upstream round trip.
type Warmer struct {
	fetcher ResourceFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher ResourceFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm runs one prefetch pass. The pipeline absorbs upstream failures, so
// warming never errors; a failed warm simply leaves fallback data cached.
func (w *Warmer) Warm(ctx context.Context) {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming resource cache")
	}
	w.fetcher.WarmResources(ctx)
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Float64("duration_seconds", duration))
	}
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval
// until ctx is done. Run slightly under the cache TTL to keep the slots
// permanently fresh.
func (w *Warmer) WarmPeriodic(ctx context.Context, interval time.Duration) error {
	w.Warm(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Warm(ctx)
		}
	}
}
