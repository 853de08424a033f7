package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ebrossard/meteo-vanoise/internal/cache"
	"github.com/ebrossard/meteo-vanoise/internal/models"
	"github.com/ebrossard/meteo-vanoise/internal/observability"
	"github.com/ebrossard/meteo-vanoise/internal/parser"
	"github.com/ebrossard/meteo-vanoise/internal/traffic"
)

// WarningsSource is the upstream surface the warnings pipeline needs.
type WarningsSource interface {
	FetchVigilancePage(ctx context.Context) ([]byte, error)
	VigilanceSourceURL() string
}

// WarningsService runs the acquisition pipeline for the département weather
// warnings. Vigilance has no machine-readable tier here, so the sequence is
// cache, heuristic page scan, then an empty-alerts fallback.
type WarningsService struct {
	source     WarningsSource
	cache      cache.Cache
	department string
	coalescer  *coalescer[models.Warnings]
	clock      clockwork.Clock
}

// NewWarningsService creates the warnings pipeline. A nil clock uses real time.
func NewWarningsService(source WarningsSource, c cache.Cache, department string, coalesceEnabled bool, coalesceTimeout time.Duration, clock clockwork.Clock) *WarningsService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var co *coalescer[models.Warnings]
	if coalesceEnabled && coalesceTimeout > 0 {
		co = newCoalescer[models.Warnings](coalesceTimeout)
	}
	return &WarningsService{
		source:     source,
		cache:      c,
		department: department,
		coalescer:  co,
		clock:      clock,
	}
}

// GetWarnings returns the current weather warnings. It never fails: total
// upstream failure yields a resource with an empty alerts list.
func (s *WarningsService) GetWarnings(ctx context.Context) models.Warnings {
	if w, ok := s.cachedWarnings(ctx); ok {
		observability.CacheHitsTotal.WithLabelValues(cache.KeyWarnings).Inc()
		return w
	}

	if s.coalescer != nil {
		w, coalesced, err := s.coalescer.GetOrDo(ctx, cache.KeyWarnings, func() (models.Warnings, error) {
			return s.acquire(ctx), nil
		})
		if coalesced {
			observability.CoalescingHitsTotal.WithLabelValues(cache.KeyWarnings).Inc()
		}
		if err != nil {
			return s.emptyWarnings()
		}
		return w
	}
	return s.acquire(ctx)
}

func (s *WarningsService) cachedWarnings(ctx context.Context) (models.Warnings, bool) {
	entry, ok, err := s.cache.Get(ctx, cache.KeyWarnings)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		return models.Warnings{}, false
	}
	if !ok {
		return models.Warnings{}, false
	}
	var w models.Warnings
	if err := json.Unmarshal(entry.Payload, &w); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("decode").Inc()
		return models.Warnings{}, false
	}
	return w, true
}

func (s *WarningsService) acquire(ctx context.Context) models.Warnings {
	logger := loggerFromContext(ctx)

	page, err := s.source.FetchVigilancePage(ctx)
	if err == nil {
		w := parser.ParseVigilance(page, s.department, s.source.VigilanceSourceURL(), s.clock.Now())
		s.store(ctx, w)
		s.recordOutcome(models.SourceHeuristic)
		return w
	}
	if logger != nil {
		logger.Warn("vigilance page fetch failed, returning empty warnings", zap.Error(err))
	}

	w := s.emptyWarnings()
	s.store(ctx, w)
	s.recordOutcome(models.SourceFallback)
	return w
}

// emptyWarnings is the terminal fallback: a well-formed resource with no
// alerts. Degraded quality is visible only through the empty list.
func (s *WarningsService) emptyWarnings() models.Warnings {
	return models.Warnings{
		Department:  s.department,
		GeneratedAt: s.clock.Now(),
		Alerts:      []models.Alert{},
		SourceURL:   s.source.VigilanceSourceURL(),
	}
}

func (s *WarningsService) store(ctx context.Context, w models.Warnings) {
	payload, err := json.Marshal(w)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("encode").Inc()
		return
	}
	if err := s.cache.Set(ctx, cache.KeyWarnings, payload); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
	}
}

func (s *WarningsService) recordOutcome(provenance string) {
	observability.AcquisitionResultsTotal.WithLabelValues(cache.KeyWarnings, provenance).Inc()
	traffic.RecordAcquisition(provenance == models.SourceFallback)
}
