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
	"github.com/ebrossard/meteo-vanoise/internal/riskrules"
	"github.com/ebrossard/meteo-vanoise/internal/traffic"
)

// BulletinSource is the upstream surface the bulletin pipeline needs:
// the structured BRA document and the unstructured massif page.
type BulletinSource interface {
	FetchBulletinXML(ctx context.Context) ([]byte, error)
	FetchMassifPage(ctx context.Context) ([]byte, error)
	BulletinSourceURL() string
}

// BulletinService runs the acquisition pipeline for the avalanche bulletin:
// freshness cache, then structured source, then heuristic scraping, then a
// synthesized fallback. Every tier produces a well-formed bulletin; no real
// data is an expected steady state, not an exception.
type BulletinService struct {
	source    BulletinSource
	cache     cache.Cache
	massif    string
	coalescer *coalescer[models.Bulletin]
	clock     clockwork.Clock
}

// NewBulletinService creates the bulletin pipeline. coalesceTimeout 0
// disables coalescing of concurrent cache misses. A nil clock uses real time.
func NewBulletinService(source BulletinSource, c cache.Cache, massif string, coalesceEnabled bool, coalesceTimeout time.Duration, clock clockwork.Clock) *BulletinService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var co *coalescer[models.Bulletin]
	if coalesceEnabled && coalesceTimeout > 0 {
		co = newCoalescer[models.Bulletin](coalesceTimeout)
	}
	return &BulletinService{
		source:    source,
		cache:     c,
		massif:    massif,
		coalescer: co,
		clock:     clock,
	}
}

// loggerFromContext extracts the request-scoped zap.Logger if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetBulletin returns the current avalanche bulletin. It never fails: any
// upstream or cache problem degrades to a synthesized bulletin whose
// dataSource field marks the provenance tier.
func (s *BulletinService) GetBulletin(ctx context.Context) models.Bulletin {
	logger := loggerFromContext(ctx)

	if entry, ok := s.cachedBulletin(ctx); ok {
		observability.CacheHitsTotal.WithLabelValues(cache.KeyBulletin).Inc()
		if logger != nil {
			logger.Debug("bulletin cache hit", zap.Time("fetchedAt", entry.GeneratedAt))
		}
		return entry
	}

	if s.coalescer != nil {
		b, coalesced, err := s.coalescer.GetOrDo(ctx, cache.KeyBulletin, func() (models.Bulletin, error) {
			return s.acquire(ctx), nil
		})
		if coalesced {
			observability.CoalescingHitsTotal.WithLabelValues(cache.KeyBulletin).Inc()
		}
		if err != nil {
			// Waiter timed out before the leader finished. Degrade rather
			// than error: the endpoint contract is always HTTP 200.
			if logger != nil {
				logger.Warn("coalesced bulletin wait failed", zap.Error(err))
			}
			return s.fallbackBulletin(err.Error())
		}
		return b
	}
	return s.acquire(ctx)
}

// cachedBulletin returns the cached bulletin when the slot is fresh and
// decodes cleanly. A corrupt payload is treated as a miss.
func (s *BulletinService) cachedBulletin(ctx context.Context) (models.Bulletin, bool) {
	entry, ok, err := s.cache.Get(ctx, cache.KeyBulletin)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		return models.Bulletin{}, false
	}
	if !ok {
		return models.Bulletin{}, false
	}
	var b models.Bulletin
	if err := json.Unmarshal(entry.Payload, &b); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("decode").Inc()
		return models.Bulletin{}, false
	}
	return b, true
}

// acquire runs the ordered attempt sequence: structured source, heuristic
// source, synthesized fallback. Whatever tier succeeds is stored so repeated
// failures do not retry within the TTL window.
func (s *BulletinService) acquire(ctx context.Context) models.Bulletin {
	logger := loggerFromContext(ctx)
	now := s.clock.Now()

	doc, err := s.source.FetchBulletinXML(ctx)
	if err == nil {
		b, perr := parser.ParseStructured(doc, s.massif, s.source.BulletinSourceURL(), now)
		if perr == nil {
			s.store(ctx, b)
			s.recordOutcome(b.DataSource)
			return b
		}
		err = perr
	}
	if logger != nil {
		logger.Warn("structured bulletin source failed, trying massif page", zap.Error(err))
	}

	page, perr := s.source.FetchMassifPage(ctx)
	if perr == nil {
		b := parser.ParseHeuristic(page, s.massif, s.source.BulletinSourceURL(), now)
		s.store(ctx, b)
		s.recordOutcome(b.DataSource)
		return b
	}
	if logger != nil {
		logger.Warn("massif page fetch failed, synthesizing fallback bulletin", zap.Error(perr))
	}

	b := s.fallbackBulletin(err.Error() + "; " + perr.Error())
	s.store(ctx, b)
	s.recordOutcome(b.DataSource)
	return b
}

// fallbackBulletin synthesizes the terminal-tier bulletin from the default
// risk level. This tier has no external dependency and cannot fail.
func (s *BulletinService) fallbackBulletin(diagnostic string) models.Bulletin {
	b := riskrules.Synthesize(s.massif, riskrules.DefaultRisk, models.SourceFallback,
		s.source.BulletinSourceURL(),
		"Live avalanche data is unavailable; this bulletin is estimated from seasonal defaults.",
		s.clock.Now())
	b.Error = diagnostic
	return b
}

func (s *BulletinService) store(ctx context.Context, b models.Bulletin) {
	payload, err := json.Marshal(b)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("encode").Inc()
		return
	}
	if err := s.cache.Set(ctx, cache.KeyBulletin, payload); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
	}
}

func (s *BulletinService) recordOutcome(provenance string) {
	observability.AcquisitionResultsTotal.WithLabelValues(cache.KeyBulletin, provenance).Inc()
	traffic.RecordAcquisition(provenance == models.SourceFallback)
}
