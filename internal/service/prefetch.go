package service

import "context"

// Prefetcher implements cache.ResourceFetcher over the two pipelines whose
// fallback tiers make prefetching safe to run unattended.
type Prefetcher struct {
	bulletins *BulletinService
	warnings  *WarningsService
}

// NewPrefetcher creates a Prefetcher for cache warming.
func NewPrefetcher(bulletins *BulletinService, warnings *WarningsService) *Prefetcher {
	return &Prefetcher{bulletins: bulletins, warnings: warnings}
}

// WarmResources runs the bulletin and warnings pipelines once, populating
// their cache slots.
func (p *Prefetcher) WarmResources(ctx context.Context) {
	p.bulletins.GetBulletin(ctx)
	p.warnings.GetWarnings(ctx)
}
