package podcastcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/pkg/logger"
	"github.com/ignite/podmatch/internal/podcastdata"
)

type tier struct {
	source domain.CacheSource
	fetch  func(ctx context.Context, ids []string) ([]domain.CacheEntry, error)
}

// Service implements the tiered lookup. It is safe for concurrent use if
// the Store is.
type Service struct {
	store      Store
	provider   Provider
	catalog    Catalog
	staleAfter time.Duration
	now        func() time.Time
}

// NewService creates a lookup service. provider may be nil, in which case
// Resolve behaves like Lookup.
func NewService(store Store, provider Provider) *Service {
	return &Service{store: store, provider: provider, staleAfter: domain.StaleAfter, now: time.Now}
}

// SetStaleAfter overrides the advisory staleness window.
func (s *Service) SetStaleAfter(d time.Duration) {
	if d > 0 {
		s.staleAfter = d
	}
}

// SetCatalog makes Resolve save provider hits. Saving is best-effort.
func (s *Service) SetCatalog(c Catalog) { s.catalog = c }

// tiers returns the tables in descending priority.
func (s *Service) tiers() []tier {
	return []tier{
		{domain.SourceClientDashboard, s.store.ClientDashboard},
		{domain.SourceProspectDashboard, s.store.ProspectDashboard},
		{domain.SourceBooking, s.store.Bookings},
	}
}

// Lookup returns the highest-priority snapshot for id, checking tables in
// order and stopping at the first hit. It returns nil, nil when no table
// has the podcast.
func (s *Service) Lookup(ctx context.Context, id string) (*domain.CacheEntry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: podcast id is required", domain.ErrValidation)
	}
	for _, t := range s.tiers() {
		entries, err := t.fetch(ctx, []string{id})
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", t.source, err)
		}
		for i := range entries {
			if entries[i].Podcast.ExternalID == id {
				e := entries[i]
				return &e, nil
			}
		}
	}
	return nil, nil
}

// LookupBatch resolves many ids at once. Ids absent from every table are
// absent from the map.
func (s *Service) LookupBatch(ctx context.Context, ids []string) (map[string]*domain.CacheEntry, error) {
	ids = uniqueIDs(ids)
	out := make(map[string]*domain.CacheEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	tiers := s.tiers()
	results := make([][]domain.CacheEntry, len(tiers))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tiers {
		g.Go(func() error {
			entries, err := t.fetch(gctx, ids)
			if err != nil {
				return fmt.Errorf("batch lookup %s: %w", t.source, err)
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Lowest priority first so later writes overwrite: bookings, then
	// prospect dashboards, then client dashboards. Within a table the
	// newest entry (first returned) is kept.
	for i := len(tiers) - 1; i >= 0; i-- {
		written := make(map[string]bool)
		for j := range results[i] {
			e := results[i][j]
			id := e.Podcast.ExternalID
			if written[id] {
				continue
			}
			written[id] = true
			out[id] = &e
		}
	}
	return out, nil
}

// Resolve is Lookup with a provider fallback on a miss. The provider result
// is flagged FromProvider. It returns nil, nil when the provider does not
// know the podcast either.
func (s *Service) Resolve(ctx context.Context, id string) (*domain.CacheEntry, error) {
	e, err := s.Lookup(ctx, id)
	if err != nil || e != nil || s.provider == nil {
		return e, err
	}

	p, err := s.provider.GetPodcast(ctx, id)
	if errors.Is(err, podcastdata.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("provider fallback: %w", err)
	}
	logger.Debug("podcast cache miss served by provider", "podcast_id", id)
	if s.catalog != nil {
		saved := *p
		if err := s.catalog.Upsert(ctx, &saved); err != nil {
			logger.Warn("failed to save provider podcast", "podcast_id", id, "error", err)
		}
	}
	p.ID = p.ExternalID
	return &domain.CacheEntry{Podcast: *p, CachedAt: s.now(), FromProvider: true}, nil
}

// IsStale reports whether e is past the advisory staleness window.
func (s *Service) IsStale(e *domain.CacheEntry) bool {
	return e != nil && !e.FromProvider && s.now().Sub(e.CachedAt) > s.staleAfter
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
