package podcastcache

import (
	"context"

	"github.com/ignite/podmatch/internal/domain"
)

// Store reads the three snapshot tables. Each method returns the entries
// whose podcast id is in ids, newest first; several entries per id are
// allowed.
type Store interface {
	ClientDashboard(ctx context.Context, ids []string) ([]domain.CacheEntry, error)
	ProspectDashboard(ctx context.Context, ids []string) ([]domain.CacheEntry, error)
	Bookings(ctx context.Context, ids []string) ([]domain.CacheEntry, error)
}

// Provider fetches a podcast from the upstream directory on a cache miss.
type Provider interface {
	GetPodcast(ctx context.Context, id string) (*domain.Podcast, error)
}

// Catalog records podcasts first seen through the provider so later
// matching runs can find them.
type Catalog interface {
	Upsert(ctx context.Context, p *domain.Podcast) error
}
