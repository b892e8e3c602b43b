package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/ignite/podmatch/internal/domain"
)

type cacheRow struct {
	PodcastID          string          `json:"podcast_id"`
	PodcastName        *string         `json:"podcast_name"`
	PodcastDescription *string         `json:"podcast_description"`
	AudienceSize       *int            `json:"audience_size"`
	Categories         []string        `json:"categories"`
	Rating             *float64        `json:"rating"`
	EpisodeCount       *int            `json:"episode_count"`
	ContactEmail       *string         `json:"contact_email"`
	ClientID           string          `json:"client_id"`
	ProspectID         string          `json:"prospect_id"`
	ID                 string          `json:"id"`
	CachedAt           *time.Time      `json:"cached_at"`
	UpdatedAt          *time.Time      `json:"updated_at"`
	Demographics       json.RawMessage `json:"demographics"`
}

const cacheBaseSelect = "podcast_id,podcast_name,podcast_description,audience_size,categories,rating,episode_count,contact_email"

// ClientDashboard returns client dashboard snapshots for ids, newest first.
func (r *Repo) ClientDashboard(ctx context.Context, ids []string) ([]domain.CacheEntry, error) {
	return r.cacheQuery(ctx, "client_dashboard_podcasts", cacheBaseSelect+",client_id,cached_at,demographics", "cached_at", domain.SourceClientDashboard, ids)
}

// ProspectDashboard returns prospect dashboard snapshots for ids, newest first.
func (r *Repo) ProspectDashboard(ctx context.Context, ids []string) ([]domain.CacheEntry, error) {
	return r.cacheQuery(ctx, "prospect_dashboard_podcasts", cacheBaseSelect+",prospect_id,cached_at", "cached_at", domain.SourceProspectDashboard, ids)
}

// Bookings returns booking snapshots for ids, newest first.
func (r *Repo) Bookings(ctx context.Context, ids []string) ([]domain.CacheEntry, error) {
	return r.cacheQuery(ctx, "bookings", cacheBaseSelect+",id,updated_at", "updated_at", domain.SourceBooking, ids)
}

func (r *Repo) cacheQuery(ctx context.Context, table, columns, orderBy string, src domain.CacheSource, ids []string) ([]domain.CacheEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []cacheRow
	if _, err := r.client.From(table).
		Select(columns, "", false).
		In("podcast_id", ids).
		Order(orderBy, &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}

	out := make([]domain.CacheEntry, 0, len(rows))
	for _, row := range rows {
		e := domain.CacheEntry{
			Podcast: domain.Podcast{
				ID:           row.PodcastID,
				ExternalID:   row.PodcastID,
				Name:         deref(row.PodcastName),
				Description:  deref(row.PodcastDescription),
				AudienceSize: deref(row.AudienceSize),
				Categories:   row.Categories,
				Rating:       deref(row.Rating),
				EpisodeCount: deref(row.EpisodeCount),
				ContactEmail: deref(row.ContactEmail),
			},
			Source: src,
		}
		switch src {
		case domain.SourceClientDashboard:
			e.OwnerID = row.ClientID
			e.CachedAt = deref(row.CachedAt)
			if len(row.Demographics) > 0 && string(row.Demographics) != "null" {
				e.Demographics = row.Demographics
			}
		case domain.SourceProspectDashboard:
			e.OwnerID = row.ProspectID
			e.CachedAt = deref(row.CachedAt)
		default:
			e.OwnerID = row.ID
			e.CachedAt = deref(row.UpdatedAt)
		}
		out = append(out, e)
	}
	return out, nil
}
