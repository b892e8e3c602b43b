package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/podmatch/internal/domain"
)

// CacheRepo reads the three denormalized podcast snapshot tables.
type CacheRepo struct{ db *sql.DB }

// NewCacheRepo creates a Postgres-backed cache store.
func NewCacheRepo(db *sql.DB) *CacheRepo { return &CacheRepo{db: db} }

type cacheTable struct {
	name        string
	ownerColumn string
	timeColumn  string
	source      domain.CacheSource
	// demographics is only stored on client dashboards.
	demographics bool
}

var (
	clientDashboardTable = cacheTable{
		name: "client_dashboard_podcasts", ownerColumn: "client_id", timeColumn: "cached_at",
		source: domain.SourceClientDashboard, demographics: true,
	}
	prospectDashboardTable = cacheTable{
		name: "prospect_dashboard_podcasts", ownerColumn: "prospect_id", timeColumn: "cached_at",
		source: domain.SourceProspectDashboard,
	}
	bookingTable = cacheTable{
		name: "bookings", ownerColumn: "id", timeColumn: "updated_at",
		source: domain.SourceBooking,
	}
)

// ClientDashboard returns client dashboard snapshots for ids, newest first.
func (r *CacheRepo) ClientDashboard(ctx context.Context, ids []string) ([]domain.CacheEntry, error) {
	return r.query(ctx, clientDashboardTable, ids)
}

// ProspectDashboard returns prospect dashboard snapshots for ids, newest first.
func (r *CacheRepo) ProspectDashboard(ctx context.Context, ids []string) ([]domain.CacheEntry, error) {
	return r.query(ctx, prospectDashboardTable, ids)
}

// Bookings returns booking snapshots for ids, newest first.
func (r *CacheRepo) Bookings(ctx context.Context, ids []string) ([]domain.CacheEntry, error) {
	return r.query(ctx, bookingTable, ids)
}

func (r *CacheRepo) query(ctx context.Context, t cacheTable, ids []string) ([]domain.CacheEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	demo := "NULL::jsonb"
	if t.demographics {
		demo = "demographics"
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT podcast_id, COALESCE(podcast_name,''), COALESCE(podcast_description,''),
		       COALESCE(audience_size,0), COALESCE(categories,'{}'), COALESCE(rating,0),
		       COALESCE(episode_count,0), COALESCE(contact_email,''),
		       %s::text, %s, %s
		FROM %s
		WHERE podcast_id = ANY($1)
		ORDER BY %s DESC
	`, t.ownerColumn, t.timeColumn, demo, t.name, t.timeColumn), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []domain.CacheEntry
	for rows.Next() {
		e := domain.CacheEntry{Source: t.source}
		var demographics []byte
		if err := rows.Scan(
			&e.Podcast.ExternalID, &e.Podcast.Name, &e.Podcast.Description,
			&e.Podcast.AudienceSize, pq.Array(&e.Podcast.Categories), &e.Podcast.Rating,
			&e.Podcast.EpisodeCount, &e.Podcast.ContactEmail,
			&e.OwnerID, &e.CachedAt, &demographics,
		); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		e.Podcast.ID = e.Podcast.ExternalID
		if len(demographics) > 0 {
			e.Demographics = json.RawMessage(demographics)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
