package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/podmatch/internal/domain"
)

// PodcastRepo stores the podcast catalog and runs similarity search.
type PodcastRepo struct{ db *sql.DB }

// NewPodcastRepo creates a Postgres-backed podcast repository.
func NewPodcastRepo(db *sql.DB) *PodcastRepo { return &PodcastRepo{db: db} }

const podcastColumns = `id, external_id, name, COALESCE(description,''), COALESCE(audience_size,0),
	       COALESCE(categories,'{}'), COALESCE(rating,0), COALESCE(episode_count,0),
	       COALESCE(contact_email,''), COALESCE(rss_url,''), COALESCE(website_url,''),
	       last_published_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPodcast(s rowScanner, extra ...any) (*domain.Podcast, error) {
	p := &domain.Podcast{}
	var last sql.NullTime
	dest := []any{
		&p.ID, &p.ExternalID, &p.Name, &p.Description, &p.AudienceSize,
		pq.Array(&p.Categories), &p.Rating, &p.EpisodeCount,
		&p.ContactEmail, &p.RSSURL, &p.WebsiteURL,
		&last, &p.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		p.LastPublishedAt = &t
	}
	return p, nil
}

// SearchSimilar calls the match_podcasts stored procedure. Results come
// back ordered by descending similarity.
func (r *PodcastRepo) SearchSimilar(ctx context.Context, vec []float32, threshold float64, limit int) ([]domain.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+podcastColumns+`, similarity
		FROM match_podcasts($1::vector, $2, $3)
		ORDER BY similarity DESC
	`, vectorLiteral(vec), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("match podcasts: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var sim float64
		p, err := scanPodcast(rows, &sim)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, domain.Candidate{Podcast: *p, Similarity: sim})
	}
	return out, rows.Err()
}

// Get returns a podcast by its catalog id.
func (r *PodcastRepo) Get(ctx context.Context, id string) (*domain.Podcast, error) {
	p, err := scanPodcast(r.db.QueryRowContext(ctx, `
		SELECT `+podcastColumns+` FROM podcasts WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get podcast: %w", err)
	}
	return p, nil
}

// GetMany returns the podcasts whose id or external id is in ids. Missing
// ids are silently absent from the result.
func (r *PodcastRepo) GetMany(ctx context.Context, ids []string) ([]domain.Podcast, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+podcastColumns+`
		FROM podcasts
		WHERE id::text = ANY($1) OR external_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get podcasts: %w", err)
	}
	defer rows.Close()

	var out []domain.Podcast
	for rows.Next() {
		p, err := scanPodcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan podcast: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Upsert inserts or updates a podcast keyed by external id. The embedding
// is only overwritten when one is supplied.
func (r *PodcastRepo) Upsert(ctx context.Context, p *domain.Podcast) error {
	var emb any
	if len(p.Embedding) > 0 {
		emb = vectorLiteral(p.Embedding)
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO podcasts (external_id, name, description, audience_size, categories,
		                      rating, episode_count, contact_email, rss_url, website_url,
		                      last_published_at, embedding, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''),NULLIF($10,''),$11,$12::vector,NOW())
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			audience_size = EXCLUDED.audience_size,
			categories = EXCLUDED.categories,
			rating = EXCLUDED.rating,
			episode_count = EXCLUDED.episode_count,
			contact_email = COALESCE(EXCLUDED.contact_email, podcasts.contact_email),
			rss_url = COALESCE(EXCLUDED.rss_url, podcasts.rss_url),
			website_url = COALESCE(EXCLUDED.website_url, podcasts.website_url),
			last_published_at = COALESCE(EXCLUDED.last_published_at, podcasts.last_published_at),
			embedding = COALESCE(EXCLUDED.embedding, podcasts.embedding),
			updated_at = NOW()
		RETURNING id, updated_at
	`, p.ExternalID, p.Name, p.Description, p.AudienceSize, pq.Array(p.Categories),
		p.Rating, p.EpisodeCount, p.ContactEmail, p.RSSURL, p.WebsiteURL,
		p.LastPublishedAt, emb,
	).Scan(&p.ID, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert podcast: %w", err)
	}
	return nil
}

// ListForRefresh returns podcasts with an RSS feed whose feed stats were
// last checked before olderThan (or never), oldest first.
func (r *PodcastRepo) ListForRefresh(ctx context.Context, limit int, olderThan time.Time) ([]domain.Podcast, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+podcastColumns+`
		FROM podcasts
		WHERE rss_url IS NOT NULL AND rss_url <> ''
		  AND (feed_checked_at IS NULL OR feed_checked_at < $1)
		ORDER BY feed_checked_at NULLS FIRST
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list podcasts for refresh: %w", err)
	}
	defer rows.Close()

	var out []domain.Podcast
	for rows.Next() {
		p, err := scanPodcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan podcast: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// FeedStats is what a feed refresh learned about a podcast.
type FeedStats struct {
	EpisodeCount    int
	LastPublishedAt *time.Time
	ContactEmail    string
}

// UpdateFeedStats records a feed refresh. An empty contact email keeps the
// existing one.
func (r *PodcastRepo) UpdateFeedStats(ctx context.Context, id string, s FeedStats) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE podcasts SET
			episode_count = $2,
			last_published_at = COALESCE($3, last_published_at),
			contact_email = COALESCE(NULLIF($4,''), contact_email),
			feed_checked_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`, id, s.EpisodeCount, s.LastPublishedAt, s.ContactEmail)
	if err != nil {
		return fmt.Errorf("update feed stats: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
