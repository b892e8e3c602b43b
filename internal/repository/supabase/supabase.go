// Package supabase implements the read side of the podcast repositories
// over the Supabase REST API, for deployments that only hold the
// service-role key and no direct database password.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
)

// Repo serves similarity search, cache tables and profiles via PostgREST.
// The SDK has no context support, so ctx is only checked before each call.
type Repo struct {
	client *supa.Client
}

// New creates a Supabase client from config.
func New(cfg config.SupabaseConfig) (*Repo, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("%w: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY", config.ErrMissingConfig)
	}
	c, err := supa.NewClient(strings.TrimRight(cfg.URL, "/"), cfg.ServiceRoleKey, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &Repo{client: c}, nil
}

type podcastRow struct {
	ID              string     `json:"id"`
	ExternalID      string     `json:"external_id"`
	Name            string     `json:"name"`
	Description     *string    `json:"description"`
	AudienceSize    *int       `json:"audience_size"`
	Categories      []string   `json:"categories"`
	Rating          *float64   `json:"rating"`
	EpisodeCount    *int       `json:"episode_count"`
	ContactEmail    *string    `json:"contact_email"`
	RSSURL          *string    `json:"rss_url"`
	WebsiteURL      *string    `json:"website_url"`
	LastPublishedAt *time.Time `json:"last_published_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Similarity      float64    `json:"similarity"`
}

func (r podcastRow) podcast() domain.Podcast {
	return domain.Podcast{
		ID:              r.ID,
		ExternalID:      r.ExternalID,
		Name:            r.Name,
		Description:     deref(r.Description),
		AudienceSize:    deref(r.AudienceSize),
		Categories:      r.Categories,
		Rating:          deref(r.Rating),
		EpisodeCount:    deref(r.EpisodeCount),
		ContactEmail:    deref(r.ContactEmail),
		RSSURL:          deref(r.RSSURL),
		WebsiteURL:      deref(r.WebsiteURL),
		LastPublishedAt: r.LastPublishedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

type matchParams struct {
	QueryEmbedding string  `json:"query_embedding"`
	MatchThreshold float64 `json:"match_threshold"`
	MatchCount     int     `json:"match_count"`
}

// SearchSimilar calls the match_podcasts RPC.
func (r *Repo) SearchSimilar(ctx context.Context, vec []float32, threshold float64, limit int) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}

	body := r.client.Rpc("match_podcasts", "", matchParams{
		QueryEmbedding: string(emb),
		MatchThreshold: threshold,
		MatchCount:     limit,
	})
	if body == "" {
		return nil, errors.New("match podcasts: empty rpc response")
	}

	var rows []podcastRow
	if err := json.Unmarshal([]byte(body), &rows); err != nil {
		return nil, fmt.Errorf("match podcasts: %w", rpcError(body, err))
	}

	out := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Candidate{Podcast: row.podcast(), Similarity: row.Similarity})
	}
	return out, nil
}

// rpcError extracts the PostgREST error object that Rpc returns in place of
// a result set on failure.
func rpcError(body string, decodeErr error) error {
	var pe postgrest.ExecuteError
	if json.Unmarshal([]byte(body), &pe) == nil && pe.Message != "" {
		return fmt.Errorf("(%s) %s", pe.Code, pe.Message)
	}
	return decodeErr
}

const podcastSelect = "id,external_id,name,description,audience_size,categories,rating,episode_count,contact_email,rss_url,website_url,last_published_at,updated_at"

// GetMany returns podcasts by catalog id.
func (r *Repo) GetMany(ctx context.Context, ids []string) ([]domain.Podcast, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []podcastRow
	if _, err := r.client.From("podcasts").Select(podcastSelect, "", false).In("id", ids).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("get podcasts: %w", err)
	}
	out := make([]domain.Podcast, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.podcast())
	}
	return out, nil
}

type profileRow struct {
	ID            string  `json:"id"`
	Name          *string `json:"name"`
	Bio           *string `json:"bio"`
	Tagline       *string `json:"tagline"`
	Email         *string `json:"email"`
	SpreadsheetID *string `json:"spreadsheet_id"`
}

// Get loads a client or prospect profile.
func (r *Repo) Get(ctx context.Context, kind domain.ProfileKind, id string) (*domain.Profile, error) {
	var table string
	switch kind {
	case domain.ProfileClient:
		table = "clients"
	case domain.ProfileProspect:
		table = "prospects"
	default:
		return nil, fmt.Errorf("%w: unknown profile kind %q", domain.ErrValidation, kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []profileRow
	if _, err := r.client.From(table).
		Select("id,name,bio,tagline,email,spreadsheet_id", "", false).
		Eq("id", id).
		Limit(1, "").
		ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	row := rows[0]
	return &domain.Profile{
		ID:            row.ID,
		Kind:          kind,
		Name:          deref(row.Name),
		Bio:           deref(row.Bio),
		Tagline:       deref(row.Tagline),
		Email:         deref(row.Email),
		SpreadsheetID: deref(row.SpreadsheetID),
	}, nil
}
