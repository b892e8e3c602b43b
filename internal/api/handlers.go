// Package api exposes the matching functions over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/podmatch/internal/backfill"
	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/outreach"
	"github.com/ignite/podmatch/internal/pkg/httputil"
	"github.com/ignite/podmatch/internal/storage"
)

const (
	maxScorePodcasts = 50
	maxBatchIDs      = 500
	maxWebhookBytes  = 1 << 20
)

// Backfiller runs the outreach backfill pipeline.
type Backfiller interface {
	Run(ctx context.Context, req backfill.Request) (*domain.BackfillSummary, error)
}

// CompatibilityScorer scores podcasts against one profile.
type CompatibilityScorer interface {
	ScoreAll(ctx context.Context, p domain.Profile, podcasts []domain.Podcast) ([]domain.CompatibilityScore, error)
}

// PodcastCatalog loads podcasts by internal or external id.
type PodcastCatalog interface {
	GetMany(ctx context.Context, ids []string) ([]domain.Podcast, error)
}

// PodcastCache is the tiered cache lookup.
type PodcastCache interface {
	Lookup(ctx context.Context, id string) (*domain.CacheEntry, error)
	LookupBatch(ctx context.Context, ids []string) (map[string]*domain.CacheEntry, error)
	Resolve(ctx context.Context, id string) (*domain.CacheEntry, error)
	IsStale(e *domain.CacheEntry) bool
}

// PitchDrafter writes pitch emails.
type PitchDrafter interface {
	Generate(ctx context.Context, profile domain.Profile, podcast domain.Podcast) (*outreach.Pitch, error)
}

// PitchSender delivers pitch emails.
type PitchSender interface {
	Send(ctx context.Context, p *outreach.Pitch, to string) (string, error)
}

// EventIngester handles email provider webhooks.
type EventIngester interface {
	Ingest(ctx context.Context, body []byte, signature string) (*domain.OutreachEvent, error)
}

// RunHistory reads archived backfill runs.
type RunHistory interface {
	RecentRuns(ctx context.Context, profileID string, limit int) ([]domain.BackfillSummary, error)
	GetRun(ctx context.Context, runID string) (*storage.RunRecord, error)
}

// Deps are the services behind the handlers. A nil field means the
// settings it needs are missing; its endpoints answer 500 without doing
// any work.
type Deps struct {
	Backfill Backfiller
	Scorer   CompatibilityScorer
	Catalog  PodcastCatalog
	Cache    PodcastCache
	Profiles backfill.ProfileStore
	Pitches  PitchDrafter
	Mailer   PitchSender
	Events   EventIngester
	Runs     RunHistory
}

// Handlers holds the function endpoints.
type Handlers struct {
	d Deps
}

// NewHandlers creates handlers over d.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{d: d}
}

func missing(w http.ResponseWriter, what string) {
	respondError(w, fmt.Errorf("%w: %s", config.ErrMissingConfig, what))
}

// profileRef picks the profile named by exactly one of prospectID and
// clientID.
func profileRef(prospectID, clientID string) (domain.ProfileKind, string, error) {
	prospectID, clientID = strings.TrimSpace(prospectID), strings.TrimSpace(clientID)
	switch {
	case prospectID != "" && clientID != "":
		return "", "", fmt.Errorf("%w: send prospect_id or client_id, not both", domain.ErrValidation)
	case prospectID != "":
		return domain.ProfileProspect, prospectID, nil
	case clientID != "":
		return domain.ProfileClient, clientID, nil
	default:
		return "", "", fmt.Errorf("%w: prospect_id or client_id is required", domain.ErrValidation)
	}
}

type backfillRequest struct {
	ProspectID    string `json:"prospect_id"`
	ClientID      string `json:"client_id"`
	SpreadsheetID string `json:"spreadsheet_id"`
	TargetSize    int    `json:"target_size"`
	SkipLLM       bool   `json:"skip_llm"`
}

// Backfill handles POST /functions/backfill-prospect-podcasts.
func (h *Handlers) Backfill(w http.ResponseWriter, r *http.Request) {
	if h.d.Backfill == nil {
		missing(w, "backfill pipeline")
		return
	}
	var req backfillRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	kind, id, err := profileRef(req.ProspectID, req.ClientID)
	if err != nil {
		respondError(w, err)
		return
	}
	if req.TargetSize < 0 || req.TargetSize > 100 {
		respondError(w, fmt.Errorf("%w: target_size must be between 1 and 100", domain.ErrValidation))
		return
	}

	sum, err := h.d.Backfill.Run(r.Context(), backfill.Request{
		ProfileID:     id,
		Kind:          kind,
		SpreadsheetID: req.SpreadsheetID,
		TargetSize:    req.TargetSize,
		SkipLLM:       req.SkipLLM,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Success(w, sum)
}

type scoreRequest struct {
	Bio        string           `json:"bio"`
	Name       string           `json:"name"`
	Tagline    string           `json:"tagline"`
	PodcastIDs []string         `json:"podcast_ids"`
	Podcasts   []domain.Podcast `json:"podcasts"`
}

// ScoreCompatibility handles POST /functions/score-podcast-compatibility.
func (h *Handlers) ScoreCompatibility(w http.ResponseWriter, r *http.Request) {
	if h.d.Scorer == nil {
		missing(w, "llm")
		return
	}
	var req scoreRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	profile := domain.Profile{Name: req.Name, Bio: req.Bio, Tagline: req.Tagline}
	if err := profile.Validate(); err != nil {
		respondError(w, err)
		return
	}

	podcasts := req.Podcasts
	var notFound []string
	if len(podcasts) == 0 {
		if len(req.PodcastIDs) == 0 {
			respondError(w, fmt.Errorf("%w: podcast_ids or podcasts is required", domain.ErrValidation))
			return
		}
		if h.d.Catalog == nil {
			missing(w, "database")
			return
		}
		if len(req.PodcastIDs) > maxScorePodcasts {
			respondError(w, fmt.Errorf("%w: at most %d podcasts per request", domain.ErrValidation, maxScorePodcasts))
			return
		}
		loaded, err := h.d.Catalog.GetMany(r.Context(), req.PodcastIDs)
		if err != nil {
			respondError(w, err)
			return
		}
		podcasts, notFound = orderByRequest(req.PodcastIDs, loaded)
	}
	if len(podcasts) > maxScorePodcasts {
		respondError(w, fmt.Errorf("%w: at most %d podcasts per request", domain.ErrValidation, maxScorePodcasts))
		return
	}

	scores, err := h.d.Scorer.ScoreAll(r.Context(), profile, podcasts)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Success(w, map[string]any{
		"scores":    scores,
		"not_found": notFound,
	})
}

// orderByRequest returns loaded podcasts in the order of ids, matching on
// internal or external id, plus the ids nothing matched.
func orderByRequest(ids []string, loaded []domain.Podcast) ([]domain.Podcast, []string) {
	byID := make(map[string]domain.Podcast, len(loaded)*2)
	for _, p := range loaded {
		byID[p.ID] = p
		if p.ExternalID != "" {
			byID[p.ExternalID] = p
		}
	}
	out := make([]domain.Podcast, 0, len(ids))
	var notFound []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			notFound = append(notFound, id)
			continue
		}
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, notFound
}

type cachedPodcast struct {
	Podcast      *domain.Podcast    `json:"podcast"`
	Source       domain.CacheSource `json:"source,omitempty"`
	CachedAt     *time.Time         `json:"cached_at,omitempty"`
	Stale        bool               `json:"stale"`
	FromProvider bool               `json:"from_provider,omitempty"`
}

func (h *Handlers) toCached(e *domain.CacheEntry) cachedPodcast {
	if e == nil {
		return cachedPodcast{}
	}
	p := e.Podcast
	out := cachedPodcast{Podcast: &p, Source: e.Source, Stale: h.d.Cache.IsStale(e), FromProvider: e.FromProvider}
	if !e.CachedAt.IsZero() {
		t := e.CachedAt
		out.CachedAt = &t
	}
	return out
}

type cachedPodcastRequest struct {
	PodcastID string `json:"podcast_id"`
	Fallback  bool   `json:"fallback"`
}

// GetCachedPodcast handles POST /functions/get-cached-podcast. A miss is
// a success with "podcast": null.
func (h *Handlers) GetCachedPodcast(w http.ResponseWriter, r *http.Request) {
	if h.d.Cache == nil {
		missing(w, "database")
		return
	}
	var req cachedPodcastRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PodcastID) == "" {
		respondError(w, fmt.Errorf("%w: podcast_id is required", domain.ErrValidation))
		return
	}

	lookup := h.d.Cache.Lookup
	if req.Fallback {
		lookup = h.d.Cache.Resolve
	}
	e, err := lookup(r.Context(), req.PodcastID)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Success(w, h.toCached(e))
}

type cachedPodcastsRequest struct {
	PodcastIDs []string `json:"podcast_ids"`
}

// GetCachedPodcasts handles POST /functions/get-cached-podcasts.
func (h *Handlers) GetCachedPodcasts(w http.ResponseWriter, r *http.Request) {
	if h.d.Cache == nil {
		missing(w, "database")
		return
	}
	var req cachedPodcastsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.PodcastIDs) == 0 {
		respondError(w, fmt.Errorf("%w: podcast_ids is required", domain.ErrValidation))
		return
	}
	if len(req.PodcastIDs) > maxBatchIDs {
		respondError(w, fmt.Errorf("%w: at most %d podcast_ids per request", domain.ErrValidation, maxBatchIDs))
		return
	}

	found, err := h.d.Cache.LookupBatch(r.Context(), req.PodcastIDs)
	if err != nil {
		respondError(w, err)
		return
	}
	podcasts := make(map[string]cachedPodcast, len(found))
	missingIDs := []string{}
	for _, id := range req.PodcastIDs {
		id = strings.TrimSpace(id)
		if e, ok := found[id]; ok {
			podcasts[id] = h.toCached(e)
		} else if id != "" {
			missingIDs = append(missingIDs, id)
		}
	}
	httputil.Success(w, map[string]any{
		"podcasts": podcasts,
		"missing":  missingIDs,
	})
}

type pitchRequest struct {
	ProspectID string `json:"prospect_id"`
	ClientID   string `json:"client_id"`
	PodcastID  string `json:"podcast_id"`
	Send       bool   `json:"send"`
	To         string `json:"to"`
}

// GeneratePitch handles POST /functions/generate-pitch.
func (h *Handlers) GeneratePitch(w http.ResponseWriter, r *http.Request) {
	if h.d.Pitches == nil || h.d.Profiles == nil || h.d.Cache == nil {
		missing(w, "database")
		return
	}
	var req pitchRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	kind, id, err := profileRef(req.ProspectID, req.ClientID)
	if err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.PodcastID) == "" {
		respondError(w, fmt.Errorf("%w: podcast_id is required", domain.ErrValidation))
		return
	}

	profile, err := h.d.Profiles.Get(r.Context(), kind, id)
	if err != nil {
		respondError(w, err)
		return
	}
	entry, err := h.d.Cache.Resolve(r.Context(), req.PodcastID)
	if err != nil {
		respondError(w, err)
		return
	}
	if entry == nil {
		httputil.NotFound(w, "podcast not found")
		return
	}

	pitch, err := h.d.Pitches.Generate(r.Context(), *profile, entry.Podcast)
	if err != nil {
		respondError(w, err)
		return
	}
	resp := map[string]any{"pitch": pitch}

	if req.Send {
		if h.d.Mailer == nil {
			respondError(w, outreach.ErrMailerDisabled)
			return
		}
		to := strings.TrimSpace(req.To)
		if to == "" {
			to = entry.Podcast.ContactEmail
		}
		if to == "" {
			respondError(w, fmt.Errorf("%w: podcast has no contact email; pass \"to\"", domain.ErrValidation))
			return
		}
		msgID, err := h.d.Mailer.Send(r.Context(), pitch, to)
		if err != nil {
			respondError(w, err)
			return
		}
		resp["message_id"] = msgID
	}
	httputil.Success(w, resp)
}

type runsRequest struct {
	RunID     string `json:"run_id"`
	ProfileID string `json:"profile_id"`
	Limit     int    `json:"limit"`
}

// ListRuns handles POST /functions/backfill-runs. With run_id it returns
// that run's full record; otherwise recent summaries for profile_id. The
// AWS archive is indexed by profile, so profile_id is required there.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.d.Runs == nil {
		missing(w, "storage")
		return
	}
	var req runsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if runID := strings.TrimSpace(req.RunID); runID != "" {
		rec, err := h.d.Runs.GetRun(r.Context(), runID)
		if err != nil {
			respondError(w, err)
			return
		}
		httputil.Success(w, map[string]any{"run": rec})
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	runs, err := h.d.Runs.RecentRuns(r.Context(), req.ProfileID, req.Limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.BackfillSummary{}
	}
	httputil.Success(w, map[string]any{"runs": runs})
}

// EmailWebhook handles POST /webhooks/email.
func (h *Handlers) EmailWebhook(w http.ResponseWriter, r *http.Request) {
	if h.d.Events == nil {
		missing(w, "database")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httputil.BadRequest(w, "could not read body")
		return
	}
	ev, err := h.d.Events.Ingest(r.Context(), body, r.Header.Get(outreach.SignatureHeader))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Success(w, map[string]any{"event_id": ev.ID, "type": ev.Type})
}
