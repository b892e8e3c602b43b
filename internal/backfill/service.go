// Package backfill fills a client's or prospect's outreach spreadsheet with
// matching podcasts.
//
//	profile text -> embedding -> similarity search -> quality filter
//	             -> dedup against the sheet -> append -> summary
package backfill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/embedding"
	"github.com/ignite/podmatch/internal/matching"
	"github.com/ignite/podmatch/internal/pkg/logger"
	"github.com/ignite/podmatch/internal/sheets"
	"github.com/ignite/podmatch/internal/storage"
)

// DefaultBudget is the wall-clock limit for one run.
const DefaultBudget = 55 * time.Second

// ProfileStore loads profiles by kind and id.
type ProfileStore interface {
	Get(ctx context.Context, kind domain.ProfileKind, id string) (*domain.Profile, error)
}

// OutreachList deduplicates and appends sheet rows.
type OutreachList interface {
	AppendNew(ctx context.Context, spreadsheetID string, rows []domain.OutreachRow) (sheets.AppendResult, error)
}

// RunArchive records finished runs.
type RunArchive interface {
	SaveRun(ctx context.Context, rec storage.RunRecord) error
}

// Options holds the pipeline constants.
type Options struct {
	SimilarityThreshold float64
	MatchCount          int
	TargetSize          int
	Budget              time.Duration
}

// OptionsFromConfig reads the pipeline constants from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SimilarityThreshold: cfg.Matching.SimilarityThreshold,
		MatchCount:          cfg.Matching.MatchCount,
		TargetSize:          cfg.Matching.TargetSize,
		Budget:              cfg.Server.InvocationTimeout(),
	}
}

// Request starts a run. Either ProfileID (loaded from the store) or Profile
// must be set.
type Request struct {
	ProfileID     string
	Kind          domain.ProfileKind
	Profile       *domain.Profile
	SpreadsheetID string
	TargetSize    int
	SkipLLM       bool
}

// Service runs backfills.
type Service struct {
	profiles ProfileStore
	embedder embedding.Embedder
	searcher matching.Searcher
	filter   *matching.QualityFilter
	outreach OutreachList
	archive  RunArchive
	opts     Options
	now      func() time.Time
}

// NewService wires the pipeline. archive may be nil.
func NewService(profiles ProfileStore, embedder embedding.Embedder, searcher matching.Searcher,
	filter *matching.QualityFilter, outreach OutreachList, archive RunArchive, opts Options) *Service {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.5
	}
	if opts.MatchCount <= 0 {
		opts.MatchCount = 50
	}
	if opts.TargetSize <= 0 {
		opts.TargetSize = matching.DefaultTargetSize
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	return &Service{
		profiles: profiles,
		embedder: embedder,
		searcher: searcher,
		filter:   filter,
		outreach: outreach,
		archive:  archive,
		opts:     opts,
		now:      time.Now,
	}
}

// Run executes one backfill. An embedding failure returns an error wrapping
// embedding.ErrEmbeddingFailed before anything is written.
func (s *Service) Run(ctx context.Context, req Request) (*domain.BackfillSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Budget)
	defer cancel()
	started := s.now()

	profile, err := s.resolveProfile(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	sheetID := strings.TrimSpace(req.SpreadsheetID)
	if sheetID == "" {
		sheetID = profile.SpreadsheetID
	}
	if sheetID == "" {
		return nil, fmt.Errorf("%w: %s %s has no outreach spreadsheet", domain.ErrValidation, profile.Kind, profile.ID)
	}

	target := req.TargetSize
	if target <= 0 {
		target = s.opts.TargetSize
	}

	sum := &domain.BackfillSummary{
		RunID:         uuid.New().String(),
		ProfileID:     profile.ID,
		ProfileKind:   profile.Kind,
		SpreadsheetID: sheetID,
		StartedAt:     started,
	}
	log := func(msg string, kv ...any) {
		logger.Info(msg, append([]any{"run_id", sum.RunID, "profile_id", profile.ID}, kv...)...)
	}

	vec, err := s.embedder.Embed(ctx, profile.EmbeddingText())
	if err != nil {
		return nil, err
	}

	candidates, err := s.searcher.SearchSimilar(ctx, vec, s.opts.SimilarityThreshold, s.opts.MatchCount)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	sum.CandidatesFound = len(candidates)
	log("similarity search done", "candidates", len(candidates))

	var sel matching.Selection
	if req.SkipLLM {
		sel = matching.Selection{Candidates: firstN(candidates, target), Mode: domain.FilterSimilarity}
	} else {
		sel = s.filter.Select(ctx, *profile, candidates, target)
	}
	sum.Selected = len(sel.Candidates)
	sum.FilterMode = sel.Mode

	now := s.now()
	rows := make([]domain.OutreachRow, len(sel.Candidates))
	selectedIDs := make([]string, len(sel.Candidates))
	for i, c := range sel.Candidates {
		rows[i] = domain.RowFromCandidate(c, now)
		selectedIDs[i] = c.Podcast.ExternalID
	}

	res, err := s.outreach.AppendNew(ctx, sheetID, rows)
	if err != nil {
		return nil, fmt.Errorf("update outreach sheet: %w", err)
	}
	sum.NewAdded = res.Added
	sum.DuplicatesSkipped = res.Skipped
	sum.DedupDegraded = res.DedupDegraded
	sum.DurationMS = s.now().Sub(started).Milliseconds()
	log("backfill complete", "new_added", sum.NewAdded, "duplicates_skipped", sum.DuplicatesSkipped, "filter_mode", string(sum.FilterMode))

	if s.archive != nil {
		rec := storage.RunRecord{Summary: *sum, SelectedIDs: selectedIDs, FilterReason: sel.Reason}
		if err := s.archive.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn("archiving backfill run failed", "run_id", sum.RunID, "error", err)
		}
	}
	return sum, nil
}

func (s *Service) resolveProfile(ctx context.Context, req Request) (*domain.Profile, error) {
	if req.Profile != nil {
		p := *req.Profile
		if p.Kind == "" {
			p.Kind = req.Kind
		}
		return &p, nil
	}
	if strings.TrimSpace(req.ProfileID) == "" {
		return nil, fmt.Errorf("%w: prospect_id or client_id is required", domain.ErrValidation)
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown profile kind %q", domain.ErrValidation, req.Kind)
	}
	p, err := s.profiles.Get(ctx, req.Kind, req.ProfileID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s %s: %w", req.Kind, req.ProfileID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", req.Kind, err)
	}
	return p, nil
}

func firstN(c []domain.Candidate, n int) []domain.Candidate {
	if len(c) > n {
		return c[:n]
	}
	return c
}
