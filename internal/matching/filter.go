package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/llm"
	"github.com/ignite/podmatch/internal/pkg/logger"
)

// Defaults for QualityFilter.
const (
	DefaultTargetSize       = 15
	DefaultMaxLLMCandidates = 30
	DefaultDescriptionChars = 300
)

var errNoSelection = errors.New("model selected no candidates")

const filterSystemPrompt = `You are a podcast booking strategist. You choose which podcasts are the best fit for a guest. Respond with a JSON array of candidate indices only, no prose.`

// Selection is the outcome of a filter pass.
type Selection struct {
	Candidates []domain.Candidate
	Mode       domain.FilterMode
	// Reason is set when the similarity fallback was used because the
	// model call or its answer failed.
	Reason string
}

// QualityFilter narrows similarity candidates with a chat model.
type QualityFilter struct {
	completer        llm.Completer
	maxCandidates    int
	descriptionChars int
}

// NewQualityFilter returns a filter. A nil completer always falls back to
// similarity order.
func NewQualityFilter(c llm.Completer, maxCandidates, descriptionChars int) *QualityFilter {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxLLMCandidates
	}
	if descriptionChars <= 0 {
		descriptionChars = DefaultDescriptionChars
	}
	return &QualityFilter{completer: c, maxCandidates: maxCandidates, descriptionChars: descriptionChars}
}

// Select returns at most target candidates. Candidates must already be in
// descending similarity order. The model is only consulted when there are
// more candidates than target; on any failure the result is exactly the
// first target candidates.
func (f *QualityFilter) Select(ctx context.Context, p domain.Profile, candidates []domain.Candidate, target int) Selection {
	if target <= 0 {
		target = DefaultTargetSize
	}
	if len(candidates) <= target {
		return Selection{Candidates: candidates, Mode: domain.FilterSimilarity}
	}
	if f == nil || f.completer == nil {
		return fallback(candidates, target, "no model configured")
	}

	pool := candidates
	if len(pool) > f.maxCandidates {
		pool = pool[:f.maxCandidates]
	}

	out, err := f.completer.Complete(ctx, llm.Request{
		System:      filterSystemPrompt,
		Prompt:      f.buildPrompt(p, pool, target),
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		logger.Warn("quality filter model call failed, using similarity order", "profile_id", p.ID, "error", err)
		return fallback(candidates, target, "model error")
	}

	idx, err := ParseIndices(out, len(pool), target)
	if err != nil {
		logger.Warn("quality filter answer unparseable, using similarity order", "profile_id", p.ID, "error", err)
		return fallback(candidates, target, "parse error")
	}

	selected := make([]domain.Candidate, 0, len(idx))
	for _, i := range idx {
		selected = append(selected, pool[i])
	}
	return Selection{Candidates: selected, Mode: domain.FilterLLM}
}

func fallback(candidates []domain.Candidate, target int, reason string) Selection {
	n := min(target, len(candidates))
	return Selection{Candidates: candidates[:n], Mode: domain.FilterSimilarity, Reason: reason}
}

func (f *QualityFilter) buildPrompt(p domain.Profile, pool []domain.Candidate, target int) string {
	var b strings.Builder
	b.WriteString("Guest profile:\n")
	b.WriteString(p.EmbeddingText())
	fmt.Fprintf(&b, "\n\nSelect the %d podcasts that best fit this guest. Prefer relevant topics, active shows and a real audience.\n\nCandidates:\n", target)
	for i, c := range pool {
		desc := strings.Join(strings.Fields(c.Podcast.Description), " ")
		fmt.Fprintf(&b, "[%d] %s | audience: %d | categories: %s\n    %s\n",
			i, c.Podcast.Name, c.Podcast.AudienceSize,
			strings.Join(c.Podcast.Categories, ", "),
			domain.Truncate(desc, f.descriptionChars))
	}
	fmt.Fprintf(&b, "\nReturn ONLY a JSON array of up to %d indices, for example [0, 3, 7].", target)
	return b.String()
}

// ParseIndices decodes a model answer into candidate indices. Code fences
// are stripped, out-of-range or repeated indices are an error, order is
// kept and the result is capped at limit. An empty selection is an error.
func ParseIndices(answer string, n, limit int) ([]int, error) {
	var raw []int
	if err := json.Unmarshal([]byte(llm.StripCodeFences(answer)), &raw); err != nil {
		return nil, fmt.Errorf("decode indices: %w", err)
	}
	seen := make(map[int]bool, len(raw))
	out := make([]int, 0, len(raw))
	for _, i := range raw {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("index %d out of range [0,%d)", i, n)
		}
		if seen[i] {
			return nil, fmt.Errorf("index %d repeated", i)
		}
		seen[i] = true
		out = append(out, i)
	}
	if len(out) == 0 {
		return nil, errNoSelection
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
