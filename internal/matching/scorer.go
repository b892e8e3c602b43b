package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/llm"
)

// DefaultScoringConcurrency bounds in-flight model calls per batch.
const DefaultScoringConcurrency = 5

const scoreSystemPrompt = `You evaluate how well a podcast guest fits a podcast. Respond with JSON only: {"score": <0-100>, "reasoning": "<one or two sentences>"}`

// Scorer grades podcasts against a profile.
type Scorer struct {
	completer   llm.Completer
	concurrency int
	descChars   int
}

// NewScorer returns a Scorer running at most concurrency calls at once.
func NewScorer(c llm.Completer, concurrency int) *Scorer {
	if concurrency <= 0 {
		concurrency = DefaultScoringConcurrency
	}
	return &Scorer{completer: c, concurrency: concurrency, descChars: DefaultDescriptionChars * 2}
}

type scoreAnswer struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// ScoreAll scores every podcast. Results are in input order. A failure for
// one podcast is recorded in its Error field and does not stop the others;
// the only error returned is profile validation or context cancellation.
func (s *Scorer) ScoreAll(ctx context.Context, p domain.Profile, podcasts []domain.Podcast) ([]domain.CompatibilityScore, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	results := make([]domain.CompatibilityScore, len(podcasts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, pod := range podcasts {
		g.Go(func() error {
			results[i] = s.scoreOne(gctx, p, pod)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Scorer) scoreOne(ctx context.Context, p domain.Profile, pod domain.Podcast) domain.CompatibilityScore {
	res := domain.CompatibilityScore{PodcastID: pod.ID}
	if res.PodcastID == "" {
		res.PodcastID = pod.ExternalID
	}

	out, err := s.completer.Complete(ctx, llm.Request{
		System:      scoreSystemPrompt,
		Prompt:      s.buildPrompt(p, pod),
		MaxTokens:   250,
		Temperature: 0.3,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	var ans scoreAnswer
	if err := json.Unmarshal([]byte(llm.StripCodeFences(out)), &ans); err != nil {
		res.Error = fmt.Sprintf("parse score: %v", err)
		return res
	}
	res.Score = clampScore(ans.Score)
	res.Reasoning = strings.TrimSpace(ans.Reasoning)
	return res
}

func clampScore(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v + 0.5)
	}
}

func (s *Scorer) buildPrompt(p domain.Profile, pod domain.Podcast) string {
	var b strings.Builder
	b.WriteString("Guest:\n")
	b.WriteString(p.EmbeddingText())
	b.WriteString("\n\nPodcast:\n")
	fmt.Fprintf(&b, "Name: %s\n", pod.Name)
	if len(pod.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(pod.Categories, ", "))
	}
	if pod.AudienceSize > 0 {
		fmt.Fprintf(&b, "Audience: %d\n", pod.AudienceSize)
	}
	if pod.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", domain.Truncate(pod.Description, s.descChars))
	}
	b.WriteString("\nHow good a fit is this guest for this podcast?")
	return b.String()
}
