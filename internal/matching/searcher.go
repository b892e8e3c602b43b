package matching

import (
	"context"

	"github.com/ignite/podmatch/internal/domain"
)

// Searcher finds podcasts whose embedding is close to vec. Results are
// ordered by descending similarity and all have similarity >= threshold.
type Searcher interface {
	SearchSimilar(ctx context.Context, vec []float32, threshold float64, limit int) ([]domain.Candidate, error)
}
