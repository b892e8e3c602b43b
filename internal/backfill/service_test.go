package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/embedding"
	"github.com/ignite/podmatch/internal/llm"
	"github.com/ignite/podmatch/internal/matching"
	"github.com/ignite/podmatch/internal/sheets"
	"github.com/ignite/podmatch/internal/storage"
)

type fakeProfiles map[string]*domain.Profile

func (f fakeProfiles) Get(_ context.Context, kind domain.ProfileKind, id string) (*domain.Profile, error) {
	p, ok := f[id]
	if !ok || p.Kind != kind {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeSearcher struct {
	n     int
	calls int
}

func (f *fakeSearcher) SearchSimilar(_ context.Context, _ []float32, _ float64, limit int) ([]domain.Candidate, error) {
	f.calls++
	n := f.n
	if n > limit {
		n = limit
	}
	out := make([]domain.Candidate, n)
	for i := range out {
		out[i] = domain.Candidate{
			Podcast:    domain.Podcast{ExternalID: fmt.Sprintf("pod-%02d", i), Name: fmt.Sprintf("Show %d", i)},
			Similarity: 0.95 - float64(i)*0.01,
		}
	}
	return out, nil
}

type fakeOutreach struct {
	mu       sync.Mutex
	existing map[string]bool
	appended []domain.OutreachRow
	calls    int
}

func (f *fakeOutreach) AppendNew(_ context.Context, _ string, rows []domain.OutreachRow) (sheets.AppendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var res sheets.AppendResult
	for _, r := range rows {
		if f.existing[r.ExternalID] {
			res.Skipped++
			continue
		}
		f.appended = append(f.appended, r)
		res.Added++
	}
	return res, nil
}

type fakeArchive struct {
	recs []storage.RunRecord
	err  error
}

func (f *fakeArchive) SaveRun(_ context.Context, rec storage.RunRecord) error {
	f.recs = append(f.recs, rec)
	return f.err
}

type stubCompleter struct {
	answer string
	err    error
	calls  int
}

func (s *stubCompleter) Complete(context.Context, llm.Request) (string, error) {
	s.calls++
	return s.answer, s.err
}

type fixture struct {
	embedder *fakeEmbedder
	searcher *fakeSearcher
	outreach *fakeOutreach
	archive  *fakeArchive
	llm      *stubCompleter
	svc      *Service
}

func newFixture(found int) *fixture {
	f := &fixture{
		embedder: &fakeEmbedder{},
		searcher: &fakeSearcher{n: found},
		outreach: &fakeOutreach{existing: map[string]bool{}},
		archive:  &fakeArchive{},
		llm:      &stubCompleter{answer: "[0,1,2,3,4,5,6,7,8,9,10,11,12,13,14]"},
	}
	profiles := fakeProfiles{
		"p1": {ID: "p1", Kind: domain.ProfileProspect, Name: "Ada", Bio: "Founder of a fintech startup", SpreadsheetID: "sheet-1"},
		"c1": {ID: "c1", Kind: domain.ProfileClient, Name: "Grace", Bio: ""},
	}
	f.svc = NewService(profiles, f.embedder, f.searcher, matching.NewQualityFilter(f.llm, 0, 0), f.outreach, f.archive, Options{})
	return f
}

func TestRun_AppendsAndSkipsDuplicates(t *testing.T) {
	f := newFixture(40)
	for _, id := range []string{"pod-00", "pod-01", "pod-02"} {
		f.outreach.existing[id] = true
	}

	sum, err := f.svc.Run(context.Background(), Request{ProfileID: "p1", Kind: domain.ProfileProspect})
	require.NoError(t, err)

	assert.Equal(t, 40, sum.CandidatesFound)
	assert.Equal(t, 15, sum.Selected)
	assert.Equal(t, 12, sum.NewAdded)
	assert.Equal(t, 3, sum.DuplicatesSkipped)
	assert.Equal(t, domain.FilterLLM, sum.FilterMode)
	assert.Equal(t, "sheet-1", sum.SpreadsheetID)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 1, f.llm.calls)

	require.Len(t, f.archive.recs, 1)
	assert.Len(t, f.archive.recs[0].SelectedIDs, 15)
}

func TestRun_EmbeddingFailureWritesNothing(t *testing.T) {
	f := newFixture(40)
	f.embedder.err = fmt.Errorf("%w: upstream 500", embedding.ErrEmbeddingFailed)

	sum, err := f.svc.Run(context.Background(), Request{ProfileID: "p1", Kind: domain.ProfileProspect})
	require.Error(t, err)
	assert.Nil(t, sum)
	assert.True(t, errors.Is(err, embedding.ErrEmbeddingFailed))

	assert.Zero(t, f.searcher.calls)
	assert.Zero(t, f.outreach.calls)
	assert.Empty(t, f.archive.recs)
}

func TestRun_UnderTargetSkipsModel(t *testing.T) {
	f := newFixture(10)

	sum, err := f.svc.Run(context.Background(), Request{ProfileID: "p1", Kind: domain.ProfileProspect})
	require.NoError(t, err)

	assert.Equal(t, 10, sum.Selected)
	assert.Equal(t, 10, sum.NewAdded)
	assert.Equal(t, domain.FilterSimilarity, sum.FilterMode)
	assert.Zero(t, f.llm.calls)
}

func TestRun_ModelFailureFallsBackToTopN(t *testing.T) {
	f := newFixture(40)
	f.llm.err = errors.New("throttled")

	sum, err := f.svc.Run(context.Background(), Request{ProfileID: "p1", Kind: domain.ProfileProspect})
	require.NoError(t, err)

	assert.Equal(t, domain.FilterSimilarity, sum.FilterMode)
	require.Len(t, f.outreach.appended, 15)
	for i, row := range f.outreach.appended {
		assert.Equal(t, fmt.Sprintf("pod-%02d", i), row.ExternalID)
	}
	assert.NotEmpty(t, f.archive.recs[0].FilterReason)
}

func TestRun_SkipLLM(t *testing.T) {
	f := newFixture(40)

	sum, err := f.svc.Run(context.Background(), Request{ProfileID: "p1", Kind: domain.ProfileProspect, SkipLLM: true, TargetSize: 5})
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Selected)
	assert.Equal(t, domain.FilterSimilarity, sum.FilterMode)
	assert.Zero(t, f.llm.calls)
}

func TestRun_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"missing id", Request{Kind: domain.ProfileProspect}, domain.ErrValidation},
		{"bad kind", Request{ProfileID: "p1", Kind: "lead"}, domain.ErrValidation},
		{"unknown profile", Request{ProfileID: "nope", Kind: domain.ProfileProspect}, domain.ErrNotFound},
		{"empty bio", Request{ProfileID: "c1", Kind: domain.ProfileClient}, domain.ErrValidation},
		{"no spreadsheet", Request{Profile: &domain.Profile{ID: "x", Kind: domain.ProfileProspect, Bio: "bio"}}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(40)
			_, err := f.svc.Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.embedder.calls)
		})
	}
}

func TestRun_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(5)
	f.archive.err = errors.New("s3 down")

	sum, err := f.svc.Run(context.Background(), Request{
		Profile:       &domain.Profile{ID: "inline", Bio: "Author and speaker"},
		Kind:          domain.ProfileClient,
		SpreadsheetID: "sheet-9",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileClient, sum.ProfileKind)
	assert.Equal(t, "sheet-9", sum.SpreadsheetID)
	assert.Equal(t, 5, sum.NewAdded)
}
