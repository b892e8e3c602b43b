package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProfileEmbeddingText(t *testing.T) {
	p := Profile{Name: "Dana Ruiz", Bio: "B2B SaaS founder, cybersecurity focus", Tagline: "Zero trust for everyone"}
	assert.Equal(t, "Dana Ruiz\nB2B SaaS founder, cybersecurity focus\nZero trust for everyone", p.EmbeddingText())

	noTagline := Profile{Name: "Dana", Bio: "bio"}
	assert.Equal(t, "Dana\nbio", noTagline.EmbeddingText())
}

func TestProfileEmbeddingTextTruncatesBio(t *testing.T) {
	bio := strings.Repeat("é", MaxBioChars+200)
	p := Profile{Bio: bio}
	text := p.EmbeddingText()
	assert.Equal(t, MaxBioChars, len([]rune(text)))
}

func TestProfileValidate(t *testing.T) {
	assert.ErrorIs(t, Profile{Name: "x", Bio: "   "}.Validate(), ErrValidation)
	assert.NoError(t, Profile{Bio: "founder"}.Validate())
}

func TestCacheSourcePriority(t *testing.T) {
	assert.Greater(t, SourceClientDashboard.Priority(), SourceProspectDashboard.Priority())
	assert.Greater(t, SourceProspectDashboard.Priority(), SourceBooking.Priority())
	assert.Zero(t, CacheSource("other").Priority())
}

func TestCacheEntryIsStale(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fresh := CacheEntry{CachedAt: now.Add(-6 * 24 * time.Hour)}
	old := CacheEntry{CachedAt: now.Add(-8 * 24 * time.Hour)}
	assert.False(t, fresh.IsStale(now))
	assert.True(t, old.IsStale(now))
}

func TestOutreachRowValues(t *testing.T) {
	added := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	row := RowFromCandidate(Candidate{
		Podcast: Podcast{
			ExternalID:   "pod_123",
			Name:         "Secure Stack",
			AudienceSize: 12000,
			Categories:   []string{"Technology", "Business"},
			Rating:       4.7,
			ContactEmail: "host@securestack.fm",
		},
		Similarity: 0.8123,
	}, added)

	vals := row.Values()
	assert.Len(t, vals, len(OutreachHeader))
	assert.Equal(t, "pod_123", vals[0])
	assert.Equal(t, "Technology, Business", vals[3])
	assert.Equal(t, "4.7", vals[4])
	assert.Equal(t, "0.812", vals[6])
	assert.Equal(t, "2026-03-10", vals[7])
}
