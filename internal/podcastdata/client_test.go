package podcastdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/pkg/httpretry"
	"github.com/ignite/podmatch/internal/pkg/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	rc := httpretry.NewRetryClient(srv.Client(), retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	return NewClient(config.PodcastDataConfig{BaseURL: srv.URL, APIKey: "pk"}, rc)
}

func TestGetPodcast(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/podcasts/ext-1", r.URL.Path)
		assert.Equal(t, "Bearer pk", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"ext-1","title":"Security Weekly","total_episodes":300,"genres":["Tech"],"latest_pub_date_ms":1767225600000,"email":"host@sw.fm"}`))
	})

	p, err := c.GetPodcast(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", p.ExternalID)
	assert.Equal(t, "Security Weekly", p.Name)
	assert.Equal(t, 300, p.EpisodeCount)
	assert.Equal(t, []string{"Tech"}, p.Categories)
	require.NotNil(t, p.LastPublishedAt)
	assert.Equal(t, 2026, p.LastPublishedAt.Year())
}

func TestGetPodcastNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := c.GetPodcast(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPodcastRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id":"ext-2","title":"SaaS Talk"}`))
	})

	p, err := c.GetPodcast(context.Background(), "ext-2")
	require.NoError(t, err)
	assert.Equal(t, "SaaS Talk", p.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetPodcastDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.GetPodcast(context.Background(), "ext-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}
