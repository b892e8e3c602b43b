package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/pkg/retry"
	"github.com/ignite/podmatch/internal/repository/postgres"
)

const rssWithOwner = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
  <title>Engine Room</title>
  <link>%s/site</link>
  <itunes:owner><itunes:name>Host</itunes:name><itunes:email>Host@Example.com</itunes:email></itunes:owner>
  <item><title>Ep 2</title><pubDate>Tue, 03 Mar 2026 10:00:00 GMT</pubDate></item>
  <item><title>Ep 1</title><pubDate>Mon, 02 Feb 2026 10:00:00 GMT</pubDate></item>
</channel>
</rss>`

const rssNoOwner = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Quiet Show</title>
  <link>%s/site</link>
  <item><title>Only</title><pubDate>Mon, 02 Feb 2026 10:00:00 GMT</pubDate></item>
</channel>
</rss>`

const sitePage = `<html><body>
<a href="/about">About</a>
<a href="mailto:booking%40quiet.fm?subject=Guest">Book us</a>
</body></html>`

var fastPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

type memStore struct {
	due     []domain.Podcast
	updates map[string]postgres.FeedStats
	lists   int
}

func (m *memStore) ListForRefresh(_ context.Context, limit int, _ time.Time) ([]domain.Podcast, error) {
	m.lists++
	var out []domain.Podcast
	for _, p := range m.due {
		if _, done := m.updates[p.ID]; done {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) UpdateFeedStats(_ context.Context, id string, s postgres.FeedStats) error {
	m.updates[id] = s
	return nil
}

func newServer(t *testing.T, flaky *int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/owner.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, rssWithOwner, srv.URL)
	})
	mux.HandleFunc("/quiet.xml", func(w http.ResponseWriter, r *http.Request) {
		if flaky != nil && atomic.AddInt32(flaky, -1) >= 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, rssNoOwner, srv.URL)
	})
	mux.HandleFunc("/site", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sitePage)
	})
	mux.HandleFunc("/gone.xml", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRefresher_Run(t *testing.T) {
	flaky := int32(1)
	srv := newServer(t, &flaky)
	store := &memStore{
		updates: map[string]postgres.FeedStats{},
		due: []domain.Podcast{
			{ID: "1", RSSURL: srv.URL + "/owner.xml"},
			{ID: "2", RSSURL: srv.URL + "/quiet.xml"},
			{ID: "3", RSSURL: srv.URL + "/gone.xml", EpisodeCount: 40},
			{ID: "4", RSSURL: srv.URL + "/owner.xml", ContactEmail: "known@example.com"},
		},
	}

	r := NewRefresher(store, NewFetcher(srv.Client(), fastPolicy), Options{BatchSize: 2})
	var pauses []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	rep, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Checked)
	assert.Equal(t, 3, rep.Updated)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 2, rep.EmailsFound)
	assert.Equal(t, []time.Duration{2 * time.Second}, pauses)

	one := store.updates["1"]
	assert.Equal(t, 2, one.EpisodeCount)
	assert.Equal(t, "host@example.com", one.ContactEmail)
	require.NotNil(t, one.LastPublishedAt)
	assert.Equal(t, time.March, one.LastPublishedAt.Month())

	assert.Equal(t, "booking@quiet.fm", store.updates["2"].ContactEmail)

	gone := store.updates["3"]
	assert.Equal(t, 40, gone.EpisodeCount)
	assert.Nil(t, gone.LastPublishedAt)

	assert.Empty(t, store.updates["4"].ContactEmail)
}

func TestRefresher_MaxBatches(t *testing.T) {
	srv := newServer(t, nil)
	store := &memStore{updates: map[string]postgres.FeedStats{}}
	for i := 0; i < 5; i++ {
		store.due = append(store.due, domain.Podcast{ID: fmt.Sprint(i), RSSURL: srv.URL + "/owner.xml", ContactEmail: "x@example.com"})
	}

	r := NewRefresher(store, NewFetcher(srv.Client(), fastPolicy), Options{BatchSize: 2, MaxBatches: 1, Pause: -1})
	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Batches)
	assert.Equal(t, 2, rep.Checked)
}

func TestFetcher_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.Client(), fastPolicy).Feed(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestParseMailto(t *testing.T) {
	assert.Equal(t, "a@b.co", parseMailto("mailto:A@B.co"))
	assert.Equal(t, "a@b.co", parseMailto("MAILTO:a@b.co?subject=hi"))
	assert.Equal(t, "a@b.co", parseMailto("mailto:a@b.co,c@d.co"))
	assert.Empty(t, parseMailto("mailto:"))
	assert.Empty(t, parseMailto("https://example.com"))
}
