package feeds

import (
	"context"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/pkg/logger"
	"github.com/ignite/podmatch/internal/repository/postgres"
)

// Store is the catalog the refresher reads and updates.
type Store interface {
	ListForRefresh(ctx context.Context, limit int, olderThan time.Time) ([]domain.Podcast, error)
	UpdateFeedStats(ctx context.Context, id string, s postgres.FeedStats) error
}

// Options tunes a refresh run.
type Options struct {
	BatchSize    int
	Pause        time.Duration
	RefreshAfter time.Duration
	// MaxBatches stops the run early; zero means until nothing is due.
	MaxBatches int
}

// OptionsFromConfig maps the feeds config section.
func OptionsFromConfig(cfg config.FeedsConfig) Options {
	return Options{
		BatchSize:    cfg.BatchSize,
		Pause:        cfg.BatchPause(),
		RefreshAfter: cfg.RefreshAfter(),
	}
}

// Report summarizes a refresh run.
type Report struct {
	Checked     int `json:"checked"`
	Updated     int `json:"updated"`
	Failed      int `json:"failed"`
	EmailsFound int `json:"emails_found"`
	Batches     int `json:"batches"`
}

// Refresher walks due podcasts in batches.
type Refresher struct {
	store   Store
	fetcher *Fetcher
	opts    Options
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRefresher applies defaults of 25 per batch, a 2s pause and a 24h
// refresh window.
func NewRefresher(store Store, fetcher *Fetcher, opts Options) *Refresher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 25
	}
	if opts.Pause < 0 {
		opts.Pause = 0
	} else if opts.Pause == 0 {
		opts.Pause = 2 * time.Second
	}
	if opts.RefreshAfter <= 0 {
		opts.RefreshAfter = 24 * time.Hour
	}
	return &Refresher{store: store, fetcher: fetcher, opts: opts, now: time.Now, sleep: sleepCtx}
}

// SetMaxBatches overrides the batch limit for later runs.
func (r *Refresher) SetMaxBatches(n int) {
	if n < 0 {
		n = 0
	}
	r.opts.MaxBatches = n
}

// Run refreshes batches until nothing is due, MaxBatches is reached or ctx
// ends. A podcast whose feed fails is still marked checked so the next
// batch moves on.
func (r *Refresher) Run(ctx context.Context) (Report, error) {
	var rep Report
	cutoff := r.now().Add(-r.opts.RefreshAfter)

	for r.opts.MaxBatches == 0 || rep.Batches < r.opts.MaxBatches {
		batch, err := r.store.ListForRefresh(ctx, r.opts.BatchSize, cutoff)
		if err != nil {
			return rep, err
		}
		if len(batch) == 0 {
			break
		}
		if rep.Batches > 0 {
			if err := r.sleep(ctx, r.opts.Pause); err != nil {
				return rep, err
			}
		}
		rep.Batches++

		for _, p := range batch {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			rep.Checked++
			stats, ok, foundEmail := r.refreshOne(ctx, p)
			if err := r.store.UpdateFeedStats(ctx, p.ID, stats); err != nil {
				logger.Warn("feed stats update failed", "podcast_id", p.ID, "error", err)
				rep.Failed++
				continue
			}
			if !ok {
				rep.Failed++
				continue
			}
			rep.Updated++
			if foundEmail {
				rep.EmailsFound++
			}
		}
		logger.Info("feed batch done", "batch", rep.Batches, "size", len(batch), "updated", rep.Updated, "failed", rep.Failed)

		if len(batch) < r.opts.BatchSize {
			break
		}
	}
	return rep, nil
}

// refreshOne returns the stats to store, whether the feed was read, and
// whether a new contact email was found.
func (r *Refresher) refreshOne(ctx context.Context, p domain.Podcast) (postgres.FeedStats, bool, bool) {
	stats := postgres.FeedStats{EpisodeCount: p.EpisodeCount}

	feed, err := r.fetcher.Feed(ctx, p.RSSURL)
	if err != nil {
		logger.Warn("feed fetch failed", "podcast_id", p.ID, "rss_url", p.RSSURL, "error", err)
		return stats, false, false
	}
	stats.EpisodeCount, stats.LastPublishedAt = episodeStats(feed)

	if p.ContactEmail != "" {
		return stats, true, false
	}
	if email := feedEmail(feed); email != "" {
		stats.ContactEmail = email
		return stats, true, true
	}

	site := p.WebsiteURL
	if site == "" {
		site = feed.Link
	}
	if site == "" {
		return stats, true, false
	}
	email, err := r.fetcher.ContactEmail(ctx, site)
	if err != nil {
		logger.Debug("contact page scrape failed", "podcast_id", p.ID, "url", site, "error", err)
		return stats, true, false
	}
	stats.ContactEmail = email
	return stats, true, email != ""
}

func episodeStats(feed *gofeed.Feed) (int, *time.Time) {
	var latest *time.Time
	for _, it := range feed.Items {
		t := it.PublishedParsed
		if t == nil {
			t = it.UpdatedParsed
		}
		if t != nil && (latest == nil || t.After(*latest)) {
			latest = t
		}
	}
	return len(feed.Items), latest
}

// feedEmail prefers the iTunes owner, then the feed author.
func feedEmail(feed *gofeed.Feed) string {
	if feed.ITunesExt != nil && feed.ITunesExt.Owner != nil {
		if e := validEmail(feed.ITunesExt.Owner.Email); e != "" {
			return e
		}
	}
	for _, a := range feed.Authors {
		if a != nil {
			if e := validEmail(a.Email); e != "" {
				return e
			}
		}
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
