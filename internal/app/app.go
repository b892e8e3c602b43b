// Package app builds the service graph from configuration. Components whose
// settings are missing are left nil and logged; the HTTP layer turns a nil
// component into a configuration error for the endpoints that need it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/podmatch/internal/api"
	"github.com/ignite/podmatch/internal/backfill"
	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/embedding"
	"github.com/ignite/podmatch/internal/feeds"
	"github.com/ignite/podmatch/internal/llm"
	"github.com/ignite/podmatch/internal/matching"
	"github.com/ignite/podmatch/internal/outreach"
	"github.com/ignite/podmatch/internal/pkg/distlock"
	"github.com/ignite/podmatch/internal/pkg/logger"
	"github.com/ignite/podmatch/internal/pkg/retry"
	"github.com/ignite/podmatch/internal/podcastcache"
	"github.com/ignite/podmatch/internal/podcastdata"
	"github.com/ignite/podmatch/internal/repository/postgres"
	"github.com/ignite/podmatch/internal/repository/supabase"
	"github.com/ignite/podmatch/internal/sheets"
	"github.com/ignite/podmatch/internal/storage"
)

// App is the wired service graph.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client

	Backfill *backfill.Service
	Scorer   *matching.Scorer
	Cache    *podcastcache.Service
	Pitches  *outreach.PitchGenerator
	Mailer   *outreach.Mailer
	Events   *outreach.EventIngester
	Runs     *storage.Storage
	Feeds    *feeds.Refresher

	catalog  api.PodcastCatalog
	profiles backfill.ProfileStore
}

type repos struct {
	searcher matching.Searcher
	catalog  api.PodcastCatalog
	profiles backfill.ProfileStore
	cache    podcastcache.Store
	// saved is nil on the Supabase path, which is read-only here.
	saved podcastcache.Catalog
}

// New connects to the configured backends and builds every component it
// has settings for.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.RedactPII)

	a := &App{Config: cfg}

	r, err := a.openRepos(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.Redis = redis.NewClient(opts)
	}

	completer, err := llm.New(ctx, cfg, nil)
	if err != nil {
		logger.Warn("chat model unavailable; filter falls back to similarity order and pitches to templates", "error", err)
		completer = nil
	}

	if completer != nil {
		a.Scorer = matching.NewScorer(completer, cfg.Matching.ScoringConcurrency)
	}

	if r != nil {
		a.catalog = r.catalog
		a.profiles = r.profiles

		var provider podcastcache.Provider
		if cfg.Require("podcast_data") == nil {
			provider = podcastdata.NewClient(cfg.PodcastData, nil)
		}
		a.Cache = podcastcache.NewService(r.cache, provider)
		if r.saved != nil {
			a.Cache.SetCatalog(r.saved)
		}
		a.Cache.SetStaleAfter(cfg.Matching.StaleAfter())

		pitches, err := outreach.NewPitchGenerator(completer, "", "")
		if err != nil {
			return nil, err
		}
		a.Pitches = pitches
	}

	a.Runs, err = storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Warn("run archive unavailable", "error", err)
		a.Runs = nil
	}

	if err := cfg.Require("database", "openai", "sheets"); err != nil {
		logger.Warn("backfill disabled", "error", err)
	} else {
		list, err := a.outreachList(ctx)
		if err != nil {
			return nil, err
		}
		var archive backfill.RunArchive
		if a.Runs != nil {
			archive = a.Runs
		}
		a.Backfill = backfill.NewService(
			r.profiles,
			embedding.NewOpenAIClient(cfg.OpenAI, nil),
			r.searcher,
			matching.NewQualityFilter(completer, cfg.Matching.MaxLLMCandidates, cfg.Matching.DescriptionChars),
			list,
			archive,
			backfill.OptionsFromConfig(cfg),
		)
	}

	a.Mailer, err = outreach.NewMailer(ctx, cfg.Email)
	if err != nil {
		logger.Warn("email sending unavailable", "error", err)
		a.Mailer = nil
	}

	if a.DB != nil {
		a.Events = outreach.NewEventIngester(outreach.NewWebhookVerifier(cfg.Email.WebhookSecret), postgres.NewEventRepo(a.DB))
		a.Feeds = feeds.NewRefresher(
			postgres.NewPodcastRepo(a.DB),
			feeds.NewFetcher(nil, retry.Policy{MaxAttempts: cfg.Feeds.MaxAttempts, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Jitter: 0.5}),
			feeds.OptionsFromConfig(cfg.Feeds),
		)
	}
	return a, nil
}

// openRepos prefers a direct Postgres connection and falls back to the
// Supabase REST API. It returns nil when neither is configured.
func (a *App) openRepos(ctx context.Context) (*repos, error) {
	cfg := a.Config
	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		a.DB = db
		podcasts := postgres.NewPodcastRepo(db)
		return &repos{
			searcher: podcasts,
			catalog:  podcasts,
			profiles: postgres.NewProfileRepo(db),
			cache:    postgres.NewCacheRepo(db),
			saved:    podcasts,
		}, nil
	}
	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceRoleKey != "" {
		sb, err := supabase.New(cfg.Supabase)
		if err != nil {
			return nil, err
		}
		logger.Info("using supabase REST for podcast data; events and feed refresh need DATABASE_URL")
		return &repos{searcher: sb, catalog: sb, profiles: sb, cache: sb}, nil
	}
	logger.Warn("no database configured")
	return nil, nil
}

func (a *App) outreachList(ctx context.Context) (*sheets.OutreachList, error) {
	cfg := a.Config.Sheets
	client, err := sheets.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}

	opts, err := sheetsOptions(cfg)
	if err != nil {
		return nil, err
	}
	var cache *sheets.ColumnCache
	if a.Redis != nil {
		cache = sheets.NewColumnCache(a.Redis, cfg.ColumnCacheTTL())
	}
	if cfg.LockAppends {
		rdb, db := a.Redis, a.DB
		ttl := a.Config.Server.InvocationTimeout()
		opts.Lock = func(spreadsheetID string) distlock.Lock {
			return distlock.New(rdb, db, "sheets:append:"+spreadsheetID, ttl)
		}
	}
	return sheets.NewOutreachList(client, cache, opts), nil
}

// sheetsOptions maps the sheets config section, minus the lock.
func sheetsOptions(cfg config.SheetsConfig) (sheets.Options, error) {
	mode, err := sheets.ParseReadMode(cfg.ReadMode)
	if err != nil {
		return sheets.Options{}, fmt.Errorf("sheets.read_mode: %w", err)
	}
	return sheets.Options{
		Tab:         cfg.TabName,
		IDColumn:    cfg.IdentifierColumn,
		ReadTimeout: cfg.ReadTimeout(),
		ReadMode:    mode,
		LockWait:    time.Duration(cfg.LockWaitSeconds) * time.Second,
	}, nil
}

// Deps returns the handler dependencies, leaving nil interfaces for
// missing components.
func (a *App) Deps() api.Deps {
	var d api.Deps
	if a.Backfill != nil {
		d.Backfill = a.Backfill
	}
	if a.Scorer != nil {
		d.Scorer = a.Scorer
	}
	if a.catalog != nil {
		d.Catalog = a.catalog
	}
	if a.Cache != nil {
		d.Cache = a.Cache
	}
	if a.profiles != nil {
		d.Profiles = a.profiles
	}
	if a.Pitches != nil {
		d.Pitches = a.Pitches
	}
	if a.Mailer != nil && a.Mailer.Enabled() {
		d.Mailer = a.Mailer
	}
	if a.Events != nil {
		d.Events = a.Events
	}
	if a.Runs != nil {
		d.Runs = a.Runs
	}
	return d
}

// Profiles returns the profile store, or nil without a database.
func (a *App) Profiles() backfill.ProfileStore { return a.profiles }

// Catalog returns the podcast catalog, or nil without a database.
func (a *App) Catalog() api.PodcastCatalog { return a.catalog }

// Close releases connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
