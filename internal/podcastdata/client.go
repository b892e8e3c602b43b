// Package podcastdata reads podcast metadata from the third-party podcast
// directory API.
package podcastdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/pkg/httpretry"
	"github.com/ignite/podmatch/internal/pkg/retry"
)

// ErrNotFound is returned when the provider has no podcast with the id.
var ErrNotFound = errors.New("podcast not found at provider")

// Client is a bearer-token client for the provider API.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient httpretry.HTTPDoer
}

// NewClient builds a client. httpClient is normally a *httpretry.RetryClient;
// provider reads are idempotent.
func NewClient(cfg config.PodcastDataConfig, httpClient httpretry.HTTPDoer) *Client {
	if httpClient == nil {
		httpClient = httpretry.NewRetryClient(nil, retry.DefaultPolicy)
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

type podcastResponse struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Publisher       string   `json:"publisher"`
	Email           string   `json:"email"`
	RSS             string   `json:"rss"`
	Website         string   `json:"website"`
	TotalEpisodes   int      `json:"total_episodes"`
	LatestPubDateMS int64    `json:"latest_pub_date_ms"`
	AudienceSize    int      `json:"audience_size"`
	Genres          []string `json:"genres"`
	Rating          float64  `json:"rating"`
}

func (r podcastResponse) toDomain() domain.Podcast {
	p := domain.Podcast{
		ExternalID:   r.ID,
		Name:         r.Title,
		Description:  r.Description,
		AudienceSize: r.AudienceSize,
		Categories:   r.Genres,
		Rating:       r.Rating,
		EpisodeCount: r.TotalEpisodes,
		ContactEmail: r.Email,
		RSSURL:       r.RSS,
		WebsiteURL:   r.Website,
	}
	if r.LatestPubDateMS > 0 {
		t := time.UnixMilli(r.LatestPubDateMS).UTC()
		p.LastPublishedAt = &t
	}
	return p
}

// GetPodcast fetches one podcast by provider id.
func (c *Client) GetPodcast(ctx context.Context, id string) (*domain.Podcast, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: podcast id is required", domain.ErrValidation)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/podcasts/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("podcast provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("podcast provider: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("podcast provider: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed podcastResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("podcast provider: decode: %w", err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("podcast provider: response has no id")
	}
	p := parsed.toDomain()
	return &p, nil
}
