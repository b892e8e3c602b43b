// Package feeds refreshes podcast episode stats from RSS and fills in
// missing host contact emails.
package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/ignite/podmatch/internal/pkg/httpretry"
	"github.com/ignite/podmatch/internal/pkg/retry"
)

const maxBodyBytes = 10 << 20

// Fetcher downloads feeds and web pages with the shared retry policy.
type Fetcher struct {
	client    httpretry.HTTPDoer
	policy    retry.Policy
	parser    *gofeed.Parser
	userAgent string
}

// NewFetcher returns a fetcher. A nil client uses a 20s http.Client.
func NewFetcher(client httpretry.HTTPDoer, policy retry.Policy) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy
	}
	return &Fetcher{
		client:    client,
		policy:    policy,
		parser:    gofeed.NewParser(),
		userAgent: "podmatch-feed-refresher/1.0",
	}
}

// Feed fetches and parses an RSS or Atom feed.
func (f *Fetcher) Feed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	feed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	return feed, nil
}

// ContactEmail scrapes pageURL for the first mailto: link.
func (f *Fetcher) ContactEmail(ctx context.Context, pageURL string) (string, error) {
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse page %s: %w", pageURL, err)
	}

	var found string
	doc.Find(`a[href^="mailto:"], a[href^="MAILTO:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if addr := parseMailto(href); addr != "" {
			found = addr
			return false
		}
		return true
	})
	return found, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	var body []byte
	err := retry.Do(ctx, f.policy, func(ctx context.Context, attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			err := fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
			if httpretry.IsRetryableStatus(resp.StatusCode) {
				return err
			}
			return retry.Permanent(err)
		}
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// parseMailto extracts the address from a mailto: href, ignoring any
// query such as ?subject=.
func parseMailto(href string) string {
	href = strings.TrimSpace(href)
	if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
		return ""
	}
	addr := href[7:]
	if i := strings.IndexByte(addr, '?'); i >= 0 {
		addr = addr[:i]
	}
	if dec, err := url.PathUnescape(addr); err == nil {
		addr = dec
	}
	if i := strings.IndexByte(addr, ','); i >= 0 {
		addr = addr[:i]
	}
	return validEmail(addr)
}

func validEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	a, err := mail.ParseAddress(s)
	if err != nil {
		return ""
	}
	return strings.ToLower(a.Address)
}
