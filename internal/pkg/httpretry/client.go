// Package httpretry wraps an HTTP client with the shared retry policy for
// idempotent upstream calls (podcast provider reads, feed fetches).
package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/podmatch/internal/pkg/logger"
	"github.com/ignite/podmatch/internal/pkg/retry"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries transient failures of the wrapped HTTPDoer.
type RetryClient struct {
	client HTTPDoer
	policy retry.Policy
}

// NewRetryClient wraps client (a 30s http.Client when nil) with policy.
// A zero policy uses retry.DefaultPolicy.
func NewRetryClient(client HTTPDoer, policy retry.Policy) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy
	}
	return &RetryClient{client: client, policy: policy}
}

// Do executes req, retrying 429/5xx responses and network errors. Client
// errors (4xx other than 429) and context cancellation are returned as-is.
// On the final attempt a retryable response is returned unchanged so the
// caller can read its status and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(req.Context(), rc.policy, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return retry.Permanent(fmt.Errorf("httpretry: reset request body: %w", err))
				}
				req.Body = body
			}
			logger.Debug("httpretry: retrying", "attempt", attempt, "method", req.Method, "host", req.URL.Host, "path", req.URL.Path)
		}

		r, err := rc.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		}
		if !IsRetryableStatus(r.StatusCode) || attempt == rc.policy.MaxAttempts {
			resp = r
			return nil
		}
		io.Copy(io.Discard, r.Body)
		r.Body.Close()
		return fmt.Errorf("httpretry: server returned retryable status %d", r.StatusCode)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// IsRetryableStatus reports whether a status code is a transient server
// condition: 429, 500, 502, 503, 504.
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
