// Package embedding turns profile text into vectors for similarity search.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/pkg/httpretry"
)

// ErrEmbeddingFailed wraps every failure to produce a vector.
var ErrEmbeddingFailed = errors.New("failed to generate embedding")

// Embedder generates a fixed-length vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// APIError is a non-2xx response from the embedding endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("embedding API returned status %d: %s", e.Status, e.Body)
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAIClient calls an OpenAI-compatible /v1/embeddings endpoint. It does
// not retry: an embedding failure aborts the caller's request.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	timeout    time.Duration
	httpClient httpretry.HTTPDoer
}

// NewOpenAIClient builds a client from config.
func NewOpenAIClient(cfg config.OpenAIConfig, httpClient httpretry.HTTPDoer) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.EmbeddingTimeout()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.EmbeddingModel,
		dimensions: cfg.EmbeddingDimensions,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// Dimensions returns the configured vector length.
func (c *OpenAIClient) Dimensions() int { return c.dimensions }

// Embed returns the embedding of text. Errors wrap ErrEmbeddingFailed.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrEmbeddingFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: text, Dimensions: c.dimensions})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrEmbeddingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrEmbeddingFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, &APIError{Status: resp.StatusCode, Body: truncateBody(respBody)})
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrEmbeddingFailed, err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding in response", ErrEmbeddingFailed)
	}
	vec := parsed.Data[0].Embedding
	if c.dimensions > 0 && len(vec) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbeddingFailed, len(vec), c.dimensions)
	}
	return vec, nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
