// Package llm wraps the chat models used to filter candidates, score
// compatibility and draft pitches.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/pkg/httpretry"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("llm returned no content")

// Request is a single-turn completion.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completer produces text for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// New picks the provider named in cfg.LLM.Provider.
func New(ctx context.Context, cfg *config.Config, httpClient httpretry.HTTPDoer) (Completer, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY", config.ErrMissingConfig)
		}
		return NewOpenAI(cfg.OpenAI, httpClient), nil
	case "bedrock":
		return NewBedrockFromConfig(ctx, cfg.Bedrock)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// StripCodeFences removes a surrounding ```json or ``` block, which chat
// models add around JSON even when told not to.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```JSON"):
		s = strings.TrimPrefix(s, "```JSON")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return s
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
