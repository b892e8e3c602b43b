// Package outreach drafts pitch emails, sends them through SES and ingests
// the delivery events the email provider posts back.
package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/osteele/liquid"

	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/llm"
	"github.com/ignite/podmatch/internal/pkg/logger"
)

// PitchSource records who wrote a pitch.
type PitchSource string

const (
	PitchFromLLM      PitchSource = "llm"
	PitchFromTemplate PitchSource = "template"
)

// Pitch is a drafted outreach email to a podcast host.
type Pitch struct {
	ProfileID string      `json:"profile_id"`
	PodcastID string      `json:"podcast_id"`
	Subject   string      `json:"subject"`
	Body      string      `json:"body"`
	Source    PitchSource `json:"source"`
}

const pitchSystemPrompt = `You write short, warm guest pitches to podcast hosts on behalf of a booking agency. Respond with a JSON object {"subject": "...", "body": "..."} and nothing else. The body is plain text, under 180 words, signed by the agency.`

const defaultSubjectTemplate = `Guest idea for {{ podcast.name }}: {{ profile.name }}`

const defaultBodyTemplate = `Hi {{ podcast.name }} team,

I'd love to introduce {{ profile.name }}{% if profile.tagline != "" %}, {{ profile.tagline }}{% endif %}.

{{ profile.bio | first_sentence }}
{% if podcast.categories != "" %}
Given your focus on {{ podcast.categories }}, we think {{ profile.name }} would make a great conversation for your listeners.
{% endif %}
Would you be open to having them on the show?

Best,
The booking team`

// PitchGenerator drafts pitches with a chat model and falls back to a
// Liquid template when the model is unavailable or answers badly.
type PitchGenerator struct {
	completer llm.Completer
	subject   *liquid.Template
	body      *liquid.Template
}

// NewPitchGenerator parses the fallback templates. Empty strings select
// the built-in ones. completer may be nil.
func NewPitchGenerator(c llm.Completer, subjectTpl, bodyTpl string) (*PitchGenerator, error) {
	if subjectTpl == "" {
		subjectTpl = defaultSubjectTemplate
	}
	if bodyTpl == "" {
		bodyTpl = defaultBodyTemplate
	}

	engine := liquid.NewEngine()
	engine.RegisterFilter("first_sentence", firstSentence)

	subject, err := engine.ParseString(subjectTpl)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	body, err := engine.ParseString(bodyTpl)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	return &PitchGenerator{completer: c, subject: subject, body: body}, nil
}

// Generate drafts a pitch for profile to podcast. It only fails when the
// template fallback itself cannot render.
func (g *PitchGenerator) Generate(ctx context.Context, profile domain.Profile, podcast domain.Podcast) (*Pitch, error) {
	if g.completer != nil {
		p, err := g.fromModel(ctx, profile, podcast)
		if err == nil {
			return p, nil
		}
		logger.Warn("pitch model failed, using template", "podcast_id", podcast.ExternalID, "error", err)
	}
	return g.fromTemplate(profile, podcast)
}

func (g *PitchGenerator) fromModel(ctx context.Context, profile domain.Profile, podcast domain.Podcast) (*Pitch, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Guest: %s\n", profile.Name)
	if profile.Tagline != "" {
		fmt.Fprintf(&b, "Tagline: %s\n", profile.Tagline)
	}
	fmt.Fprintf(&b, "Bio: %s\n\n", domain.Truncate(profile.Bio, domain.MaxBioChars))
	fmt.Fprintf(&b, "Podcast: %s\n", podcast.Name)
	if len(podcast.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(podcast.Categories, ", "))
	}
	fmt.Fprintf(&b, "Description: %s\n", domain.Truncate(podcast.Description, 500))

	out, err := g.completer.Complete(ctx, llm.Request{
		System:      pitchSystemPrompt,
		Prompt:      b.String(),
		MaxTokens:   600,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}

	var draft struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal([]byte(llm.StripCodeFences(out)), &draft); err != nil {
		return nil, fmt.Errorf("parse pitch: %w", err)
	}
	if strings.TrimSpace(draft.Subject) == "" || strings.TrimSpace(draft.Body) == "" {
		return nil, fmt.Errorf("pitch missing subject or body")
	}
	return &Pitch{
		ProfileID: profile.ID,
		PodcastID: podcast.ExternalID,
		Subject:   strings.TrimSpace(draft.Subject),
		Body:      strings.TrimSpace(draft.Body),
		Source:    PitchFromLLM,
	}, nil
}

func (g *PitchGenerator) fromTemplate(profile domain.Profile, podcast domain.Podcast) (*Pitch, error) {
	bindings := map[string]any{
		"profile": map[string]any{
			"name":    profile.Name,
			"bio":     profile.Bio,
			"tagline": profile.Tagline,
		},
		"podcast": map[string]any{
			"name":          podcast.Name,
			"categories":    strings.Join(podcast.Categories, ", "),
			"audience_size": podcast.AudienceSize,
		},
	}
	subject, err := g.subject.RenderString(bindings)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	body, err := g.body.RenderString(bindings)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	return &Pitch{
		ProfileID: profile.ID,
		PodcastID: podcast.ExternalID,
		Subject:   strings.TrimSpace(subject),
		Body:      collapseBlankLines(body),
		Source:    PitchFromTemplate,
	}, nil
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?"); i >= 0 {
		return s[:i+1]
	}
	return s
}

func collapseBlankLines(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
