package outreach

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/podmatch/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

var (
	// ErrInvalidSignature is returned for a missing or wrong signature.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownEvent is returned for event types that are not tracked.
	ErrUnknownEvent = errors.New("unknown event type")
)

var trackedEvents = map[string]bool{
	"delivered": true,
	"opened":    true,
	"replied":   true,
	"bounced":   true,
}

// WebhookVerifier checks inbound webhook signatures.
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier returns a verifier. With an empty secret every
// request is accepted.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Sign returns the hex signature of body.
func (v *WebhookVerifier) Sign(body []byte) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks signature against body. A "sha256=" prefix is accepted.
func (v *WebhookVerifier) Verify(body []byte, signature string) error {
	if len(v.secret) == 0 {
		return nil
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(v.Sign(body))) {
		return ErrInvalidSignature
	}
	return nil
}

type webhookPayload struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	PodcastID string `json:"podcast_id"`
	Timestamp string `json:"timestamp"`
}

// ParseEvent decodes a webhook body into an outreach event.
func ParseEvent(body []byte) (*domain.OutreachEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", domain.ErrValidation, err)
	}
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	if !trackedEvents[p.Type] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, p.Type)
	}
	if p.MessageID == "" {
		return nil, fmt.Errorf("%w: message_id is required", domain.ErrValidation)
	}

	occurred := time.Now().UTC()
	if p.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp: %v", domain.ErrValidation, err)
		}
		occurred = t.UTC()
	}
	return &domain.OutreachEvent{
		Type:       p.Type,
		MessageID:  p.MessageID,
		Recipient:  p.Recipient,
		PodcastID:  p.PodcastID,
		OccurredAt: occurred,
		Payload:    body,
	}, nil
}

// EventStore persists outreach events.
type EventStore interface {
	Record(ctx context.Context, ev *domain.OutreachEvent) error
}

// EventIngester verifies, parses and stores webhook deliveries.
type EventIngester struct {
	verifier *WebhookVerifier
	store    EventStore
}

// NewEventIngester wires a verifier and a store.
func NewEventIngester(v *WebhookVerifier, store EventStore) *EventIngester {
	return &EventIngester{verifier: v, store: store}
}

// Ingest handles one webhook body.
func (in *EventIngester) Ingest(ctx context.Context, body []byte, signature string) (*domain.OutreachEvent, error) {
	if err := in.verifier.Verify(body, signature); err != nil {
		return nil, err
	}
	ev, err := ParseEvent(body)
	if err != nil {
		return nil, err
	}
	if err := in.store.Record(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
