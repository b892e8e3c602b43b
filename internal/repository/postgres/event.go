package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/podmatch/internal/domain"
)

// EventRepo stores inbound email provider events.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed outreach event store.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Record inserts ev, assigning an id if it has none. Replayed events with
// the same provider message id and type are ignored.
func (r *EventRepo) Record(ctx context.Context, ev *domain.OutreachEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_events (id, event_type, message_id, recipient, podcast_id, occurred_at, payload)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7)
		ON CONFLICT (message_id, event_type) DO NOTHING
	`, ev.ID, ev.Type, ev.MessageID, ev.Recipient, ev.PodcastID, ev.OccurredAt, ev.Payload)
	if err != nil {
		return fmt.Errorf("record outreach event: %w", err)
	}
	return nil
}
