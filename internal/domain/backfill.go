package domain

import "time"

// FilterMode records how the final candidate list was chosen.
type FilterMode string

const (
	FilterLLM        FilterMode = "llm"
	FilterSimilarity FilterMode = "similarity"
)

// BackfillSummary is the result of one backfill invocation.
type BackfillSummary struct {
	RunID             string      `json:"run_id"`
	ProfileID         string      `json:"profile_id"`
	ProfileKind       ProfileKind `json:"profile_kind"`
	SpreadsheetID     string      `json:"spreadsheet_id"`
	CandidatesFound   int         `json:"candidates_found"`
	Selected          int         `json:"selected"`
	NewAdded          int         `json:"new_added"`
	DuplicatesSkipped int         `json:"duplicates_skipped"`
	FilterMode        FilterMode  `json:"filter_mode"`
	DedupDegraded     bool        `json:"dedup_degraded,omitempty"`
	StartedAt         time.Time   `json:"started_at"`
	DurationMS        int64       `json:"duration_ms"`
}

// OutreachEvent is an inbound email provider notification.
type OutreachEvent struct {
	ID         string    `json:"id" db:"id"`
	Type       string    `json:"type" db:"event_type"`
	MessageID  string    `json:"message_id" db:"message_id"`
	Recipient  string    `json:"recipient" db:"recipient"`
	PodcastID  string    `json:"podcast_id,omitempty" db:"podcast_id"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	Payload    []byte    `json:"-" db:"payload"`
}
