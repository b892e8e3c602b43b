package domain

import (
	"strconv"
	"strings"
	"time"
)

// Podcast is the catalog record matched against profiles.
type Podcast struct {
	ID              string     `json:"id" db:"id"`
	ExternalID      string     `json:"external_id" db:"external_id"`
	Name            string     `json:"name" db:"name"`
	Description     string     `json:"description" db:"description"`
	AudienceSize    int        `json:"audience_size" db:"audience_size"`
	Categories      []string   `json:"categories" db:"categories"`
	Rating          float64    `json:"rating" db:"rating"`
	EpisodeCount    int        `json:"episode_count" db:"episode_count"`
	ContactEmail    string     `json:"contact_email,omitempty" db:"contact_email"`
	RSSURL          string     `json:"rss_url,omitempty" db:"rss_url"`
	WebsiteURL      string     `json:"website_url,omitempty" db:"website_url"`
	LastPublishedAt *time.Time `json:"last_published_at,omitempty" db:"last_published_at"`
	Embedding       []float32  `json:"-" db:"embedding"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Candidate is a podcast returned by similarity search.
type Candidate struct {
	Podcast    Podcast `json:"podcast"`
	Similarity float64 `json:"similarity"`
}

// CompatibilityScore is one podcast's fit for a profile.
type CompatibilityScore struct {
	PodcastID string `json:"podcast_id"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OutreachRow is one line of a client or prospect outreach spreadsheet.
// The external podcast ID is always the first column.
type OutreachRow struct {
	ExternalID   string
	Name         string
	AudienceSize int
	Categories   []string
	Rating       float64
	ContactEmail string
	Similarity   float64
	AddedAt      time.Time
}

// OutreachHeader is the header row matching OutreachRow.Values.
var OutreachHeader = []string{
	"Podcast ID", "Name", "Audience", "Categories", "Rating", "Contact", "Match", "Added",
}

// RowFromCandidate converts a filtered candidate into a sheet row.
func RowFromCandidate(c Candidate, now time.Time) OutreachRow {
	return OutreachRow{
		ExternalID:   c.Podcast.ExternalID,
		Name:         c.Podcast.Name,
		AudienceSize: c.Podcast.AudienceSize,
		Categories:   c.Podcast.Categories,
		Rating:       c.Podcast.Rating,
		ContactEmail: c.Podcast.ContactEmail,
		Similarity:   c.Similarity,
		AddedAt:      now,
	}
}

// Values renders the row in sheet column order.
func (r OutreachRow) Values() []any {
	return []any{
		r.ExternalID,
		r.Name,
		r.AudienceSize,
		strings.Join(r.Categories, ", "),
		strconv.FormatFloat(r.Rating, 'f', 1, 64),
		r.ContactEmail,
		strconv.FormatFloat(r.Similarity, 'f', 3, 64),
		r.AddedAt.UTC().Format("2006-01-02"),
	}
}
