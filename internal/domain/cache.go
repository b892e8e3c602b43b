package domain

import (
	"encoding/json"
	"time"
)

// StaleAfter is the advisory age after which a cache snapshot is flagged.
const StaleAfter = 7 * 24 * time.Hour

// CacheSource names the table a cached podcast snapshot came from.
type CacheSource string

const (
	SourceClientDashboard   CacheSource = "client_dashboard"
	SourceProspectDashboard CacheSource = "prospect_dashboard"
	SourceBooking           CacheSource = "booking"
)

// Priority orders sources on conflict: client dashboard wins over prospect
// dashboard wins over booking.
func (s CacheSource) Priority() int {
	switch s {
	case SourceClientDashboard:
		return 3
	case SourceProspectDashboard:
		return 2
	case SourceBooking:
		return 1
	default:
		return 0
	}
}

// CacheEntry is a denormalized podcast snapshot plus where it came from.
type CacheEntry struct {
	Podcast      Podcast         `json:"podcast"`
	Source       CacheSource     `json:"source"`
	OwnerID      string          `json:"owner_id"`
	CachedAt     time.Time       `json:"cached_at"`
	Demographics json.RawMessage `json:"demographics,omitempty"`
	FromProvider bool            `json:"from_provider,omitempty"`
}

// IsStale reports whether the snapshot is older than StaleAfter at now.
// It is advisory: stale entries are still served.
func (e CacheEntry) IsStale(now time.Time) bool {
	return now.Sub(e.CachedAt) > StaleAfter
}
