package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxBioChars is how much of a bio goes into embedding input.
const MaxBioChars = 1000

// ProfileKind distinguishes paying clients from prospects.
type ProfileKind string

const (
	ProfileClient   ProfileKind = "client"
	ProfileProspect ProfileKind = "prospect"
)

// Valid reports whether k is a known kind.
func (k ProfileKind) Valid() bool {
	return k == ProfileClient || k == ProfileProspect
}

// Profile is the guest a podcast is matched for.
type Profile struct {
	ID            string      `json:"id" db:"id"`
	Kind          ProfileKind `json:"kind" db:"kind"`
	Name          string      `json:"name" db:"name"`
	Bio           string      `json:"bio" db:"bio"`
	Tagline       string      `json:"tagline,omitempty" db:"tagline"`
	Email         string      `json:"email,omitempty" db:"email"`
	SpreadsheetID string      `json:"spreadsheet_id,omitempty" db:"spreadsheet_id"`
}

// Validate checks the fields needed for scoring and backfill.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Bio) == "" {
		return errors.Join(ErrValidation, errors.New("bio is required"))
	}
	return nil
}

// EmbeddingText builds the embedding input: name, bio (truncated to
// MaxBioChars runes) and tagline, one per line, empty parts skipped.
func (p Profile) EmbeddingText() string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(p.Name); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(p.Bio); s != "" {
		parts = append(parts, Truncate(s, MaxBioChars))
	}
	if s := strings.TrimSpace(p.Tagline); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
