package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/podmatch/internal/domain"
)

// ProfileRepo reads client and prospect profiles.
type ProfileRepo struct{ db *sql.DB }

// NewProfileRepo creates a Postgres-backed profile repository.
func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

// Get loads the profile of the given kind.
func (r *ProfileRepo) Get(ctx context.Context, kind domain.ProfileKind, id string) (*domain.Profile, error) {
	var table string
	switch kind {
	case domain.ProfileClient:
		table = "clients"
	case domain.ProfileProspect:
		table = "prospects"
	default:
		return nil, fmt.Errorf("%w: unknown profile kind %q", domain.ErrValidation, kind)
	}

	p := &domain.Profile{Kind: kind}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(name,''), COALESCE(bio,''), COALESCE(tagline,''),
		       COALESCE(email,''), COALESCE(spreadsheet_id,'')
		FROM `+table+`
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Bio, &p.Tagline, &p.Email, &p.SpreadsheetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	return p, nil
}
