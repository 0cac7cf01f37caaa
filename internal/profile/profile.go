// Package profile is the Postgres adapter for the profile-lookup boundary.
// Profile CRUD belongs to the surrounding system; the pipeline only reads
// the search-relevant columns.
package profile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/scan-service/internal/model"
)

// Source implements pipeline.ProfileSource on the profiles table.
type Source struct {
	pool *pgxpool.Pool
}

// NewSource constructs a Source.
func NewSource(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

// Profile loads the search-relevant slice of one profile.
func (s *Source) Profile(ctx context.Context, profileID string) (*model.Profile, error) {
	var p model.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, target_roles, location, target_sites
		 FROM profiles
		 WHERE id = $1`,
		profileID,
	).Scan(&p.ID, &p.UserID, &p.TargetRoles, &p.Location, &p.TargetSites)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("profile %s not found", profileID)
	}
	if err != nil {
		return nil, fmt.Errorf("query profile %s: %w", profileID, err)
	}
	return &p, nil
}
