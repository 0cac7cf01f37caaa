// Package sink persists normalised job records, isolating per-record
// failures so one bad record never drops the rest of the batch.
package sink

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgconn"

	"jobmate/scan-service/internal/model"
)

// Default enumerations applied when the normalizer left a field unset.
const (
	DefaultEmploymentType = "FULL_TIME"
	DefaultWorkMode       = "ONSITE"
	DefaultSource         = "SCAN"
)

// Execer is the narrow slice of pgxpool.Pool the sink needs; tests supply a
// fake.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Sink upserts job records into the jobs table. Identity is the external
// URL: re-scraping the same posting updates the existing row. Records with
// no external URL always insert (SQL NULLs never conflict).
type Sink struct {
	db Execer
}

// New constructs a Sink on top of a pgx pool or transaction.
func New(db Execer) *Sink {
	return &Sink{db: db}
}

const upsertSQL = `
INSERT INTO jobs (title, company, location, employment_type, work_mode, source, external_url, description, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (external_url) DO UPDATE SET
	title           = EXCLUDED.title,
	company         = EXCLUDED.company,
	location        = EXCLUDED.location,
	employment_type = EXCLUDED.employment_type,
	work_mode       = EXCLUDED.work_mode,
	description     = EXCLUDED.description,
	posted_at       = EXCLUDED.posted_at,
	updated_at      = now()`

// Persist upserts each record independently. A failure on one record is
// logged with the record's title and processing continues with the next.
func (s *Sink) Persist(ctx context.Context, jobs []model.JobCreateInput) error {
	if len(jobs) == 0 {
		return nil
	}

	var upserted int
	for _, j := range jobs {
		j = WithDefaults(j)
		_, err := s.db.Exec(ctx, upsertSQL,
			j.Title,
			j.Company,
			j.Location,
			j.EmploymentType,
			j.WorkMode,
			j.Source,
			j.ExternalURL, // nil reaches storage as NULL
			j.Description,
			j.PostedAt,
		)
		if err != nil {
			log.Printf("[sink] Upsert of %q failed: %v — continuing", j.Title, err)
			continue
		}
		upserted++
	}

	log.Printf("[sink] Persisted %d/%d job record(s)", upserted, len(jobs))
	return nil
}

// WithDefaults fills unset enumerations with their defaults. The merge is
// explicit: nothing downstream relies on ambient coercion.
func WithDefaults(j model.JobCreateInput) model.JobCreateInput {
	if j.EmploymentType == "" {
		j.EmploymentType = DefaultEmploymentType
	}
	if j.WorkMode == "" {
		j.WorkMode = DefaultWorkMode
	}
	if j.Source == "" {
		j.Source = DefaultSource
	}
	return j
}
