// Package repo provides postgres persistence for progress records
package repo

import (
	"context"

	"github.com/google/uuid"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/store"
	"progcap/internal/services/progress/domain"
)

// Repo is the persistence surface for progress
// writes only apply while the owning job is processing; a miss returns perr.ErrNotFound
type Repo interface {
	// Start creates the record or keeps the existing counters on restart
	Start(ctx context.Context, jobID uuid.UUID, total *int) (domain.Record, error)
	SetTotal(ctx context.Context, jobID uuid.UUID, total int) (domain.Record, error)
	Advance(ctx context.Context, jobID uuid.UUID, d domain.Delta) (domain.Record, error)
	Get(ctx context.Context, jobID uuid.UUID) (domain.Record, error)
	// Delete reports whether a record existed
	Delete(ctx context.Context, jobID uuid.UUID) (bool, error)
}

type (
	// PG is a Postgres progress repository
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres progress repository binder
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of Repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

const cols = ` job_id, total_items, processed_items, failed_items, current_item, created_at, updated_at`

func scan(r store.Row) (domain.Record, error) {
	var rec domain.Record
	err := r.Scan(&rec.JobID, &rec.Total, &rec.Processed, &rec.Failed, &rec.CurrentItem, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (r *queries) one(ctx context.Context, op, sql string, args ...any) (domain.Record, error) {
	rec, err := store.One(ctx, r.q, scan, sql, args...)
	if err != nil && !perr.IsCode(err, perr.ErrorCodeNotFound) {
		return domain.Record{}, perr.FromPostgres(err, op)
	}
	return rec, err
}

// Start is a single statement so a job leaving processing cannot slip in a record
func (r *queries) Start(ctx context.Context, jobID uuid.UUID, total *int) (domain.Record, error) {
	sql := `
		INSERT INTO capture_progress (job_id, total_items, created_at, updated_at)
		SELECT id, $2::int, NOW(), NOW() FROM capture_jobs WHERE id = $1 AND status = 'processing'
		ON CONFLICT (job_id) DO UPDATE
		SET total_items = COALESCE(EXCLUDED.total_items, capture_progress.total_items),
			updated_at = NOW()
		RETURNING` + cols
	return r.one(ctx, "start progress", sql, jobID, total)
}

func (r *queries) SetTotal(ctx context.Context, jobID uuid.UUID, total int) (domain.Record, error) {
	sql := `
		UPDATE capture_progress p
		SET total_items = $2, updated_at = NOW()
		FROM capture_jobs j
		WHERE p.job_id = $1 AND j.id = p.job_id AND j.status = 'processing'
		RETURNING` + prefixed
	return r.one(ctx, "set progress total", sql, jobID, total)
}

func (r *queries) Advance(ctx context.Context, jobID uuid.UUID, d domain.Delta) (domain.Record, error) {
	sql := `
		UPDATE capture_progress p
		SET processed_items = p.processed_items + $2,
			failed_items = p.failed_items + $3,
			current_item = CASE WHEN $4 = '' THEN p.current_item ELSE $4 END,
			updated_at = NOW()
		FROM capture_jobs j
		WHERE p.job_id = $1 AND j.id = p.job_id AND j.status = 'processing'
		AND (p.total_items IS NULL OR p.processed_items + p.failed_items + $2 + $3 <= p.total_items)
		RETURNING` + prefixed
	return r.one(ctx, "advance progress", sql, jobID, d.Processed, d.Failed, d.CurrentItem)
}

const prefixed = ` p.job_id, p.total_items, p.processed_items, p.failed_items, p.current_item, p.created_at, p.updated_at`

func (r *queries) Get(ctx context.Context, jobID uuid.UUID) (domain.Record, error) {
	return r.one(ctx, "get progress", `SELECT`+cols+` FROM capture_progress WHERE job_id = $1`, jobID)
}

func (r *queries) Delete(ctx context.Context, jobID uuid.UUID) (bool, error) {
	tag, err := store.Exec(ctx, r.q, `DELETE FROM capture_progress WHERE job_id = $1`, jobID)
	if err != nil {
		return false, perr.FromPostgres(err, "delete progress")
	}
	return tag.RowsAffected() > 0, nil
}
