// Package repo provides postgres persistence for dead letter entries
package repo

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"progcap/internal/core/classify"
	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/store"
	"progcap/internal/services/deadletter/domain"
)

// Repo is the persistence surface for the dead letter queue
type Repo interface {
	// InsertIfAbsent inserts e unless an entry for the same job exists; ok=false on conflict
	InsertIfAbsent(ctx context.Context, e domain.Entry) (out domain.Entry, ok bool, err error)
	ByJob(ctx context.Context, jobID uuid.UUID) (domain.Entry, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Entry, error)
	List(ctx context.Context, f domain.Filter) ([]domain.Entry, error)
	// Resolve marks an open entry resolved; a resolved or unknown entry is perr.ErrNotFound
	Resolve(ctx context.Context, id uuid.UUID, actor, note string) (domain.Entry, error)
	Counts(ctx context.Context) ([]domain.CategoryCount, error)
}

type (
	// PG is a Postgres dead letter repository
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres dead letter repository binder
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of Repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

const cols = `
	id, original_job_id, root_job_id, job_type, repo_id, error_category, error_history,
	requires_manual_intervention, created_at, resolved_at, resolved_by, resolution_note`

func scan(r store.Row) (domain.Entry, error) {
	var (
		e        domain.Entry
		category string
		history  []byte
	)
	if err := r.Scan(
		&e.ID, &e.OriginalJobID, &e.RootJobID, &e.JobType, &e.RepoID, &category, &history,
		&e.RequiresManualIntervention, &e.CreatedAt, &e.ResolvedAt, &e.ResolvedBy, &e.ResolutionNote,
	); err != nil {
		return domain.Entry{}, err
	}
	e.Category = classify.Parse(category)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &e.History); err != nil {
			return domain.Entry{}, perr.Wrapf(err, perr.ErrorCodeDB, "decode history of dead letter %s", e.ID)
		}
	}
	return e, nil
}

func (r *queries) InsertIfAbsent(ctx context.Context, e domain.Entry) (domain.Entry, bool, error) {
	history, err := json.Marshal(e.History)
	if err != nil {
		return domain.Entry{}, false, perr.Wrap(err, perr.ErrorCodeJSON, "encode error history")
	}
	sql := `
		INSERT INTO dead_letters (
			id, original_job_id, root_job_id, job_type, repo_id, error_category,
			error_history, requires_manual_intervention, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, NOW())
		ON CONFLICT (original_job_id) DO NOTHING
		RETURNING` + cols
	out, err := store.One(ctx, r.q, scan, sql,
		e.ID, e.OriginalJobID, e.RootJobID, string(e.JobType), e.RepoID, string(e.Category),
		string(history), e.RequiresManualIntervention,
	)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		return domain.Entry{}, false, nil
	}
	if err != nil {
		return domain.Entry{}, false, perr.FromPostgres(err, "insert dead letter")
	}
	return out, true, nil
}

func (r *queries) ByJob(ctx context.Context, jobID uuid.UUID) (domain.Entry, error) {
	return store.One(ctx, r.q, scan, `SELECT`+cols+` FROM dead_letters WHERE original_job_id = $1`, jobID)
}

func (r *queries) Get(ctx context.Context, id uuid.UUID) (domain.Entry, error) {
	return store.One(ctx, r.q, scan, `SELECT`+cols+` FROM dead_letters WHERE id = $1`, id)
}

func (r *queries) List(ctx context.Context, f domain.Filter) ([]domain.Entry, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	sql := `SELECT` + cols + `
		FROM dead_letters
		WHERE ($1 = '' OR error_category = $1)
		AND (NOT $2::boolean OR resolved_at IS NULL)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`
	return store.Many(ctx, r.q, scan, sql, string(f.Category), f.Unresolved, limit, max(f.Offset, 0))
}

func (r *queries) Resolve(ctx context.Context, id uuid.UUID, actor, note string) (domain.Entry, error) {
	sql := `
		UPDATE dead_letters
		SET resolved_at = NOW(), resolved_by = $2, resolution_note = NULLIF($3, '')
		WHERE id = $1 AND resolved_at IS NULL
		RETURNING` + cols
	return store.One(ctx, r.q, scan, sql, id, actor, note)
}

func (r *queries) Counts(ctx context.Context) ([]domain.CategoryCount, error) {
	const sql = `
		SELECT error_category, COUNT(*)
		FROM dead_letters
		WHERE resolved_at IS NULL
		GROUP BY error_category
		ORDER BY error_category`
	return store.Many(ctx, r.q, func(row store.Row) (domain.CategoryCount, error) {
		var (
			c   domain.CategoryCount
			cat string
		)
		err := row.Scan(&cat, &c.Count)
		c.Category = classify.Parse(cat)
		return c, err
	}, sql)
}
