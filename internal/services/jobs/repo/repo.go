// Package repo provides postgres persistence for capture jobs
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"progcap/internal/core/classify"
	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/store"
	"progcap/internal/services/jobs/domain"
)

// Repo is the persistence surface for jobs
// every transition is a conditional update; a miss returns perr.ErrNotFound
type Repo interface {
	// InsertIfIdle inserts j unless an active job holds the same key; ok=false on conflict
	InsertIfIdle(ctx context.Context, j domain.Job) (out domain.Job, ok bool, err error)
	Get(ctx context.Context, id uuid.UUID) (domain.Job, error)
	ActiveByKey(ctx context.Context, repoID int64, t domain.Type, windowKey string) (domain.Job, error)

	MarkProcessing(ctx context.Context, id uuid.UUID) (domain.Job, error)
	Complete(ctx context.Context, id uuid.UUID) (domain.Job, error)
	Fail(ctx context.Context, id uuid.UUID, from []domain.Status, in domain.FailInput) (domain.Job, error)
	// FailStuck fails a job only while it is still in status and older than cutoff
	FailStuck(ctx context.Context, id uuid.UUID, status domain.Status, cutoff time.Time, in domain.FailInput) (domain.Job, error)

	List(ctx context.Context, f domain.Filter) ([]domain.Job, error)
	Stats(ctx context.Context, since time.Time) ([]domain.StatRow, error)
	// Stuck pages jobs in status whose clock (started_at, or created_at for pending) is before cutoff, oldest first
	Stuck(ctx context.Context, status domain.Status, cutoff time.Time, limit int) ([]domain.Job, error)
	CountFailedSince(ctx context.Context, feature string, since time.Time) (int, error)
	// FailureChain walks retry_of from id back to the root, oldest first
	FailureChain(ctx context.Context, id uuid.UUID) ([]domain.ChainLink, error)
}

type (
	// PG is a Postgres jobs repository
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres jobs repository binder
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of Repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

const cols = `
	id, job_type, repo_id, repo_name, backend, status, feature, in_cohort,
	window_key, "window", attempt, retry_of, root_job_id, error, error_category,
	metadata, created_at, updated_at, started_at, completed_at`

func scanJob(r store.Row) (domain.Job, error) {
	var (
		j        domain.Job
		win, md  []byte
		category *string
	)
	if err := r.Scan(
		&j.ID, &j.Type, &j.Repo.ID, &j.Repo.Name, &j.Backend, &j.Status, &j.Feature, &j.InCohort,
		&j.WindowKey, &win, &j.Attempt, &j.RetryOf, &j.RootJobID, &j.Error, &category,
		&md, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
	); err != nil {
		return domain.Job{}, err
	}
	if category != nil {
		c := classify.Parse(*category)
		j.ErrorCategory = &c
	}
	if len(win) > 0 {
		if err := json.Unmarshal(win, &j.Window); err != nil {
			return domain.Job{}, perr.Wrapf(err, perr.ErrorCodeDB, "decode window of job %s", j.ID)
		}
	}
	j.Metadata = map[string]any{}
	if len(md) > 0 {
		if err := json.Unmarshal(md, &j.Metadata); err != nil {
			return domain.Job{}, perr.Wrapf(err, perr.ErrorCodeDB, "decode metadata of job %s", j.ID)
		}
	}
	return j, nil
}

func jsonArg(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeJSON, "encode jsonb argument")
	}
	return string(b), nil
}

func statusStrings(ss []domain.Status) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, string(s))
	}
	return out
}

func categoryArg(c classify.Category) *string {
	if c == "" {
		return nil
	}
	s := string(c)
	return &s
}

// InsertIfIdle relies on the partial unique index over active jobs
func (r *queries) InsertIfIdle(ctx context.Context, j domain.Job) (domain.Job, bool, error) {
	win, err := jsonArg(j.Window)
	if err != nil {
		return domain.Job{}, false, err
	}
	md, err := jsonArg(j.Metadata)
	if err != nil {
		return domain.Job{}, false, err
	}
	sql := `
		INSERT INTO capture_jobs (
			id, job_type, repo_id, repo_name, backend, status, feature, in_cohort,
			window_key, "window", attempt, retry_of, root_job_id, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8, $9::jsonb, $10, $11, $12, $13::jsonb, NOW(), NOW())
		ON CONFLICT (repo_id, job_type, window_key) WHERE status IN ('pending', 'processing')
		DO NOTHING
		RETURNING` + cols
	out, err := store.One(ctx, r.q, scanJob, sql,
		j.ID, string(j.Type), j.Repo.ID, j.Repo.Name, string(j.Backend), j.Feature, j.InCohort,
		j.WindowKey, win, j.Attempt, j.RetryOf, j.RootJobID, md,
	)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, perr.FromPostgres(err, "insert capture job")
	}
	return out, true, nil
}

func (r *queries) Get(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	return store.One(ctx, r.q, scanJob, `SELECT`+cols+` FROM capture_jobs WHERE id = $1`, id)
}

func (r *queries) ActiveByKey(ctx context.Context, repoID int64, t domain.Type, windowKey string) (domain.Job, error) {
	const where = ` FROM capture_jobs
		WHERE repo_id = $1 AND job_type = $2 AND window_key = $3
		AND status IN ('pending', 'processing')`
	return store.One(ctx, r.q, scanJob, `SELECT`+cols+where, repoID, string(t), windowKey)
}

func (r *queries) MarkProcessing(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	sql := `
		UPDATE capture_jobs
		SET status = 'processing', started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING` + cols
	return store.One(ctx, r.q, scanJob, sql, id)
}

func (r *queries) Complete(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	sql := `
		UPDATE capture_jobs
		SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING` + cols
	return store.One(ctx, r.q, scanJob, sql, id)
}

// Fail keeps started_at consistent for jobs failed straight from pending
func (r *queries) Fail(ctx context.Context, id uuid.UUID, from []domain.Status, in domain.FailInput) (domain.Job, error) {
	md, err := jsonArg(in.Metadata)
	if err != nil {
		return domain.Job{}, err
	}
	sql := `
		UPDATE capture_jobs
		SET status = 'failed',
			error = $2,
			error_category = $3,
			metadata = metadata || $4::jsonb,
			started_at = COALESCE(started_at, NOW()),
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($5::text[])
		RETURNING` + cols
	return store.One(ctx, r.q, scanJob, sql, id, in.Error, categoryArg(in.Category), md, statusStrings(from))
}

func (r *queries) FailStuck(ctx context.Context, id uuid.UUID, status domain.Status, cutoff time.Time, in domain.FailInput) (domain.Job, error) {
	md, err := jsonArg(in.Metadata)
	if err != nil {
		return domain.Job{}, err
	}
	sql := `
		UPDATE capture_jobs
		SET status = 'failed',
			error = $4,
			error_category = $5,
			metadata = metadata || $6::jsonb,
			started_at = COALESCE(started_at, NOW()),
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = $2 AND COALESCE(started_at, created_at) < $3
		RETURNING` + cols
	return store.One(ctx, r.q, scanJob, sql, id, string(status), cutoff, in.Error, categoryArg(in.Category), md)
}

func (r *queries) List(ctx context.Context, f domain.Filter) ([]domain.Job, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	sql := `SELECT` + cols + `
		FROM capture_jobs
		WHERE ($1 = '' OR status = $1)
		AND ($2 = '' OR backend = $2)
		AND ($3 = '' OR job_type = $3)
		AND ($4::bigint = 0 OR repo_id = $4::bigint)
		ORDER BY created_at DESC, id
		LIMIT $5 OFFSET $6`
	return store.Many(ctx, r.q, scanJob, sql,
		string(f.Status), string(f.Backend), string(f.Type), f.RepoID, limit, max(f.Offset, 0))
}

func (r *queries) Stats(ctx context.Context, since time.Time) ([]domain.StatRow, error) {
	const sql = `
		SELECT backend, status, COUNT(*)
		FROM capture_jobs
		WHERE created_at >= $1 OR status IN ('pending', 'processing')
		GROUP BY backend, status
		ORDER BY backend, status`
	return store.Many(ctx, r.q, func(row store.Row) (domain.StatRow, error) {
		var s domain.StatRow
		err := row.Scan(&s.Backend, &s.Status, &s.Count)
		return s, err
	}, sql, since)
}

func (r *queries) Stuck(ctx context.Context, status domain.Status, cutoff time.Time, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := `SELECT` + cols + `
		FROM capture_jobs
		WHERE status = $1 AND COALESCE(started_at, created_at) < $2
		ORDER BY COALESCE(started_at, created_at), id
		LIMIT $3`
	return store.Many(ctx, r.q, scanJob, sql, string(status), cutoff, limit)
}

func (r *queries) CountFailedSince(ctx context.Context, feature string, since time.Time) (int, error) {
	const sql = `
		SELECT COUNT(*)::int
		FROM capture_jobs
		WHERE feature = $1 AND in_cohort AND status = 'failed' AND completed_at >= $2`
	return store.Scalar[int](ctx, r.q, sql, feature, since)
}

func (r *queries) FailureChain(ctx context.Context, id uuid.UUID) ([]domain.ChainLink, error) {
	const sql = `
		WITH RECURSIVE chain AS (
			SELECT id, retry_of, attempt, error, error_category, completed_at, 0 AS depth
			FROM capture_jobs WHERE id = $1
			UNION ALL
			SELECT j.id, j.retry_of, j.attempt, j.error, j.error_category, j.completed_at, c.depth + 1
			FROM capture_jobs j JOIN chain c ON j.id = c.retry_of
			WHERE c.depth < 64
		)
		SELECT id, attempt, COALESCE(error, ''), COALESCE(error_category, 'unknown'), completed_at
		FROM chain
		ORDER BY depth DESC`
	return store.Many(ctx, r.q, func(row store.Row) (domain.ChainLink, error) {
		var (
			l   domain.ChainLink
			cat string
		)
		if err := row.Scan(&l.JobID, &l.Attempt, &l.Error, &cat, &l.CompletedAt); err != nil {
			return domain.ChainLink{}, err
		}
		l.Category = classify.Parse(cat)
		return l, nil
	}, sql, id)
}
