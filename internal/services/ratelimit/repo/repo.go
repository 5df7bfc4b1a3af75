// Package repo provides postgres persistence for quota snapshots
package repo

import (
	"context"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/store"
	"progcap/internal/services/ratelimit/domain"
)

// Repo is the persistence surface for quota snapshots
type Repo interface {
	Upsert(ctx context.Context, s domain.Snapshot) (domain.Snapshot, error)
	Get(ctx context.Context, scope string) (domain.Snapshot, error)
	List(ctx context.Context) ([]domain.Snapshot, error)
}

type (
	// PG is a Postgres snapshot repository
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres snapshot repository binder
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of Repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

const cols = ` scope, remaining, quota, reset_at, retry_until, observed_at`

func scan(r store.Row) (domain.Snapshot, error) {
	var s domain.Snapshot
	err := r.Scan(&s.Scope, &s.Remaining, &s.Limit, &s.ResetAt, &s.RetryUntil, &s.ObservedAt)
	return s, err
}

func (r *queries) Upsert(ctx context.Context, s domain.Snapshot) (domain.Snapshot, error) {
	sql := `
		INSERT INTO ratelimit_snapshots (scope, remaining, quota, reset_at, retry_until, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope) DO UPDATE
		SET remaining = EXCLUDED.remaining,
			quota = EXCLUDED.quota,
			reset_at = EXCLUDED.reset_at,
			retry_until = EXCLUDED.retry_until,
			observed_at = EXCLUDED.observed_at
		WHERE ratelimit_snapshots.observed_at <= EXCLUDED.observed_at
		RETURNING` + cols
	out, err := store.One(ctx, r.q, scan, sql, s.Scope, s.Remaining, s.Limit, s.ResetAt, s.RetryUntil, s.ObservedAt)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		// a newer observation already landed
		return r.Get(ctx, s.Scope)
	}
	if err != nil {
		return domain.Snapshot{}, perr.FromPostgres(err, "upsert ratelimit snapshot")
	}
	return out, nil
}

func (r *queries) Get(ctx context.Context, scope string) (domain.Snapshot, error) {
	return store.One(ctx, r.q, scan, `SELECT`+cols+` FROM ratelimit_snapshots WHERE scope = $1`, scope)
}

func (r *queries) List(ctx context.Context) ([]domain.Snapshot, error) {
	return store.Many(ctx, r.q, scan, `SELECT`+cols+` FROM ratelimit_snapshots ORDER BY scope`)
}
