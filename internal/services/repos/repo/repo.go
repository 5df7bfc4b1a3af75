// Package repo provides postgres persistence for tracked repositories
package repo

import (
	"context"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/store"
	"progcap/internal/services/repos/domain"
)

// Repo is the persistence surface for tracked repositories
type Repo interface {
	Get(ctx context.Context, id int64) (domain.Repository, error)
	ByNameKey(ctx context.Context, key string) (domain.Repository, error)
	// Upsert keeps an operator set large flag; a stale row holding the same name is replaced
	Upsert(ctx context.Context, r domain.Repository) (domain.Repository, error)
	SetLarge(ctx context.Context, id int64, large bool) (domain.Repository, error)
}

type (
	// PG is a Postgres repository store
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres repository store binder
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of Repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

const cols = ` repo_id, full_name, name_key, is_large, size_kb, updated_at`

func scan(r store.Row) (domain.Repository, error) {
	var x domain.Repository
	err := r.Scan(&x.ID, &x.FullName, &x.NameKey, &x.IsLarge, &x.SizeKB, &x.UpdatedAt)
	return x, err
}

func (r *queries) Get(ctx context.Context, id int64) (domain.Repository, error) {
	return store.One(ctx, r.q, scan, `SELECT`+cols+` FROM tracked_repositories WHERE repo_id = $1`, id)
}

func (r *queries) ByNameKey(ctx context.Context, key string) (domain.Repository, error) {
	return store.One(ctx, r.q, scan, `SELECT`+cols+` FROM tracked_repositories WHERE name_key = $1`, key)
}

func (r *queries) Upsert(ctx context.Context, x domain.Repository) (domain.Repository, error) {
	if _, err := store.Exec(ctx, r.q,
		`DELETE FROM tracked_repositories WHERE name_key = $1 AND repo_id <> $2`, x.NameKey, x.ID); err != nil {
		return domain.Repository{}, perr.FromPostgres(err, "clear renamed repository")
	}
	sql := `
		INSERT INTO tracked_repositories (repo_id, full_name, name_key, is_large, size_kb, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (repo_id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
			name_key = EXCLUDED.name_key,
			is_large = tracked_repositories.is_large OR EXCLUDED.is_large,
			size_kb = EXCLUDED.size_kb,
			updated_at = NOW()
		RETURNING` + cols
	out, err := store.One(ctx, r.q, scan, sql, x.ID, x.FullName, x.NameKey, x.IsLarge, x.SizeKB)
	if err != nil {
		return domain.Repository{}, perr.FromPostgres(err, "upsert repository")
	}
	return out, nil
}

func (r *queries) SetLarge(ctx context.Context, id int64, large bool) (domain.Repository, error) {
	sql := `
		UPDATE tracked_repositories SET is_large = $2, updated_at = NOW()
		WHERE repo_id = $1
		RETURNING` + cols
	return store.One(ctx, r.q, scan, sql, id, large)
}
