// Package repo provides postgres persistence for rollout configuration and history
package repo

import (
	"context"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/store"
	"progcap/internal/services/rollout/domain"
)

// Repo is the persistence surface for rollout state
type Repo interface {
	Get(ctx context.Context, feature string) (domain.Config, error)
	List(ctx context.Context) ([]domain.Config, error)
	// Lock creates the feature at its defaults when missing and holds its row until the transaction ends
	Lock(ctx context.Context, feature string) (domain.Config, error)
	// Save writes c and bumps the version
	Save(ctx context.Context, c domain.Config) (domain.Config, error)
	Append(ctx context.Context, h domain.HistoryEntry) (domain.HistoryEntry, error)
	History(ctx context.Context, feature string, limit int) ([]domain.HistoryEntry, error)
}

type (
	// PG is a Postgres rollout repository
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres rollout repository binder
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of Repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

const cols = ` feature, percentage, strategy, emergency_stop, stop_cleared_at, version, updated_at`

func scan(r store.Row) (domain.Config, error) {
	var c domain.Config
	err := r.Scan(&c.Feature, &c.Percentage, &c.Strategy, &c.EmergencyStop, &c.StopClearedAt, &c.Version, &c.UpdatedAt)
	return c, err
}

func (r *queries) Get(ctx context.Context, feature string) (domain.Config, error) {
	return store.One(ctx, r.q, scan, `SELECT`+cols+` FROM rollout_configs WHERE feature = $1`, feature)
}

func (r *queries) List(ctx context.Context) ([]domain.Config, error) {
	return store.Many(ctx, r.q, scan, `SELECT`+cols+` FROM rollout_configs ORDER BY feature`)
}

func (r *queries) Lock(ctx context.Context, feature string) (domain.Config, error) {
	if _, err := store.Exec(ctx, r.q, `
		INSERT INTO rollout_configs (feature, percentage, strategy, emergency_stop, version, updated_at)
		VALUES ($1, 0, 'hash', false, 0, NOW())
		ON CONFLICT (feature) DO NOTHING`, feature); err != nil {
		return domain.Config{}, perr.FromPostgres(err, "create rollout config")
	}
	c, err := store.One(ctx, r.q, scan, `SELECT`+cols+` FROM rollout_configs WHERE feature = $1 FOR UPDATE`, feature)
	if err != nil {
		return domain.Config{}, perr.FromPostgres(err, "lock rollout config")
	}
	return c, nil
}

func (r *queries) Save(ctx context.Context, c domain.Config) (domain.Config, error) {
	sql := `
		UPDATE rollout_configs
		SET percentage = $2, strategy = $3, emergency_stop = $4, stop_cleared_at = $5,
			version = version + 1, updated_at = NOW()
		WHERE feature = $1
		RETURNING` + cols
	out, err := store.One(ctx, r.q, scan, sql, c.Feature, c.Percentage, string(c.Strategy), c.EmergencyStop, c.StopClearedAt)
	if err != nil {
		return domain.Config{}, perr.FromPostgres(err, "save rollout config")
	}
	return out, nil
}

const historyCols = `
	id, feature, previous_percentage, new_percentage, previous_stop, new_stop,
	previous_strategy, new_strategy, reason, actor, created_at`

func scanHistory(r store.Row) (domain.HistoryEntry, error) {
	var h domain.HistoryEntry
	err := r.Scan(&h.ID, &h.Feature, &h.PreviousPercentage, &h.NewPercentage, &h.PreviousStop, &h.NewStop,
		&h.PreviousStrategy, &h.NewStrategy, &h.Reason, &h.Actor, &h.CreatedAt)
	return h, err
}

func (r *queries) Append(ctx context.Context, h domain.HistoryEntry) (domain.HistoryEntry, error) {
	sql := `
		INSERT INTO rollout_history (
			feature, previous_percentage, new_percentage, previous_stop, new_stop,
			previous_strategy, new_strategy, reason, actor, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING` + historyCols
	out, err := store.One(ctx, r.q, scanHistory, sql,
		h.Feature, h.PreviousPercentage, h.NewPercentage, h.PreviousStop, h.NewStop,
		string(h.PreviousStrategy), string(h.NewStrategy), h.Reason, h.Actor)
	if err != nil {
		return domain.HistoryEntry{}, perr.FromPostgres(err, "append rollout history")
	}
	return out, nil
}

func (r *queries) History(ctx context.Context, feature string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	sql := `SELECT` + historyCols + `
		FROM rollout_history
		WHERE feature = $1
		ORDER BY id DESC
		LIMIT $2`
	return store.Many(ctx, r.q, scanHistory, sql, feature, limit)
}
