// Package repo writes lifecycle events to clickhouse
package repo

import (
	"context"
	"time"

	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/store"
	"progcap/internal/services/timeline/domain"
)

// Table is the ledger table name
const Table = "capture_events"

const ddl = `
CREATE TABLE IF NOT EXISTS capture_events (
	ts        DateTime64(3, 'UTC'),
	job_id    UUID,
	feature   LowCardinality(String),
	backend   LowCardinality(String),
	job_type  LowCardinality(String),
	repo_id   Int64,
	event     LowCardinality(String),
	category  LowCardinality(String),
	detail    String
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (event, ts, job_id)`

// Repo is the ledger storage surface
type Repo interface {
	Ensure(ctx context.Context) error
	Insert(ctx context.Context, events []domain.Event) error
	Summary(ctx context.Context, since time.Time) ([]domain.SummaryRow, error)
}

// CH is a clickhouse ledger
type CH struct{ db store.Clickhouse }

// NewCH binds the ledger to a clickhouse seam
func NewCH(db store.Clickhouse) *CH { return &CH{db: db} }

// Ensure creates the table
func (r *CH) Ensure(ctx context.Context) error {
	if err := r.db.Exec(ctx, ddl); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "create capture_events")
	}
	return nil
}

// Insert sends one batch
func (r *CH) Insert(ctx context.Context, events []domain.Event) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{
			e.TS.UTC(), e.JobID, e.Feature, e.Backend, e.JobType, e.RepoID, string(e.Kind), e.Category, e.Detail,
		})
	}
	if err := r.db.Insert(ctx, Table, rows); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "insert %d capture events", len(rows))
	}
	return nil
}

// Summary counts events since a point in time
func (r *CH) Summary(ctx context.Context, since time.Time) ([]domain.SummaryRow, error) {
	const sql = `
		SELECT event, backend, count()
		FROM capture_events
		WHERE ts >= ?
		GROUP BY event, backend
		ORDER BY event, backend`
	rows, err := r.db.Query(ctx, sql, since.UTC())
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "summarize capture events")
	}
	defer rows.Close()

	var out []domain.SummaryRow
	for rows.Next() {
		var (
			s    domain.SummaryRow
			kind string
		)
		if err := rows.Scan(&kind, &s.Backend, &s.Count); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeDB, "scan capture event summary")
		}
		s.Kind = domain.Kind(kind)
		out = append(out, s)
	}
	return out, rows.Err()
}
