// Package service implements the progress tracker
package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/logger"
	jobsdomain "progcap/internal/services/jobs/domain"
	"progcap/internal/services/progress/domain"
	"progcap/internal/services/progress/repo"
)

// JobReader looks up the owning job to explain rejected writes
type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (jobsdomain.Job, error)
}

// Svc implements domain.ServicePort
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	db     repokit.TxRunner
	jobs   JobReader
	log    logger.Logger
}

// New constructs a progress service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo], jobs JobReader) *Svc {
	if db == nil {
		panic("progress.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("progress.Service requires a non nil Repo binder")
	}
	if jobs == nil {
		panic("progress.Service requires a JobReader")
	}
	return &Svc{
		Repo:   binder.Bind(db),
		binder: binder,
		db:     db,
		jobs:   jobs,
		log:    *logger.Named("progress"),
	}
}

// Binder exposes the repo binder so the reconciler can delete progress in its own transaction
func (s *Svc) Binder() repokit.Binder[repo.Repo] { return s.binder }

// Start creates the record for a processing job
// calling it again after a backend restart keeps the counters and only fills a missing total
func (s *Svc) Start(ctx context.Context, jobID uuid.UUID, total *int) (domain.Record, error) {
	if total != nil && *total < 0 {
		return domain.Record{}, perr.WithField(perr.InvalidArgf("total_items must not be negative"), "total_items")
	}
	rec, err := s.Repo.Start(ctx, jobID, total)
	if err != nil {
		return domain.Record{}, s.explain(ctx, err, jobID)
	}
	s.log.Debug().Str("job_id", jobID.String()).Int("resume_offset", rec.Done()).Msg("progress started")
	return rec, nil
}

// SetTotal records the work size once the backend has enumerated it
func (s *Svc) SetTotal(ctx context.Context, jobID uuid.UUID, total int) (domain.Record, error) {
	if total < 0 {
		return domain.Record{}, perr.WithField(perr.InvalidArgf("total_items must not be negative"), "total_items")
	}
	rec, err := s.Repo.SetTotal(ctx, jobID, total)
	if err != nil {
		return domain.Record{}, s.explain(ctx, err, jobID)
	}
	return rec, nil
}

// Advance applies a monotonic increment; negative deltas are a caller bug
func (s *Svc) Advance(ctx context.Context, jobID uuid.UUID, d domain.Delta) (domain.Record, error) {
	if d.Processed < 0 {
		return domain.Record{}, perr.WithField(perr.InvalidArgf("processed_delta must not be negative"), "processed_delta")
	}
	if d.Failed < 0 {
		return domain.Record{}, perr.WithField(perr.InvalidArgf("failed_delta must not be negative"), "failed_delta")
	}
	rec, err := s.Repo.Advance(ctx, jobID, d)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, perr.ErrNotFound) {
		return domain.Record{}, err
	}
	cur, gerr := s.Repo.Get(ctx, jobID)
	if gerr == nil && cur.Total != nil && cur.Done()+d.Processed+d.Failed > *cur.Total {
		return domain.Record{}, perr.InvalidArgf("advance by %d would exceed total %d (at %d)",
			d.Processed+d.Failed, *cur.Total, cur.Done())
	}
	return domain.Record{}, s.explain(ctx, err, jobID)
}

// Snapshot returns counts plus the resume offset
func (s *Svc) Snapshot(ctx context.Context, jobID uuid.UUID) (domain.Snapshot, error) {
	rec, err := s.Repo.Get(ctx, jobID)
	if errors.Is(err, perr.ErrNotFound) {
		return domain.Snapshot{}, perr.NotFoundf("no progress for job %s", jobID)
	}
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.SnapshotOf(rec), nil
}

// Delete removes the record; deleting a missing record is not an error
func (s *Svc) Delete(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.Repo.Delete(ctx, jobID)
	return err
}

// explain turns a write miss into NotFound or Conflict depending on the job
func (s *Svc) explain(ctx context.Context, err error, jobID uuid.UUID) error {
	if !errors.Is(err, perr.ErrNotFound) {
		return err
	}
	j, jerr := s.jobs.Get(ctx, jobID)
	if jerr != nil {
		return jerr
	}
	if j.Status != jobsdomain.Processing {
		return perr.Conflictf("job %s is %s; progress is only recorded while processing", jobID, j.Status)
	}
	return perr.NotFoundf("no progress for job %s, call start first", jobID)
}
