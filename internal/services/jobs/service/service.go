// Package service implements the capture job store and its state machine
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/logger"
	"progcap/internal/services/jobs/domain"
	"progcap/internal/services/jobs/repo"
)

// Service defines the jobs service contract
type Service interface {
	domain.ServicePort
}

// Svc implements the jobs service
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	db     repokit.TxRunner
	log    logger.Logger
	newID  func() uuid.UUID
}

// New constructs a jobs service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo]) *Svc {
	if db == nil {
		panic("jobs.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("jobs.Service requires a non nil Repo binder")
	}
	return &Svc{
		Repo:   binder.Bind(db),
		binder: binder,
		db:     db,
		log:    *logger.Named("jobs"),
		newID:  uuid.New,
	}
}

// Binder exposes the repo binder so other services can join a transaction
func (s *Svc) Binder() repokit.Binder[repo.Repo] { return s.binder }

// createAttempts bounds the insert/lookup loop when the active job finishes between the two
const createAttempts = 3

// Create inserts a pending job or coalesces onto the active job with the same key
func (s *Svc) Create(ctx context.Context, in domain.NewJob) (domain.Job, bool, error) {
	if !in.Type.Valid() {
		return domain.Job{}, false, perr.WithField(perr.Validationf("unknown job type %q", in.Type), "job_type")
	}
	if in.Repo.ID <= 0 {
		return domain.Job{}, false, perr.WithField(perr.Validationf("repository id must be positive"), "repository.id")
	}
	if !in.Backend.Valid() {
		return domain.Job{}, false, perr.InvalidArgf("unknown backend %q", in.Backend)
	}
	if err := in.Window.Validate(); err != nil {
		return domain.Job{}, false, err
	}

	j := domain.Job{
		ID:        s.newID(),
		Type:      in.Type,
		Repo:      in.Repo,
		Backend:   in.Backend,
		Status:    domain.Pending,
		Feature:   in.Feature,
		InCohort:  in.InCohort,
		WindowKey: in.Window.Key(),
		Window:    in.Window,
		Attempt:   max(in.Attempt, 1),
		RetryOf:   in.RetryOf,
		Metadata:  map[string]any{},
	}
	j.RootJobID = j.ID
	if in.RootJobID != nil {
		j.RootJobID = *in.RootJobID
	}
	for k, v := range in.Metadata {
		j.Metadata[k] = v
	}
	j.Metadata[domain.MetaRepoName] = in.Repo.Name
	j.Metadata[domain.MetaRetryCount] = j.Attempt - 1
	j.Metadata[domain.MetaInCohort] = in.InCohort
	if in.RetryOf != nil {
		j.Metadata[domain.MetaRetryOf] = in.RetryOf.String()
	}

	for range createAttempts {
		out, ok, err := s.Repo.InsertIfIdle(ctx, j)
		if err != nil {
			return domain.Job{}, false, err
		}
		if ok {
			s.log.Info().
				Str("job_id", out.ID.String()).
				Str("job_type", string(out.Type)).
				Int64("repo_id", out.Repo.ID).
				Str("backend", string(out.Backend)).
				Int("attempt", out.Attempt).
				Msg("job created")
			return out, false, nil
		}
		active, err := s.Repo.ActiveByKey(ctx, j.Repo.ID, j.Type, j.WindowKey)
		if err == nil {
			s.log.Info().
				Str("job_id", active.ID.String()).
				Str("window_key", j.WindowKey).
				Msg("submission coalesced onto active job")
			return active, true, nil
		}
		if !errors.Is(err, perr.ErrNotFound) {
			return domain.Job{}, false, err
		}
	}
	return domain.Job{}, false, perr.Conflictf("job key %s kept changing state, try again", j.WindowKey)
}

// Get returns a job by id
func (s *Svc) Get(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	j, err := s.Repo.Get(ctx, id)
	if errors.Is(err, perr.ErrNotFound) {
		return domain.Job{}, perr.NotFoundf("job %s not found", id)
	}
	return j, err
}

// MarkProcessing moves a pending job to processing
func (s *Svc) MarkProcessing(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	j, err := s.Repo.MarkProcessing(ctx, id)
	if err != nil {
		return domain.Job{}, s.transitionErr(ctx, err, id, domain.Processing)
	}
	s.log.Info().Str("job_id", id.String()).Str("backend", string(j.Backend)).Msg("job processing")
	return j, nil
}

// Complete moves a processing job to completed
func (s *Svc) Complete(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	j, err := s.Repo.Complete(ctx, id)
	if err != nil {
		return domain.Job{}, s.transitionErr(ctx, err, id, domain.Completed)
	}
	s.log.Info().Str("job_id", id.String()).Str("backend", string(j.Backend)).Msg("job completed")
	return j, nil
}

// Fail moves a pending or processing job to failed
func (s *Svc) Fail(ctx context.Context, id uuid.UUID, in domain.FailInput) (domain.Job, error) {
	if in.Error == "" {
		in.Error = "failed"
	}
	j, err := s.Repo.Fail(ctx, id, []domain.Status{domain.Pending, domain.Processing}, in)
	if err != nil {
		return domain.Job{}, s.transitionErr(ctx, err, id, domain.Failed)
	}
	s.log.Warn().
		Str("job_id", id.String()).
		Str("backend", string(j.Backend)).
		Str("category", string(in.Category)).
		Str("error", in.Error).
		Msg("job failed")
	return j, nil
}

// transitionErr turns a conditional update miss into NotFound or Conflict
func (s *Svc) transitionErr(ctx context.Context, err error, id uuid.UUID, to domain.Status) error {
	if !errors.Is(err, perr.ErrNotFound) {
		return err
	}
	cur, gerr := s.Repo.Get(ctx, id)
	if gerr != nil {
		if errors.Is(gerr, perr.ErrNotFound) {
			return perr.NotFoundf("job %s not found", id)
		}
		return gerr
	}
	return perr.Conflictf("job %s is %s and cannot move to %s", id, cur.Status, to)
}

// List returns jobs matching f, newest first
func (s *Svc) List(ctx context.Context, f domain.Filter) ([]domain.Job, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, perr.WithField(perr.InvalidArgf("unknown status %q", f.Status), "status")
	}
	return s.Repo.List(ctx, f)
}

// Stats counts jobs by backend and status created since, plus every active job
func (s *Svc) Stats(ctx context.Context, since time.Time) ([]domain.StatRow, error) {
	return s.Repo.Stats(ctx, since)
}
