// Package service implements the dead letter queue
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"progcap/internal/core/classify"
	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/logger"
	"progcap/internal/platform/metrics"
	"progcap/internal/services/deadletter/domain"
	"progcap/internal/services/deadletter/repo"
	jobsdomain "progcap/internal/services/jobs/domain"
	jobsrepo "progcap/internal/services/jobs/repo"
)

// Config holds the enqueue gate
type Config struct {
	// RetryMax is the attempt at which a transient failure stops being retried
	RetryMax int
}

// Svc implements domain.ServicePort
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	jobs   repokit.Binder[jobsrepo.Repo]
	db     repokit.TxRunner
	cfg    Config
	log    logger.Logger
}

// New constructs a dead letter service; jobs binds the job store inside enqueue transactions
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo], jobs repokit.Binder[jobsrepo.Repo], cfg Config) *Svc {
	if db == nil {
		panic("deadletter.Service requires a non nil TxRunner")
	}
	if binder == nil || jobs == nil {
		panic("deadletter.Service requires non nil Repo binders")
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	return &Svc{
		Repo:   binder.Bind(db),
		binder: binder,
		jobs:   jobs,
		db:     db,
		cfg:    cfg,
		log:    *logger.Named("deadletter"),
	}
}

// Classify maps a raw failure onto its category
func (s *Svc) Classify(f classify.Failure) classify.Category { return classify.Classify(f) }

// Eligible reports whether a failed job belongs in the queue rather than a retry
func (s *Svc) Eligible(j jobsdomain.Job) bool {
	return j.Status == jobsdomain.Failed &&
		(j.Attempt >= s.cfg.RetryMax || !classify.Transient(j.Category()))
}

// Enqueue quarantines a failed job together with the errors of its whole retry chain
func (s *Svc) Enqueue(ctx context.Context, jobID uuid.UUID) (domain.Entry, bool, error) {
	var (
		out     domain.Entry
		created bool
	)
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		jr, r := s.jobs.Bind(q), s.binder.Bind(q)

		j, err := jr.Get(ctx, jobID)
		if errors.Is(err, perr.ErrNotFound) {
			return perr.NotFoundf("job %s not found", jobID)
		}
		if err != nil {
			return err
		}
		if prev, err := r.ByJob(ctx, jobID); err == nil {
			out = prev
			return nil
		} else if !errors.Is(err, perr.ErrNotFound) {
			return err
		}
		if j.Status != jobsdomain.Failed {
			return perr.Conflictf("job %s is %s; only failed jobs can be dead-lettered", jobID, j.Status)
		}
		if !s.Eligible(j) {
			return perr.Conflictf("job %s failed with %s on attempt %d of %d and is still retryable",
				jobID, j.Category(), j.Attempt, s.cfg.RetryMax)
		}

		chain, err := jr.FailureChain(ctx, jobID)
		if err != nil {
			return err
		}
		cat := j.Category()
		e := domain.Entry{
			ID:                         uuid.New(),
			OriginalJobID:              j.ID,
			RootJobID:                  j.RootJobID,
			JobType:                    j.Type,
			RepoID:                     j.Repo.ID,
			Category:                   cat,
			History:                    chain,
			RequiresManualIntervention: classify.ManualIntervention(cat),
		}
		ins, ok, err := r.InsertIfAbsent(ctx, e)
		if err != nil {
			return err
		}
		if !ok {
			// lost a race with a concurrent enqueue of the same job
			out, err = r.ByJob(ctx, jobID)
			return err
		}
		out, created = ins, true
		return nil
	})
	if err != nil {
		return domain.Entry{}, false, err
	}
	if created {
		metrics.DeadLetters.WithLabelValues(string(out.Category)).Inc()
		s.log.Warn().
			Str("job_id", jobID.String()).
			Str("dead_letter_id", out.ID.String()).
			Str("category", string(out.Category)).
			Bool("manual", out.RequiresManualIntervention).
			Int("attempts", len(out.History)).
			Msg("job dead-lettered")
	}
	return out, created, nil
}

// List returns entries newest first
func (s *Svc) List(ctx context.Context, f domain.Filter) ([]domain.Entry, error) {
	if f.Category != "" && classify.Parse(string(f.Category)) != f.Category {
		return nil, perr.WithField(perr.InvalidArgf("unknown category %q", f.Category), "category")
	}
	return s.Repo.List(ctx, f)
}

// Get returns one entry
func (s *Svc) Get(ctx context.Context, id uuid.UUID) (domain.Entry, error) {
	e, err := s.Repo.Get(ctx, id)
	if errors.Is(err, perr.ErrNotFound) {
		return domain.Entry{}, perr.NotFoundf("dead letter %s not found", id)
	}
	return e, err
}

// Resolve closes an open entry; resolving twice is a conflict
func (s *Svc) Resolve(ctx context.Context, id uuid.UUID, actor, note string) (domain.Entry, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return domain.Entry{}, perr.WithField(perr.Validationf("actor is required"), "actor")
	}
	e, err := s.Repo.Resolve(ctx, id, actor, strings.TrimSpace(note))
	if err == nil {
		s.log.Info().Str("dead_letter_id", id.String()).Str("actor", actor).Msg("dead letter resolved")
		return e, nil
	}
	if !errors.Is(err, perr.ErrNotFound) {
		return domain.Entry{}, err
	}
	if _, gerr := s.Get(ctx, id); gerr != nil {
		return domain.Entry{}, gerr
	}
	return domain.Entry{}, perr.Conflictf("dead letter %s is already resolved", id)
}

// Counts returns unresolved entries per category
func (s *Svc) Counts(ctx context.Context) ([]domain.CategoryCount, error) {
	return s.Repo.Counts(ctx)
}
