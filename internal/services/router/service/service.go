// Package service implements the hybrid router: backend choice, dispatch and the retry policy
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"progcap/internal/adapters/dispatch"
	"progcap/internal/core/classify"
	"progcap/internal/core/cohort"
	"progcap/internal/core/route"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/logger"
	"progcap/internal/platform/metrics"
	dldomain "progcap/internal/services/deadletter/domain"
	jobsdomain "progcap/internal/services/jobs/domain"
	rldomain "progcap/internal/services/ratelimit/domain"
	reposdomain "progcap/internal/services/repos/domain"
	rolloutdomain "progcap/internal/services/rollout/domain"
	"progcap/internal/services/router/domain"
	tldomain "progcap/internal/services/timeline/domain"
)

// Dispatcher hands a job to an execution backend and waits for the acknowledgement
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) error
}

// DeadLetters is the part of the queue the router needs
type DeadLetters interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) (dldomain.Entry, bool, error)
}

// Config holds routing thresholds
type Config struct {
	Feature         string
	Default         route.Backend
	Freshness       time.Duration
	BatchSize       int
	DispatchTimeout time.Duration
	RetryMax        int
}

func (c Config) withDefaults() Config {
	if c.Feature == "" {
		c.Feature = "progressive_capture"
	}
	if !c.Default.Valid() {
		c.Default = route.Realtime
	}
	if c.Freshness <= 0 {
		c.Freshness = 24 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	return c
}

// Deps are the ports the router talks to
type Deps struct {
	Jobs     jobsdomain.ServicePort
	Repos    reposdomain.Resolver
	Rollout  rolloutdomain.Reader
	Quota    rldomain.Advisor
	DLQ      DeadLetters
	Dispatch Dispatcher
	// Events is optional
	Events tldomain.Recorder
}

// Svc implements domain.ServicePort
type Svc struct {
	d   Deps
	cfg Config
	log logger.Logger
	now func() time.Time
}

// New constructs a router
func New(d Deps, cfg Config) *Svc {
	if d.Jobs == nil || d.Repos == nil || d.Rollout == nil || d.Quota == nil || d.DLQ == nil || d.Dispatch == nil {
		panic("router.Service requires jobs, repos, rollout, quota, dlq and dispatch ports")
	}
	if d.Events == nil {
		d.Events = tldomain.Nop{}
	}
	return &Svc{d: d, cfg: cfg.withDefaults(), log: *logger.Named("router"), now: time.Now}
}

// Config returns the effective configuration
func (s *Svc) Config() Config { return s.cfg }

// submission is a resolved request; retries carry their lineage
type submission struct {
	jobType jobsdomain.Type
	repo    reposdomain.Repository
	req     domain.Request
	attempt int
	retryOf *uuid.UUID
	root    *uuid.UUID
}

// Submit routes, records and dispatches one capture request
func (s *Svc) Submit(ctx context.Context, req domain.Request) (domain.Result, error) {
	if !req.JobType.Valid() {
		return domain.Result{}, perr.WithField(perr.Validationf("unknown job type %q", req.JobType), "job_type")
	}
	req.Window = req.Window.Normalize(s.now())
	if err := req.Window.Validate(); err != nil {
		return domain.Result{}, err
	}
	repo, err := s.resolve(ctx, req)
	if err != nil {
		return domain.Result{}, err
	}
	return s.submit(ctx, submission{jobType: req.JobType, repo: repo, req: req, attempt: 1})
}

func (s *Svc) resolve(ctx context.Context, req domain.Request) (reposdomain.Repository, error) {
	switch {
	case req.RepoID > 0:
		return s.d.Repos.Resolve(ctx, req.RepoID)
	case strings.TrimSpace(req.RepoName) != "":
		return s.d.Repos.ResolveName(ctx, req.RepoName)
	}
	return reposdomain.Repository{}, perr.WithField(perr.Validationf("repository id or name is required"), "repository_id")
}

// decide gathers rollout and quota state and applies the routing rule
func (s *Svc) decide(ctx context.Context, sub submission) (route.Decision, bool) {
	now := s.now()
	in := route.Input{
		WindowAge: sub.req.Window.OldestAge(now),
		ItemCount: sub.req.Window.Count(),
		Large:     sub.repo.IsLarge,
		Freshness: s.cfg.Freshness,
		BatchSize: s.cfg.BatchSize,
		Default:   s.cfg.Default,
	}

	cfg, err := s.d.Rollout.GetConfig(ctx, s.cfg.Feature)
	if err != nil {
		s.log.Warn().Err(err).Str("feature", s.cfg.Feature).Msg("rollout config unreadable, routing as stopped")
		in.EmergencyStop = true
	} else {
		in.EmergencyStop = cfg.EmergencyStop
		in.InCohort = !cfg.EmergencyStop && cohort.Member(cfg.Strategy, s.cfg.Feature, sub.repo.ID, cfg.Percentage)
	}

	if in.InCohort {
		q, err := s.d.Quota.Decide(ctx, string(route.Realtime))
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("rate limit monitor unavailable, routing to default backend")
			in.MonitorDown = true
		case !q.Proceed:
			in.RealtimeThrottled = true
		}
	}
	return route.Decide(in), in.InCohort
}

func (s *Svc) submit(ctx context.Context, sub submission) (domain.Result, error) {
	dec, inCohort := s.decide(ctx, sub)

	j, coalesced, err := s.d.Jobs.Create(ctx, jobsdomain.NewJob{
		Type:      sub.jobType,
		Repo:      jobsdomain.Repository{ID: sub.repo.ID, Name: sub.repo.FullName},
		Backend:   dec.Backend,
		Feature:   s.cfg.Feature,
		InCohort:  inCohort,
		Window:    sub.req.Window,
		Attempt:   sub.attempt,
		RetryOf:   sub.retryOf,
		RootJobID: sub.root,
		Metadata:  map[string]any{jobsdomain.MetaRouteReason: string(dec.Reason)},
	})
	if err != nil {
		// nothing is dispatched for work the store could not record
		return domain.Result{}, err
	}
	if coalesced {
		s.event(ctx, tldomain.Coalesced, j, "", "")
		return domain.Result{JobID: j.ID, Status: j.Status, Backend: j.Backend, Reason: recordedReason(j, dec.Reason), Coalesced: true}, nil
	}

	metrics.Submissions.WithLabelValues(string(dec.Backend), string(dec.Reason)).Inc()
	s.event(ctx, tldomain.Submitted, j, "", string(dec.Reason))
	s.log.Info().
		Str("job_id", j.ID.String()).
		Int64("repo_id", j.Repo.ID).
		Str("backend", string(dec.Backend)).
		Str("reason", string(dec.Reason)).
		Bool("in_cohort", inCohort).
		Int("attempt", j.Attempt).
		Msg("job routed")

	return s.dispatch(ctx, j, dec.Reason)
}

func (s *Svc) dispatch(ctx context.Context, j jobsdomain.Job, reason route.Reason) (domain.Result, error) {
	res := domain.Result{JobID: j.ID, Status: j.Status, Backend: j.Backend, Reason: reason}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	err := s.d.Dispatch.Dispatch(dctx, dispatch.Request{
		JobID:    j.ID.String(),
		JobType:  string(j.Type),
		RepoID:   j.Repo.ID,
		RepoName: j.Repo.Name,
		Window:   j.Window,
		Attempt:  j.Attempt,
		Backend:  j.Backend,
	})
	cancel()

	// the job row is written already, so its terminal state must land even if the caller left
	wctx := context.WithoutCancel(ctx)
	if err != nil {
		metrics.DispatchFailures.WithLabelValues(string(j.Backend)).Inc()
		msg := "dispatch failed: " + err.Error()
		failed, ferr := s.d.Jobs.Fail(wctx, j.ID, jobsdomain.FailInput{Error: msg, Category: classify.ExternalAPI})
		if ferr != nil {
			s.log.Error().Err(ferr).Str("job_id", j.ID.String()).Msg("could not fail undispatched job")
			return res, ferr
		}
		s.event(wctx, tldomain.DispatchFailed, failed, string(classify.ExternalAPI), msg)

		res.Status, res.Error = failed.Status, msg
		out, ferr := s.AfterFailure(wctx, failed)
		if ferr != nil {
			s.log.Warn().Err(ferr).Str("job_id", j.ID.String()).Msg("dispatch failure follow-up failed")
		}
		if out.Retry != nil {
			res.RetryJobID = &out.Retry.JobID
		}
		return res, nil
	}

	proc, err := s.d.Jobs.MarkProcessing(wctx, j.ID)
	if err != nil {
		// left pending; the reconciler fails it once it outlives the timeout
		s.log.Error().Err(err).Str("job_id", j.ID.String()).Msg("dispatched job could not be marked processing")
		return res, err
	}
	s.event(wctx, tldomain.Dispatched, proc, "", "")
	res.Status = proc.Status
	return res, nil
}

// Fail classifies f, fails the job and follows up with a retry or a dead letter
func (s *Svc) Fail(ctx context.Context, jobID uuid.UUID, f classify.Failure) (domain.Outcome, error) {
	cat := classify.Classify(f)
	j, err := s.d.Jobs.Fail(ctx, jobID, jobsdomain.FailInput{Error: f.Text(), Category: cat})
	if err != nil {
		return domain.Outcome{}, err
	}
	s.event(ctx, tldomain.Failed, j, string(cat), f.Text())
	return s.AfterFailure(ctx, j)
}

// AfterFailure retries transient failures below the retry maximum and dead-letters the rest
func (s *Svc) AfterFailure(ctx context.Context, j jobsdomain.Job) (domain.Outcome, error) {
	out := domain.Outcome{Job: j}
	if j.Status != jobsdomain.Failed {
		return out, perr.Conflictf("job %s is %s, not failed", j.ID, j.Status)
	}

	cat := j.Category()
	if classify.Transient(cat) && j.Attempt < s.cfg.RetryMax {
		res, err := s.retry(ctx, j)
		if err != nil {
			return out, err
		}
		out.Retry = &res
		metrics.Retries.WithLabelValues(string(cat)).Inc()
		s.event(ctx, tldomain.Retried, j, string(cat), res.JobID.String())
		return out, nil
	}

	e, created, err := s.d.DLQ.Enqueue(ctx, j.ID)
	if err != nil {
		return out, err
	}
	out.DeadLetter = &e
	if created {
		s.event(ctx, tldomain.DeadLettered, j, string(cat), e.ID.String())
	}
	return out, nil
}

// retry resubmits j as a new job that references it; routing is evaluated again
func (s *Svc) retry(ctx context.Context, j jobsdomain.Job) (domain.Result, error) {
	repo, err := s.d.Repos.Resolve(ctx, j.Repo.ID)
	if err != nil {
		return domain.Result{}, err
	}
	id, root := j.ID, j.RootJobID
	s.log.Info().
		Str("job_id", j.ID.String()).
		Str("category", string(j.Category())).
		Int("next_attempt", j.Attempt+1).
		Msg("retrying failed job")
	return s.submit(ctx, submission{
		jobType: j.Type,
		repo:    repo,
		req:     domain.Request{JobType: j.Type, RepoID: j.Repo.ID, Window: j.Window},
		attempt: j.Attempt + 1,
		retryOf: &id,
		root:    &root,
	})
}

// Complete records a backend reported success; progress stays as the audit trail
func (s *Svc) Complete(ctx context.Context, jobID uuid.UUID) (jobsdomain.Job, error) {
	j, err := s.d.Jobs.Complete(ctx, jobID)
	if err != nil {
		return jobsdomain.Job{}, err
	}
	s.event(ctx, tldomain.Completed, j, "", "")
	return j, nil
}

func (s *Svc) event(ctx context.Context, k tldomain.Kind, j jobsdomain.Job, category, detail string) {
	s.d.Events.Record(ctx, tldomain.Event{
		TS:       s.now().UTC(),
		JobID:    j.ID,
		Feature:  j.Feature,
		Backend:  string(j.Backend),
		JobType:  string(j.Type),
		RepoID:   j.Repo.ID,
		Kind:     k,
		Category: category,
		Detail:   detail,
	})
}

// recordedReason is the routing reason stored on an existing job
func recordedReason(j jobsdomain.Job, fallback route.Reason) route.Reason {
	if r, ok := j.Metadata[jobsdomain.MetaRouteReason].(string); ok && r != "" {
		return route.Reason(r)
	}
	return fallback
}
