// Package service implements the stuck-job reconciler
package service

import (
	"context"
	"errors"
	"math"
	"time"

	"progcap/internal/core/classify"
	"progcap/internal/core/route"
	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/logger"
	"progcap/internal/platform/metrics"
	jobsdomain "progcap/internal/services/jobs/domain"
	jobsrepo "progcap/internal/services/jobs/repo"
	progressrepo "progcap/internal/services/progress/repo"
	"progcap/internal/services/reconciler/domain"
	routerdomain "progcap/internal/services/router/domain"
	tldomain "progcap/internal/services/timeline/domain"
)

// Config bounds the sweep
type Config struct {
	Timeout     time.Duration
	Interval    time.Duration
	Batch       int
	StatsWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Minute
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	if c.StatsWindow <= 0 {
		c.StatsWindow = 24 * time.Hour
	}
	return c
}

// Svc implements domain.ServicePort
type Svc struct {
	db       repokit.TxRunner
	jobs     repokit.Binder[jobsrepo.Repo]
	progress repokit.Binder[progressrepo.Repo]
	follow   routerdomain.FollowUp
	events   tldomain.Recorder
	cfg      Config
	log      logger.Logger
	now      func() time.Time
}

// New constructs a reconciler; follow receives every job it fails and events may be nil
func New(
	db repokit.TxRunner,
	jobs repokit.Binder[jobsrepo.Repo],
	progress repokit.Binder[progressrepo.Repo],
	follow routerdomain.FollowUp,
	events tldomain.Recorder,
	cfg Config,
) *Svc {
	if db == nil {
		panic("reconciler.Service requires a non nil TxRunner")
	}
	if jobs == nil || progress == nil {
		panic("reconciler.Service requires jobs and progress binders")
	}
	if follow == nil {
		panic("reconciler.Service requires a failure follow-up")
	}
	if events == nil {
		events = tldomain.Nop{}
	}
	return &Svc{
		db:       db,
		jobs:     jobs,
		progress: progress,
		follow:   follow,
		events:   events,
		cfg:      cfg.withDefaults(),
		log:      *logger.Named("reconciler"),
		now:      time.Now,
	}
}

// Sweep fails every job stuck past the timeout, one transaction per job
// a cancelled sweep keeps what it committed and the next run picks up the rest
func (s *Svc) Sweep(ctx context.Context) (domain.Report, error) {
	start := s.now()
	rep := domain.Report{
		StartedAt: start,
		Cutoff:    start.Add(-s.cfg.Timeout),
		ByBackend: map[route.Backend]int{},
	}

	for _, st := range []jobsdomain.Status{jobsdomain.Processing, jobsdomain.Pending} {
		if err := s.sweepStatus(ctx, st, &rep); err != nil {
			s.logReport(rep, err)
			return rep, err
		}
	}

	stats, err := s.stats(ctx, start)
	if err != nil {
		s.log.Warn().Err(err).Msg("job stats unavailable")
	}
	rep.Stats = stats
	s.logReport(rep, nil)
	return rep, nil
}

func (s *Svc) sweepStatus(ctx context.Context, st jobsdomain.Status, rep *domain.Report) error {
	r := s.jobs.Bind(s.db)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.Stuck(ctx, st, rep.Cutoff, s.cfg.Batch)
		if err != nil {
			return err
		}
		done := 0
		for _, j := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			failed, ok, err := s.reconcile(ctx, j, rep.Cutoff)
			switch {
			case err != nil:
				rep.Errors++
				s.log.Error().Err(err).Str("job_id", j.ID.String()).Msg("reconcile failed")
				continue
			case !ok:
				rep.Skipped++
				continue
			}
			done++
			rep.Reconciled = append(rep.Reconciled, failed.ID)
			rep.ByBackend[failed.Backend]++
			s.followUp(ctx, failed)
		}
		// a page with no progress would come back unchanged
		if len(page) < s.cfg.Batch || done == 0 {
			return nil
		}
	}
}

// reconcile fails j if it is still stuck and drops its progress; ok=false when a backend got there first
func (s *Svc) reconcile(ctx context.Context, j jobsdomain.Job, cutoff time.Time) (jobsdomain.Job, bool, error) {
	msg, clock := domain.ErrTimedOut, j.CreatedAt
	if j.Status == jobsdomain.Pending {
		msg = domain.ErrNotAcknowledged
	} else if j.StartedAt != nil {
		clock = *j.StartedAt
	}
	hours := math.Round(s.now().Sub(clock).Hours()*100) / 100

	var (
		out jobsdomain.Job
		ok  bool
	)
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		failed, err := s.jobs.Bind(q).FailStuck(ctx, j.ID, j.Status, cutoff, jobsdomain.FailInput{
			Error:    msg,
			Category: classify.Timeout,
			Metadata: map[string]any{jobsdomain.MetaOriginalDurationHours: hours},
		})
		if errors.Is(err, perr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := s.progress.Bind(q).Delete(ctx, j.ID); err != nil {
			return err
		}
		out, ok = failed, true
		return nil
	})
	if err != nil || !ok {
		return jobsdomain.Job{}, false, err
	}

	metrics.Reconciled.WithLabelValues(string(out.Backend)).Inc()
	s.events.Record(ctx, tldomain.Event{
		TS:       s.now().UTC(),
		JobID:    out.ID,
		Feature:  out.Feature,
		Backend:  string(out.Backend),
		JobType:  string(out.Type),
		RepoID:   out.Repo.ID,
		Kind:     tldomain.Reconciled,
		Category: string(classify.Timeout),
		Detail:   msg,
	})
	s.log.Warn().
		Str("job_id", out.ID.String()).
		Str("backend", string(out.Backend)).
		Str("was", string(j.Status)).
		Float64("hours", hours).
		Msg("stuck job failed")
	return out, true, nil
}

func (s *Svc) followUp(ctx context.Context, j jobsdomain.Job) {
	out, err := s.follow.AfterFailure(ctx, j)
	switch {
	case err != nil:
		s.log.Error().Err(err).Str("job_id", j.ID.String()).Msg("follow-up after reconcile failed")
	case out.Retry != nil:
		s.log.Info().Str("job_id", j.ID.String()).Str("retry_job_id", out.Retry.JobID.String()).Msg("reconciled job retried")
	case out.DeadLetter != nil:
		s.log.Info().Str("job_id", j.ID.String()).Str("dead_letter_id", out.DeadLetter.ID.String()).Msg("reconciled job dead-lettered")
	}
}

// stats refreshes the per backend and status gauges
func (s *Svc) stats(ctx context.Context, now time.Time) ([]jobsdomain.StatRow, error) {
	rows, err := s.jobs.Bind(s.db).Stats(ctx, now.Add(-s.cfg.StatsWindow))
	if err != nil {
		return nil, err
	}
	metrics.Jobs.Reset()
	for _, r := range rows {
		metrics.Jobs.WithLabelValues(string(r.Backend), string(r.Status)).Set(float64(r.Count))
	}
	return rows, nil
}

func (s *Svc) logReport(rep domain.Report, err error) {
	ev := s.log.Info()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	byStatus := map[route.Backend]map[jobsdomain.Status]int64{}
	for _, r := range rep.Stats {
		if byStatus[r.Backend] == nil {
			byStatus[r.Backend] = map[jobsdomain.Status]int64{}
		}
		byStatus[r.Backend][r.Status] = r.Count
	}
	for b, m := range byStatus {
		total := m[jobsdomain.Completed] + m[jobsdomain.Failed]
		if total > 0 {
			ev = ev.Float64("failure_rate_"+string(b), float64(m[jobsdomain.Failed])/float64(total))
		}
	}
	ev.Int("reconciled", len(rep.Reconciled)).
		Int("realtime", rep.ByBackend[route.Realtime]).
		Int("bulk", rep.ByBackend[route.Bulk]).
		Int("skipped", rep.Skipped).
		Int("errors", rep.Errors).
		Dur("took", s.now().Sub(rep.StartedAt)).
		Msg("stuck job sweep")
}

// Run sweeps now and then on every interval until ctx ends
func (s *Svc) Run(ctx context.Context) error {
	_, _ = s.Sweep(ctx)

	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_, _ = s.Sweep(ctx)
		}
	}
}
