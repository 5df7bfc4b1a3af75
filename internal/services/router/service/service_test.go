package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"progcap/internal/adapters/dispatch"
	"progcap/internal/core/classify"
	"progcap/internal/core/cohort"
	"progcap/internal/core/route"
	"progcap/internal/core/window"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/store/storetest"
	"progcap/internal/platform/testkit"
	dldomain "progcap/internal/services/deadletter/domain"
	dlrepo "progcap/internal/services/deadletter/repo"
	dlservice "progcap/internal/services/deadletter/service"
	jobsdomain "progcap/internal/services/jobs/domain"
	jobsrepo "progcap/internal/services/jobs/repo"
	jobsservice "progcap/internal/services/jobs/service"
	rldomain "progcap/internal/services/ratelimit/domain"
	reposdomain "progcap/internal/services/repos/domain"
	rolloutdomain "progcap/internal/services/rollout/domain"
	rolloutrepo "progcap/internal/services/rollout/repo"
	rolloutservice "progcap/internal/services/rollout/service"
	"progcap/internal/services/router/domain"
	tldomain "progcap/internal/services/timeline/domain"
)

const feature = "progressive_capture"

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeRepos map[int64]reposdomain.Repository

func (f fakeRepos) Resolve(_ context.Context, id int64) (reposdomain.Repository, error) {
	r, ok := f[id]
	if !ok {
		return reposdomain.Repository{}, perr.Validationf("unknown repository %d", id)
	}
	return r, nil
}

func (f fakeRepos) ResolveName(_ context.Context, name string) (reposdomain.Repository, error) {
	for _, r := range f {
		if strings.EqualFold(r.FullName, name) {
			return r, nil
		}
	}
	return reposdomain.Repository{}, perr.Validationf("unknown repository %q", name)
}

type fakeQuota struct {
	dec rldomain.Decision
	err error
}

func (f *fakeQuota) Decide(context.Context, string) (rldomain.Decision, error) { return f.dec, f.err }

type fakeDispatch struct {
	mu   sync.Mutex
	err  error
	reqs []dispatch.Request
}

func (f *fakeDispatch) Dispatch(_ context.Context, r dispatch.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, r)
	return f.err
}

func (f *fakeDispatch) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeEvents struct {
	mu    sync.Mutex
	kinds []tldomain.Kind
}

func (f *fakeEvents) Record(_ context.Context, e tldomain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, e.Kind)
}

func (f *fakeEvents) has(k tldomain.Kind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.kinds {
		if x == k {
			return true
		}
	}
	return false
}

type fixture struct {
	r        *Svc
	jobs     *jobsrepo.Mem
	rollout  *rolloutservice.Svc
	dlq      *dlservice.Svc
	quota    *fakeQuota
	dispatch *fakeDispatch
	events   *fakeEvents
}

func setup(t *testing.T) fixture {
	t.Helper()
	tx := &storetest.Tx{}
	jm := jobsrepo.NewMem()
	f := fixture{
		jobs:     jm,
		rollout:  rolloutservice.New(tx, rolloutrepo.NewMem()),
		dlq:      dlservice.New(tx, dlrepo.NewMem(), jm, dlservice.Config{RetryMax: 3}),
		quota:    &fakeQuota{dec: rldomain.Decision{Proceed: true}},
		dispatch: &fakeDispatch{},
		events:   &fakeEvents{},
	}
	f.r = New(Deps{
		Jobs: jobsservice.New(tx, jm),
		Repos: fakeRepos{
			7:  {ID: 7, FullName: "acme/api"},
			8:  {ID: 8, FullName: "acme/monolith", IsLarge: true},
			99: {ID: 99, FullName: "acme/web"},
		},
		Rollout:  f.rollout,
		Quota:    f.quota,
		DLQ:      f.dlq,
		Dispatch: f.dispatch,
		Events:   f.events,
	}, Config{Feature: feature, RetryMax: 3})
	f.r.now = func() time.Time { return now }
	return f
}

func (f fixture) percentage(t *testing.T, pct int) {
	t.Helper()
	if _, err := f.rollout.SetPercentage(context.Background(), feature, pct, "test", "ops"); err != nil {
		t.Fatalf("SetPercentage: %v", err)
	}
}

func (f fixture) stop(t *testing.T, stop bool) {
	t.Helper()
	if _, err := f.rollout.SetEmergencyStop(context.Background(), feature, stop, "test", "ops"); err != nil {
		t.Fatalf("SetEmergencyStop: %v", err)
	}
}

func ago(d time.Duration) window.Window {
	since := now.Add(-d)
	return window.Window{Since: &since}
}

func req(repoID int64, w window.Window) domain.Request {
	return domain.Request{JobType: jobsdomain.TypeCommits, RepoID: repoID, Window: w}
}

func TestNew_PanicsOnMissingPorts(t *testing.T) {
	t.Parallel()
	testkit.MustPanic(t, func() { New(Deps{}, Config{}) })
}

func TestSubmit_OutsideCohortUsesDefault(t *testing.T) {
	t.Parallel()
	f := setup(t)

	res, err := f.r.Submit(context.Background(), req(7, ago(45*24*time.Hour)))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Backend != route.Realtime || res.Reason != route.ReasonNotInCohort {
		t.Fatalf("result = %+v, want realtime/not_in_cohort", res)
	}
	if res.Status != jobsdomain.Processing {
		t.Fatalf("status = %s, want processing after ack", res.Status)
	}
	j, _ := f.jobs.Get(context.Background(), res.JobID)
	if j.InCohort {
		t.Fatalf("job recorded as in cohort at 0%%")
	}
}

func TestSubmit_StaleWindowInCohortGoesBulk(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.percentage(t, 100)

	res, err := f.r.Submit(context.Background(), req(7, ago(45*24*time.Hour)))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Backend != route.Bulk || res.Reason != route.ReasonStaleWindow {
		t.Fatalf("result = %+v, want bulk/stale_window", res)
	}
	if f.dispatch.reqs[0].Backend != route.Bulk {
		t.Fatalf("dispatched to %s", f.dispatch.reqs[0].Backend)
	}
	if !f.events.has(tldomain.Submitted) || !f.events.has(tldomain.Dispatched) {
		t.Fatalf("events = %v", f.events.kinds)
	}
}

func TestSubmit_BulkTriggers(t *testing.T) {
	t.Parallel()

	items := make([]string, 51)
	for i := range items {
		items[i] = uuid.NewString()
	}
	tests := []struct {
		name   string
		repo   int64
		w      window.Window
		want   route.Backend
		reason route.Reason
	}{
		{"fresh small window", 7, ago(2 * time.Hour), route.Realtime, route.ReasonFreshWindow},
		{"51 explicit items", 7, window.Window{Items: items}, route.Bulk, route.ReasonBatchSize},
		{"50 explicit items", 7, window.Window{Items: items[:50]}, route.Realtime, route.ReasonFreshWindow},
		{"large repository", 8, ago(time.Hour), route.Bulk, route.ReasonLargeRepo},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := setup(t)
			f.percentage(t, 100)
			res, err := f.r.Submit(context.Background(), req(tc.repo, tc.w))
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if res.Backend != tc.want || res.Reason != tc.reason {
				t.Fatalf("result = %s/%s, want %s/%s", res.Backend, res.Reason, tc.want, tc.reason)
			}
		})
	}
}

func TestSubmit_EmergencyStopAndClear(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	f.percentage(t, 100)
	f.stop(t, true)

	res, err := f.r.Submit(ctx, req(7, ago(45*24*time.Hour)))
	if err != nil {
		t.Fatalf("Submit stopped: %v", err)
	}
	if res.Backend != route.Realtime || res.Reason != route.ReasonEmergencyStop {
		t.Fatalf("stopped result = %+v", res)
	}
	if _, err := f.r.Complete(ctx, res.JobID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	f.stop(t, false)
	cfg, _ := f.rollout.GetConfig(ctx, feature)
	if cfg.Percentage != 100 {
		t.Fatalf("percentage = %d after clearing stop", cfg.Percentage)
	}
	res, err = f.r.Submit(ctx, req(7, ago(45*24*time.Hour)))
	if err != nil {
		t.Fatalf("Submit cleared: %v", err)
	}
	if res.Backend != route.Bulk || res.Reason != route.ReasonStaleWindow {
		t.Fatalf("cleared result = %+v", res)
	}
}

func TestSubmit_CohortMatchesHash(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.percentage(t, 50)

	for id := range int64(40) {
		repoID := 1000 + id
		f.r.d.Repos.(fakeRepos)[repoID] = reposdomain.Repository{ID: repoID, FullName: "acme/r"}
	}
	for id := range int64(40) {
		repoID := 1000 + id
		res, err := f.r.Submit(context.Background(), req(repoID, ago(45*24*time.Hour)))
		if err != nil {
			t.Fatalf("Submit %d: %v", repoID, err)
		}
		want := route.Realtime
		if cohort.Member(cohort.Hash, feature, repoID, 50) {
			want = route.Bulk
		}
		if res.Backend != want {
			t.Fatalf("repo %d routed to %s, want %s", repoID, res.Backend, want)
		}
	}
}

func TestSubmit_CoalescesIdenticalKey(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	w := ago(3 * time.Hour)

	first, err := f.r.Submit(ctx, req(7, w))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.r.Submit(ctx, req(7, w))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Coalesced || second.JobID != first.JobID {
		t.Fatalf("second = %+v, want coalesced onto %s", second, first.JobID)
	}
	if f.dispatch.calls() != 1 {
		t.Fatalf("dispatched %d times", f.dispatch.calls())
	}
	if n := len(f.jobs.All()); n != 1 {
		t.Fatalf("%d jobs stored", n)
	}
}

func TestSubmit_OpenWindowCoalescesAsClockMoves(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	w := ago(3 * time.Hour)

	first, err := f.r.Submit(ctx, req(7, w))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	f.r.now = func() time.Time { return now.Add(2 * time.Second) }
	second, err := f.r.Submit(ctx, req(7, w))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Coalesced || second.JobID != first.JobID {
		t.Fatalf("second = %+v, want coalesced onto %s", second, first.JobID)
	}
	if f.dispatch.calls() != 1 || len(f.jobs.All()) != 1 {
		t.Fatalf("dispatches=%d jobs=%d, want 1 and 1", f.dispatch.calls(), len(f.jobs.All()))
	}
}

func TestSubmit_CoalescedReportsRecordedReason(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	w := ago(3 * time.Hour)

	first, err := f.r.Submit(ctx, req(7, w))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	// routing inputs change between submissions; the live job keeps its reason
	f.stop(t, true)
	second, err := f.r.Submit(ctx, req(7, w))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Coalesced {
		t.Fatalf("second = %+v, want coalesced", second)
	}
	if second.Reason != first.Reason {
		t.Fatalf("coalesced reason = %s, want recorded %s", second.Reason, first.Reason)
	}
}

func TestSubmit_DispatchFailureRetriesThenDeadLetters(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	f.dispatch.err = errors.New("connection refused")

	res, err := f.r.Submit(ctx, req(7, ago(time.Hour)))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != jobsdomain.Failed || !strings.Contains(res.Error, "dispatch failed") {
		t.Fatalf("result = %+v", res)
	}
	if res.RetryJobID == nil {
		t.Fatalf("no retry recorded")
	}

	all := f.jobs.All()
	if len(all) != 3 {
		t.Fatalf("%d jobs, want 3 attempts", len(all))
	}
	for _, j := range all {
		if j.Status != jobsdomain.Failed || j.Category() != classify.ExternalAPI {
			t.Fatalf("job %d: %s/%s", j.Attempt, j.Status, j.Category())
		}
	}
	entries, _ := f.dlq.List(ctx, dldomain.Filter{})
	if len(entries) != 1 || entries[0].RequiresManualIntervention {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].RootJobID != res.JobID {
		t.Fatalf("root = %s, want %s", entries[0].RootJobID, res.JobID)
	}
	if f.dispatch.calls() != 3 {
		t.Fatalf("dispatch calls = %d", f.dispatch.calls())
	}
}

func TestFail_TransientRetriesUntilDeadLetter(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()

	res, err := f.r.Submit(ctx, req(7, ago(time.Hour)))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	id := res.JobID
	for attempt := 1; attempt <= 2; attempt++ {
		out, err := f.r.Fail(ctx, id, classify.Failure{HTTPStatus: 502, Message: "bad gateway"})
		if err != nil {
			t.Fatalf("Fail attempt %d: %v", attempt, err)
		}
		if out.Retry == nil || out.DeadLetter != nil {
			t.Fatalf("attempt %d outcome = %+v", attempt, out)
		}
		next, _ := f.jobs.Get(ctx, out.Retry.JobID)
		if next.Attempt != attempt+1 || next.RetryOf == nil || *next.RetryOf != id || next.RootJobID != res.JobID {
			t.Fatalf("retry lineage = %+v", next)
		}
		id = out.Retry.JobID
	}

	out, err := f.r.Fail(ctx, id, classify.Failure{HTTPStatus: 502, Message: "bad gateway"})
	if err != nil {
		t.Fatalf("final Fail: %v", err)
	}
	if out.Retry != nil || out.DeadLetter == nil {
		t.Fatalf("final outcome = %+v", out)
	}
	if out.DeadLetter.RequiresManualIntervention || len(out.DeadLetter.History) != 3 {
		t.Fatalf("entry = %+v", out.DeadLetter)
	}
	if !f.events.has(tldomain.Retried) || !f.events.has(tldomain.DeadLettered) {
		t.Fatalf("events = %v", f.events.kinds)
	}
}

func TestFail_ValidationDeadLettersImmediately(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()

	res, _ := f.r.Submit(ctx, req(7, ago(time.Hour)))
	out, err := f.r.Fail(ctx, res.JobID, classify.Failure{HTTPStatus: 422, Message: "unprocessable"})
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if out.DeadLetter == nil || !out.DeadLetter.RequiresManualIntervention {
		t.Fatalf("outcome = %+v", out)
	}
	if out.DeadLetter.Category != classify.Validation {
		t.Fatalf("category = %s", out.DeadLetter.Category)
	}
}

type failingJobs struct{ jobsdomain.ServicePort }

func (failingJobs) Create(context.Context, jobsdomain.NewJob) (jobsdomain.Job, bool, error) {
	return jobsdomain.Job{}, false, perr.Unavailablef("job store down")
}

func TestSubmit_FailsClosedWhenStoreIsDown(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.r.d.Jobs = failingJobs{f.r.d.Jobs}

	_, err := f.r.Submit(context.Background(), req(7, ago(time.Hour)))
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if f.dispatch.calls() != 0 {
		t.Fatalf("dispatched without a job row")
	}
}

type brokenRollout struct{}

func (brokenRollout) GetConfig(context.Context, string) (rolloutdomain.Config, error) {
	return rolloutdomain.Config{}, perr.Unavailablef("db down")
}

func TestSubmit_ConservativeFallbacks(t *testing.T) {
	t.Parallel()

	t.Run("rollout unreadable routes as stopped", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		f.r.d.Rollout = brokenRollout{}
		res, err := f.r.Submit(context.Background(), req(7, ago(45*24*time.Hour)))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if res.Reason != route.ReasonEmergencyStop || res.Backend != route.Realtime {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("monitor down routes to default", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		f.percentage(t, 100)
		f.quota.err = perr.Unavailablef("monitor down")
		res, err := f.r.Submit(context.Background(), req(7, ago(45*24*time.Hour)))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if res.Reason != route.ReasonMonitorDown || res.Backend != route.Realtime {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("realtime quota in backoff sends fresh work to bulk", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		f.percentage(t, 100)
		f.quota.dec = rldomain.Decision{Proceed: false, Reason: rldomain.ReasonReserve}
		res, err := f.r.Submit(context.Background(), req(7, ago(time.Hour)))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if res.Reason != route.ReasonRealtimeBackoff || res.Backend != route.Bulk {
			t.Fatalf("result = %+v", res)
		}
	})
}

func TestSubmit_RejectsBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  domain.Request
	}{
		{"unknown type", domain.Request{JobType: "stars", RepoID: 7, Window: ago(time.Hour)}},
		{"empty window", domain.Request{JobType: jobsdomain.TypeCommits, RepoID: 7}},
		{"no repository", domain.Request{JobType: jobsdomain.TypeCommits, Window: ago(time.Hour)}},
		{"unknown repository", req(404, ago(time.Hour))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := setup(t)
			_, err := f.r.Submit(context.Background(), tc.req)
			if !perr.IsCode(err, perr.ErrorCodeValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
			if len(f.jobs.All()) != 0 {
				t.Fatalf("job stored for a rejected request")
			}
		})
	}
}

func TestSubmit_ByName(t *testing.T) {
	t.Parallel()
	f := setup(t)
	res, err := f.r.Submit(context.Background(), domain.Request{
		JobType: jobsdomain.TypeReviews, RepoName: "ACME/Web", Window: ago(time.Hour),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	j, _ := f.jobs.Get(context.Background(), res.JobID)
	if j.Repo.ID != 99 {
		t.Fatalf("repo = %+v", j.Repo)
	}
}

func TestAfterFailure_RejectsLiveJobs(t *testing.T) {
	t.Parallel()
	f := setup(t)
	res, _ := f.r.Submit(context.Background(), req(7, ago(time.Hour)))
	j, _ := f.jobs.Get(context.Background(), res.JobID)

	_, err := f.r.AfterFailure(context.Background(), j)
	if !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}
