//go:build integration_pg

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"progcap/internal/core/classify"
	"progcap/internal/core/route"
	"progcap/internal/core/window"
	"progcap/internal/platform/store/pgtest"
	dlrepo "progcap/internal/services/deadletter/repo"
	dlservice "progcap/internal/services/deadletter/service"
	jobsdomain "progcap/internal/services/jobs/domain"
	jobsrepo "progcap/internal/services/jobs/repo"
	jobsservice "progcap/internal/services/jobs/service"
	rldomain "progcap/internal/services/ratelimit/domain"
	reposdomain "progcap/internal/services/repos/domain"
	rolloutrepo "progcap/internal/services/rollout/repo"
	rolloutservice "progcap/internal/services/rollout/service"
	"progcap/internal/services/router/domain"
)

func TestPG_SubmitRetryAndDeadLetter(t *testing.T) {
	st := pgtest.Open(t)
	ctx := context.Background()

	jobs := jobsservice.New(st.PG, jobsrepo.NewPG())
	rollout := rolloutservice.New(st.PG, rolloutrepo.NewPG())
	dlq := dlservice.New(st.PG, dlrepo.NewPG(), jobsrepo.NewPG(), dlservice.Config{RetryMax: 3})
	disp := &fakeDispatch{}
	r := New(Deps{
		Jobs:     jobs,
		Repos:    fakeRepos{7: reposdomain.Repository{ID: 7, FullName: "acme/api"}},
		Rollout:  rollout,
		Quota:    &fakeQuota{dec: rldomain.Decision{Proceed: true}},
		DLQ:      dlq,
		Dispatch: disp,
	}, Config{Feature: feature, RetryMax: 3})
	r.now = func() time.Time { return now }

	if _, err := rollout.SetPercentage(ctx, feature, 100, "full rollout", "ops"); err != nil {
		t.Fatalf("SetPercentage: %v", err)
	}

	first, err := r.Submit(ctx, req(7, ago(time.Hour)))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.Backend != route.Realtime || first.Coalesced {
		t.Fatalf("first = %+v", first)
	}

	dup, err := r.Submit(ctx, req(7, ago(time.Hour)))
	if err != nil {
		t.Fatalf("Submit dup: %v", err)
	}
	if !dup.Coalesced || dup.JobID != first.JobID {
		t.Fatalf("expected coalescing onto %s, got %+v", first.JobID, dup)
	}

	id := first.JobID
	var out domain.Outcome
	for attempt := 1; attempt <= 3; attempt++ {
		out, err = r.Fail(ctx, id, classify.Failure{HTTPStatus: 502, Message: "bad gateway"})
		if err != nil {
			t.Fatalf("Fail attempt %d: %v", attempt, err)
		}
		if attempt < 3 {
			if out.Retry == nil {
				t.Fatalf("attempt %d: expected a retry", attempt)
			}
			id = out.Retry.JobID
		}
	}
	if out.DeadLetter == nil {
		t.Fatalf("expected a dead letter after the third attempt, got %+v", out)
	}
	if len(out.DeadLetter.History) != 3 || out.DeadLetter.RootJobID != first.JobID {
		t.Fatalf("dead letter = %+v", out.DeadLetter)
	}
	if out.DeadLetter.RequiresManualIntervention {
		t.Fatalf("external_api failures are not manual")
	}

	j, err := jobs.Get(ctx, first.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.Status != jobsdomain.Failed || j.Category() != classify.ExternalAPI {
		t.Fatalf("root job = %s/%s", j.Status, j.Category())
	}
	if _, err := jobs.Complete(ctx, first.JobID); err == nil {
		t.Fatalf("a failed job must not complete")
	}
}

func TestPG_EmergencyStopHistory(t *testing.T) {
	st := pgtest.Open(t)
	ctx := context.Background()

	rollout := rolloutservice.New(st.PG, rolloutrepo.NewPG())
	if _, err := rollout.SetPercentage(ctx, feature, 40, "ramp", "ops"); err != nil {
		t.Fatalf("SetPercentage: %v", err)
	}
	if _, err := rollout.SetEmergencyStop(ctx, feature, true, "spike", "oncall"); err != nil {
		t.Fatalf("SetEmergencyStop: %v", err)
	}
	c, err := rollout.GetConfig(ctx, feature)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if !c.EmergencyStop || c.Percentage != 40 {
		t.Fatalf("config = %+v", c)
	}
	h, err := rollout.History(ctx, feature, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 2 || h[0].Actor != "oncall" {
		t.Fatalf("history = %+v", h)
	}
}

func TestPG_ConcurrentSubmitDispatchesOnce(t *testing.T) {
	st := pgtest.Open(t)
	ctx := context.Background()

	jobs := jobsservice.New(st.PG, jobsrepo.NewPG())
	disp := &fakeDispatch{}
	r := New(Deps{
		Jobs:     jobs,
		Repos:    fakeRepos{7: reposdomain.Repository{ID: 7, FullName: "acme/api"}},
		Rollout:  rolloutservice.New(st.PG, rolloutrepo.NewPG()),
		Quota:    &fakeQuota{dec: rldomain.Decision{Proceed: true}},
		DLQ:      dlservice.New(st.PG, dlrepo.NewPG(), jobsrepo.NewPG(), dlservice.Config{RetryMax: 3}),
		Dispatch: disp,
	}, Config{Feature: feature, RetryMax: 3})

	// open ended, and the clock keeps moving between callers
	since := time.Now().UTC().Add(-3 * time.Hour)
	w := window.Window{Since: &since}

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []domain.Result
		errs    []error
	)
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := r.Submit(ctx, req(7, w))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, res)
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("Submit errors: %v", errs)
	}
	fresh := 0
	for _, res := range results {
		if res.JobID != results[0].JobID {
			t.Fatalf("callers saw different jobs: %s and %s", results[0].JobID, res.JobID)
		}
		if !res.Coalesced {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("%d submissions created a job, want 1", fresh)
	}
	if disp.calls() != 1 {
		t.Fatalf("dispatched %d times, want 1", disp.calls())
	}
	all, err := jobs.List(ctx, jobsdomain.Filter{RepoID: 7})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("%d job rows for the key, want 1", len(all))
	}
}

