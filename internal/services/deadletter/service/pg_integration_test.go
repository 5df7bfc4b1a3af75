//go:build integration_pg

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"progcap/internal/core/classify"
	"progcap/internal/core/route"
	"progcap/internal/core/window"
	"progcap/internal/platform/store"
	"progcap/internal/platform/store/pgtest"
	"progcap/internal/services/deadletter/repo"
	jobsdomain "progcap/internal/services/jobs/domain"
	jobsrepo "progcap/internal/services/jobs/repo"
	jobsservice "progcap/internal/services/jobs/service"
)

func TestPG_ConcurrentEnqueueKeepsOneEntry(t *testing.T) {
	st := pgtest.Open(t)
	ctx := context.Background()

	jobs := jobsservice.New(st.PG, jobsrepo.NewPG())
	svc := New(st.PG, repo.NewPG(), jobsrepo.NewPG(), Config{RetryMax: 3})

	since := time.Now().UTC().Add(-2 * time.Hour)
	j, _, err := jobs.Create(ctx, jobsdomain.NewJob{
		Type:    jobsdomain.TypeReviews,
		Repo:    jobsdomain.Repository{ID: 21, Name: "acme/cli"},
		Backend: route.Realtime,
		Feature: "progressive_capture",
		Window:  window.Window{Since: &since},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// validation failures are never retried, so the first attempt is already eligible
	if _, err := jobs.Fail(ctx, j.ID, jobsdomain.FailInput{Error: "bad cursor", Category: classify.Validation}); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	const n = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[uuid.UUID]bool{}
		errs    []error
	)
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			e, ok, err := svc.Enqueue(ctx, j.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[e.ID] = true
			if ok {
				created++
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("Enqueue errors: %v", errs)
	}
	if created != 1 {
		t.Fatalf("%d enqueues created an entry, want 1", created)
	}
	if len(ids) != 1 {
		t.Fatalf("callers saw %d distinct entries, want 1", len(ids))
	}

	rows, err := store.Scalar[int](ctx, st.PG, `SELECT COUNT(*) FROM dead_letters WHERE original_job_id = $1`, j.ID)
	if err != nil {
		t.Fatalf("count dead letters: %v", err)
	}
	if rows != 1 {
		t.Fatalf("%d dead letter rows, want 1", rows)
	}

	e, _, err := svc.Enqueue(ctx, j.ID)
	if err != nil {
		t.Fatalf("Enqueue again: %v", err)
	}
	if !ids[e.ID] || e.Category != classify.Validation || !e.RequiresManualIntervention {
		t.Fatalf("entry = %+v", e)
	}
}
