package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	perr "progcap/internal/platform/errors"
)

type recObserver struct {
	mu      sync.Mutex
	scopes  []string
	samples []RateSample
}

func (r *recObserver) ObserveRate(_ context.Context, scope string, s RateSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes = append(r.scopes, scope)
	r.samples = append(r.samples, s)
}

type countPacer struct{ n atomic.Int32 }

func (p *countPacer) Wait(context.Context, string) error { p.n.Add(1); return nil }

func newTestClient(t *testing.T, h http.HandlerFunc, o Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	o.BaseURL = srv.URL
	o.RetryBase = time.Millisecond
	c := NewClient(o)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestRepoByID_ReportsRateHeaders(t *testing.T) {
	t.Parallel()

	obs := &recObserver{}
	pacer := &countPacer{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repositories/42" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "token a" && got != "token b" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"id":42,"full_name":"octo/repo","size":2048}`))
	}, Options{Scope: "realtime", TokensCSV: "a, b", Observer: obs, Pacer: pacer})

	repo, etag, notMod, err := c.RepoByID(context.Background(), 42, "")
	if err != nil {
		t.Fatalf("RepoByID: %v", err)
	}
	if repo.FullName != "octo/repo" || repo.SizeKB != 2048 || etag != `"v1"` || notMod {
		t.Fatalf("unexpected repo %+v etag %q", repo, etag)
	}
	if pacer.n.Load() != 1 {
		t.Fatalf("pacer consulted %d times", pacer.n.Load())
	}
	if len(obs.samples) != 1 || obs.scopes[0] != "realtime" || obs.samples[0].Remaining != 4999 {
		t.Fatalf("observer got %+v", obs.samples)
	}
}

func TestDo_NotFoundIsStatusError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, Options{})

	_, _, _, err := c.RepoByID(context.Background(), 1, "")
	if !IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("want perr not found code, got %v", perr.CodeOf(err))
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":7}`))
	}, Options{MaxRetries: 3})

	repo, _, _, err := c.RepoByID(context.Background(), 7, "")
	if err != nil || repo.ID != 7 {
		t.Fatalf("got %+v, %v", repo, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestDo_RateLimitedExhaustsRetries(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}, Options{MaxRetries: 1})

	_, _, _, err := c.RepoByID(context.Background(), 7, "")
	if !IsRateLimited(err) || !perr.IsCode(err, perr.ErrorCodeTooManyRequests) {
		t.Fatalf("want rate limited, got %v", err)
	}
}

func TestDo_PermissionForbiddenIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}, Options{MaxRetries: 3})

	_, _, _, err := c.RepoByID(context.Background(), 7, "")
	if err == nil || calls.Load() != 1 {
		t.Fatalf("forbidden without quota headers must fail fast, calls=%d err=%v", calls.Load(), err)
	}
}

func TestPoolRateLimit_Aggregates(t *testing.T) {
	t.Parallel()

	early := time.Now().Add(10 * time.Minute).Unix()
	late := time.Now().Add(40 * time.Minute).Unix()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reset, remaining := late, 100
		if r.Header.Get("Authorization") == "token a" {
			reset, remaining = early, 30
		}
		_, _ = w.Write([]byte(`{"resources":{"core":{"limit":5000,"remaining":` +
			strconv.Itoa(remaining) + `,"reset":` + strconv.FormatInt(reset, 10) + `}}}`))
	}, Options{TokensCSV: "a,b"})

	s, err := c.PoolRateLimit(context.Background())
	if err != nil {
		t.Fatalf("PoolRateLimit: %v", err)
	}
	if s.Remaining != 130 || s.Limit != 10000 || s.Reset.Unix() != early {
		t.Fatalf("unexpected aggregate %+v", s)
	}
}

func TestComputeWait(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	if got := computeWait(RateSample{RetryAfter: 5 * time.Second}, now); got != 5*time.Second {
		t.Fatalf("retry-after wait = %v", got)
	}
	if got := computeWait(RateSample{Remaining: 0, Reset: now.Add(time.Minute)}, now); got != time.Minute {
		t.Fatalf("reset wait = %v", got)
	}
	if got := computeWait(RateSample{Remaining: 10, Reset: now.Add(time.Minute)}, now); got != 0 {
		t.Fatalf("quota left should not wait, got %v", got)
	}
}
