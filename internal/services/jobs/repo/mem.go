package repo

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/services/jobs/domain"
)

// Mem is an in-memory Repo with the same conditional semantics as PG
// it backs unit tests and the single-process demo mode
type Mem struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]domain.Job
	Now  func() time.Time
}

// NewMem returns an empty in-memory repository
func NewMem() *Mem {
	return &Mem{jobs: map[uuid.UUID]domain.Job{}, Now: time.Now}
}

// Bind ignores the Queryer; all binds share one state
func (m *Mem) Bind(repokit.Queryer) Repo { return m }

// Put stores j as is, for seeding
func (m *Mem) Put(j domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = clone(j)
}

// All returns every job ordered by creation
func (m *Mem) All() []domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, clone(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func clone(j domain.Job) domain.Job {
	j.Metadata = maps.Clone(j.Metadata)
	if j.Metadata == nil {
		j.Metadata = map[string]any{}
	}
	return j
}

func active(s domain.Status) bool { return s == domain.Pending || s == domain.Processing }

func (m *Mem) InsertIfIdle(_ context.Context, j domain.Job) (domain.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.jobs {
		if active(cur.Status) && cur.Repo.ID == j.Repo.ID && cur.Type == j.Type && cur.WindowKey == j.WindowKey {
			return domain.Job{}, false, nil
		}
	}
	if _, dup := m.jobs[j.ID]; dup {
		return domain.Job{}, false, perr.New(perr.ErrorCodeDuplicateKey, "duplicate job id")
	}
	now := m.Now()
	j.Status = domain.Pending
	j.CreatedAt, j.UpdatedAt = now, now
	j.StartedAt, j.CompletedAt = nil, nil
	m.jobs[j.ID] = clone(j)
	return clone(j), true, nil
}

func (m *Mem) Get(_ context.Context, id uuid.UUID) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, perr.ErrNotFound
	}
	return clone(j), nil
}

func (m *Mem) ActiveByKey(_ context.Context, repoID int64, t domain.Type, windowKey string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if active(j.Status) && j.Repo.ID == repoID && j.Type == t && j.WindowKey == windowKey {
			return clone(j), nil
		}
	}
	return domain.Job{}, perr.ErrNotFound
}

// update applies fn when cond holds, mirroring UPDATE ... WHERE ... RETURNING
func (m *Mem) update(id uuid.UUID, cond func(domain.Job) bool, fn func(*domain.Job, time.Time)) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || !cond(j) {
		return domain.Job{}, perr.ErrNotFound
	}
	j = clone(j)
	now := m.Now()
	fn(&j, now)
	j.UpdatedAt = now
	m.jobs[id] = j
	return clone(j), nil
}

func (m *Mem) MarkProcessing(_ context.Context, id uuid.UUID) (domain.Job, error) {
	return m.update(id, func(j domain.Job) bool { return j.Status == domain.Pending }, func(j *domain.Job, now time.Time) {
		j.Status = domain.Processing
		j.StartedAt = &now
	})
}

func (m *Mem) Complete(_ context.Context, id uuid.UUID) (domain.Job, error) {
	return m.update(id, func(j domain.Job) bool { return j.Status == domain.Processing }, func(j *domain.Job, now time.Time) {
		j.Status = domain.Completed
		j.CompletedAt = &now
	})
}

func failInto(j *domain.Job, now time.Time, in domain.FailInput) {
	j.Status = domain.Failed
	e := in.Error
	j.Error = &e
	if in.Category != "" {
		c := in.Category
		j.ErrorCategory = &c
	}
	maps.Copy(j.Metadata, in.Metadata)
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.CompletedAt = &now
}

func (m *Mem) Fail(_ context.Context, id uuid.UUID, from []domain.Status, in domain.FailInput) (domain.Job, error) {
	return m.update(id, func(j domain.Job) bool { return slices.Contains(from, j.Status) }, func(j *domain.Job, now time.Time) {
		failInto(j, now, in)
	})
}

func clock(j domain.Job) time.Time {
	if j.StartedAt != nil {
		return *j.StartedAt
	}
	return j.CreatedAt
}

func (m *Mem) FailStuck(_ context.Context, id uuid.UUID, status domain.Status, cutoff time.Time, in domain.FailInput) (domain.Job, error) {
	return m.update(id, func(j domain.Job) bool { return j.Status == status && clock(j).Before(cutoff) }, func(j *domain.Job, now time.Time) {
		failInto(j, now, in)
	})
}

func (m *Mem) List(_ context.Context, f domain.Filter) ([]domain.Job, error) {
	all := m.All()
	slices.Reverse(all)
	var out []domain.Job
	for _, j := range all {
		if (f.Status == "" || j.Status == f.Status) &&
			(f.Backend == "" || j.Backend == f.Backend) &&
			(f.Type == "" || j.Type == f.Type) &&
			(f.RepoID == 0 || j.Repo.ID == f.RepoID) {
			out = append(out, j)
		}
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Mem) Stats(_ context.Context, since time.Time) ([]domain.StatRow, error) {
	counts := map[domain.StatRow]int64{}
	for _, j := range m.All() {
		if j.CreatedAt.Before(since) && !active(j.Status) {
			continue
		}
		counts[domain.StatRow{Backend: j.Backend, Status: j.Status}]++
	}
	out := make([]domain.StatRow, 0, len(counts))
	for k, n := range counts {
		k.Count = n
		out = append(out, k)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Backend != out[b].Backend {
			return out[a].Backend < out[b].Backend
		}
		return out[a].Status < out[b].Status
	})
	return out, nil
}

func (m *Mem) Stuck(_ context.Context, status domain.Status, cutoff time.Time, limit int) ([]domain.Job, error) {
	var out []domain.Job
	for _, j := range m.All() {
		if j.Status == status && clock(j).Before(cutoff) {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return clock(out[a]).Before(clock(out[b])) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Mem) CountFailedSince(_ context.Context, feature string, since time.Time) (int, error) {
	n := 0
	for _, j := range m.All() {
		if j.Feature == feature && j.InCohort && j.Status == domain.Failed && j.CompletedAt != nil && !j.CompletedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Mem) FailureChain(_ context.Context, id uuid.UUID) ([]domain.ChainLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chain []domain.ChainLink
	cur, ok := m.jobs[id]
	for depth := 0; ok && depth < 64; depth++ {
		l := domain.ChainLink{JobID: cur.ID, Attempt: cur.Attempt, Category: cur.Category(), CompletedAt: cur.CompletedAt}
		if cur.Error != nil {
			l.Error = *cur.Error
		}
		chain = append(chain, l)
		if cur.RetryOf == nil {
			break
		}
		cur, ok = m.jobs[*cur.RetryOf]
	}
	slices.Reverse(chain)
	return chain, nil
}
