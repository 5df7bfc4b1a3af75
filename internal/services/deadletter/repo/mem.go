package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"progcap/internal/core/classify"
	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/services/deadletter/domain"
)

// Mem is an in-memory Repo for unit tests
type Mem struct {
	mu      sync.Mutex
	entries []domain.Entry
}

// NewMem returns an empty in-memory repository
func NewMem() *Mem { return &Mem{} }

// Bind ignores the Queryer
func (m *Mem) Bind(repokit.Queryer) Repo { return m }

// Len reports how many entries exist
func (m *Mem) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Mem) find(pred func(domain.Entry) bool) (int, bool) {
	for i, e := range m.entries {
		if pred(e) {
			return i, true
		}
	}
	return -1, false
}

func (m *Mem) InsertIfAbsent(_ context.Context, e domain.Entry) (domain.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.find(func(x domain.Entry) bool { return x.OriginalJobID == e.OriginalJobID }); ok {
		return domain.Entry{}, false, nil
	}
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, e)
	return e, true, nil
}

func (m *Mem) ByJob(_ context.Context, jobID uuid.UUID) (domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.find(func(x domain.Entry) bool { return x.OriginalJobID == jobID }); ok {
		return m.entries[i], nil
	}
	return domain.Entry{}, perr.ErrNotFound
}

func (m *Mem) Get(_ context.Context, id uuid.UUID) (domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.find(func(x domain.Entry) bool { return x.ID == id }); ok {
		return m.entries[i], nil
	}
	return domain.Entry{}, perr.ErrNotFound
}

func (m *Mem) List(_ context.Context, f domain.Filter) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if (f.Category == "" || e.Category == f.Category) && (!f.Unresolved || e.ResolvedAt == nil) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Mem) Resolve(_ context.Context, id uuid.UUID, actor, note string) (domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.find(func(x domain.Entry) bool { return x.ID == id && x.ResolvedAt == nil })
	if !ok {
		return domain.Entry{}, perr.ErrNotFound
	}
	now := time.Now()
	m.entries[i].ResolvedAt = &now
	m.entries[i].ResolvedBy = &actor
	if note != "" {
		m.entries[i].ResolutionNote = &note
	}
	return m.entries[i], nil
}

func (m *Mem) Counts(context.Context) ([]domain.CategoryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := map[classify.Category]int64{}
	for _, e := range m.entries {
		if e.ResolvedAt == nil {
			n[e.Category]++
		}
	}
	out := make([]domain.CategoryCount, 0, len(n))
	for c, k := range n {
		out = append(out, domain.CategoryCount{Category: c, Count: k})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Category < out[b].Category })
	return out, nil
}
