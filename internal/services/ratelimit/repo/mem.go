package repo

import (
	"context"
	"sort"
	"sync"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/services/ratelimit/domain"
)

// Mem is an in-memory Repo for unit tests
// Err, when set, fails every call
type Mem struct {
	mu    sync.Mutex
	snaps map[string]domain.Snapshot
	Err   error
}

// NewMem returns an empty in-memory repository
func NewMem() *Mem { return &Mem{snaps: map[string]domain.Snapshot{}} }

// Bind ignores the Queryer
func (m *Mem) Bind(repokit.Queryer) Repo { return m }

func (m *Mem) Upsert(_ context.Context, s domain.Snapshot) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return domain.Snapshot{}, m.Err
	}
	if cur, ok := m.snaps[s.Scope]; ok && cur.ObservedAt.After(s.ObservedAt) {
		return cur, nil
	}
	m.snaps[s.Scope] = s
	return s, nil
}

func (m *Mem) Get(_ context.Context, scope string) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return domain.Snapshot{}, m.Err
	}
	s, ok := m.snaps[scope]
	if !ok {
		return domain.Snapshot{}, perr.ErrNotFound
	}
	return s, nil
}

func (m *Mem) List(context.Context) ([]domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]domain.Snapshot, 0, len(m.snaps))
	for _, s := range m.snaps {
		out = append(out, s)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Scope < out[b].Scope })
	return out, nil
}
