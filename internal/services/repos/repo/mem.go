package repo

import (
	"context"
	"sync"
	"time"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/services/repos/domain"
)

// Mem is an in-memory Repo for unit tests
type Mem struct {
	mu    sync.Mutex
	repos map[int64]domain.Repository
}

// NewMem returns an empty in-memory repository store
func NewMem() *Mem { return &Mem{repos: map[int64]domain.Repository{}} }

// Bind ignores the Queryer
func (m *Mem) Bind(repokit.Queryer) Repo { return m }

func (m *Mem) Get(_ context.Context, id int64) (domain.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.repos[id]
	if !ok {
		return domain.Repository{}, perr.ErrNotFound
	}
	return x, nil
}

func (m *Mem) ByNameKey(_ context.Context, key string) (domain.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.repos {
		if x.NameKey == key {
			return x, nil
		}
	}
	return domain.Repository{}, perr.ErrNotFound
}

func (m *Mem) Upsert(_ context.Context, x domain.Repository) (domain.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cur := range m.repos {
		if cur.NameKey == x.NameKey && id != x.ID {
			delete(m.repos, id)
		}
	}
	if cur, ok := m.repos[x.ID]; ok && cur.IsLarge {
		x.IsLarge = true
	}
	x.UpdatedAt = time.Now()
	m.repos[x.ID] = x
	return x, nil
}

func (m *Mem) SetLarge(_ context.Context, id int64, large bool) (domain.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.repos[id]
	if !ok {
		return domain.Repository{}, perr.ErrNotFound
	}
	x.IsLarge = large
	x.UpdatedAt = time.Now()
	m.repos[id] = x
	return x, nil
}
