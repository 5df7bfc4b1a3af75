package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/services/rollout/domain"
)

// Mem is an in-memory Repo for unit tests
type Mem struct {
	mu      sync.Mutex
	configs map[string]domain.Config
	history []domain.HistoryEntry
}

// NewMem returns an empty in-memory repository
func NewMem() *Mem { return &Mem{configs: map[string]domain.Config{}} }

// Bind ignores the Queryer
func (m *Mem) Bind(repokit.Queryer) Repo { return m }

// HistoryLen reports how many history rows exist for feature
func (m *Mem) HistoryLen(feature string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, h := range m.history {
		if h.Feature == feature {
			n++
		}
	}
	return n
}

func (m *Mem) Get(_ context.Context, feature string) (domain.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[feature]
	if !ok {
		return domain.Config{}, perr.ErrNotFound
	}
	return c, nil
}

func (m *Mem) List(context.Context) ([]domain.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Config, 0, len(m.configs))
	for _, c := range m.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Feature < out[b].Feature })
	return out, nil
}

func (m *Mem) Lock(_ context.Context, feature string) (domain.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[feature]
	if !ok {
		c = domain.Default(feature)
		c.UpdatedAt = time.Now()
		m.configs[feature] = c
	}
	return c, nil
}

func (m *Mem) Save(_ context.Context, c domain.Config) (domain.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.configs[c.Feature]
	if !ok {
		return domain.Config{}, perr.ErrNotFound
	}
	c.Version = cur.Version + 1
	c.UpdatedAt = time.Now()
	m.configs[c.Feature] = c
	return c, nil
}

func (m *Mem) Append(_ context.Context, h domain.HistoryEntry) (domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = int64(len(m.history) + 1)
	h.CreatedAt = time.Now()
	m.history = append(m.history, h)
	return h, nil
}

func (m *Mem) History(_ context.Context, feature string, limit int) ([]domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.HistoryEntry
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Feature == feature {
			out = append(out, m.history[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
