package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/services/progress/domain"
)

// Mem is an in-memory Repo for unit tests
// Processing reports whether the owning job is processing; nil treats every job as processing
type Mem struct {
	mu         sync.Mutex
	recs       map[uuid.UUID]domain.Record
	Processing func(uuid.UUID) bool
}

// NewMem returns an empty in-memory repository
func NewMem() *Mem { return &Mem{recs: map[uuid.UUID]domain.Record{}} }

// Bind ignores the Queryer
func (m *Mem) Bind(repokit.Queryer) Repo { return m }

// Put seeds a record
func (m *Mem) Put(r domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[r.JobID] = r
}

func (m *Mem) live(id uuid.UUID) bool { return m.Processing == nil || m.Processing(id) }

func (m *Mem) Start(_ context.Context, id uuid.UUID, total *int) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live(id) {
		return domain.Record{}, perr.ErrNotFound
	}
	now := time.Now()
	rec, ok := m.recs[id]
	if !ok {
		rec = domain.Record{JobID: id, CreatedAt: now}
	}
	if total != nil {
		if *total < rec.Done() {
			return domain.Record{}, perr.Validationf("total below recorded progress")
		}
		t := *total
		rec.Total = &t
	}
	rec.UpdatedAt = now
	m.recs[id] = rec
	return rec, nil
}

func (m *Mem) SetTotal(_ context.Context, id uuid.UUID, total int) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok || !m.live(id) {
		return domain.Record{}, perr.ErrNotFound
	}
	if total < rec.Done() {
		return domain.Record{}, perr.Validationf("total below recorded progress")
	}
	rec.Total = &total
	rec.UpdatedAt = time.Now()
	m.recs[id] = rec
	return rec, nil
}

func (m *Mem) Advance(_ context.Context, id uuid.UUID, d domain.Delta) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok || !m.live(id) {
		return domain.Record{}, perr.ErrNotFound
	}
	if rec.Total != nil && rec.Done()+d.Processed+d.Failed > *rec.Total {
		return domain.Record{}, perr.ErrNotFound
	}
	rec.Processed += d.Processed
	rec.Failed += d.Failed
	if d.CurrentItem != "" {
		rec.CurrentItem = d.CurrentItem
	}
	rec.UpdatedAt = time.Now()
	m.recs[id] = rec
	return rec, nil
}

func (m *Mem) Get(_ context.Context, id uuid.UUID) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return domain.Record{}, perr.ErrNotFound
	}
	return rec, nil
}

func (m *Mem) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.recs[id]
	delete(m.recs, id)
	return ok, nil
}
