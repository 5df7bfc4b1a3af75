// Package service buffers lifecycle events and flushes them to the ledger
package service

import (
	"context"
	"sync"
	"time"

	"progcap/internal/platform/logger"
	"progcap/internal/services/timeline/domain"
	"progcap/internal/services/timeline/repo"
)

// Config sizes the buffer
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	// MaxBuffered drops the oldest events once the ledger falls this far behind
	MaxBuffered int
}

// Svc implements domain.ServicePort; a nil repo makes every call a no-op
type Svc struct {
	repo repo.Repo
	cfg  Config
	log  logger.Logger
	now  func() time.Time

	mu      sync.Mutex
	buf     []domain.Event
	dropped int
}

// New constructs the ledger; pass a nil repo when clickhouse is not configured
func New(r repo.Repo, cfg Config) *Svc {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.MaxBuffered < cfg.BatchSize {
		cfg.MaxBuffered = 50 * cfg.BatchSize
	}
	return &Svc{repo: r, cfg: cfg, log: *logger.Named("timeline"), now: time.Now}
}

// Enabled reports whether events are persisted
func (s *Svc) Enabled() bool { return s.repo != nil }

// Ensure creates the ledger table
func (s *Svc) Ensure(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Ensure(ctx)
}

// Record buffers e and flushes when a batch is full
func (s *Svc) Record(ctx context.Context, e domain.Event) {
	if s.repo == nil {
		return
	}
	if e.TS.IsZero() {
		e.TS = s.now().UTC()
	}
	s.mu.Lock()
	s.buf = append(s.buf, e)
	if over := len(s.buf) - s.cfg.MaxBuffered; over > 0 {
		s.buf = s.buf[over:]
		s.dropped += over
	}
	full := len(s.buf) >= s.cfg.BatchSize
	s.mu.Unlock()

	if full {
		_ = s.Flush(ctx)
	}
}

// Flush writes everything buffered; on failure the events are put back
func (s *Svc) Flush(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	s.mu.Lock()
	batch := s.buf
	s.buf = nil
	dropped := s.dropped
	s.dropped = 0
	s.mu.Unlock()

	if dropped > 0 {
		s.log.Warn().Int("dropped", dropped).Msg("ledger behind, oldest events dropped")
	}
	if len(batch) == 0 {
		return nil
	}
	if err := s.repo.Insert(ctx, batch); err != nil {
		s.log.Warn().Err(err).Int("events", len(batch)).Msg("ledger flush failed")
		s.mu.Lock()
		s.buf = append(batch, s.buf...)
		s.mu.Unlock()
		return err
	}
	return nil
}

// Run flushes on every tick and once more on shutdown
func (s *Svc) Run(ctx context.Context) error {
	if s.repo == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	t := time.NewTicker(s.cfg.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_ = s.Flush(fctx)
			cancel()
			return ctx.Err()
		case <-t.C:
			_ = s.Flush(ctx)
		}
	}
}

// Summary counts events since; without a ledger it is empty
func (s *Svc) Summary(ctx context.Context, since time.Time) ([]domain.SummaryRow, error) {
	if s.repo == nil {
		return []domain.SummaryRow{}, nil
	}
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	return s.repo.Summary(ctx, since)
}
