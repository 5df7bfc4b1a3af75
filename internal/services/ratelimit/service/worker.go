package service

import (
	"context"
	"errors"
	"time"
)

// Probe reads the pool quota of every registered prober and records it
func (s *Svc) Probe(ctx context.Context) error {
	s.mu.Lock()
	probers := append([]Prober(nil), s.probers...)
	s.mu.Unlock()

	var errs []error
	for _, p := range probers {
		sample, err := p.PoolRateLimit(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("scope", p.Scope()).Msg("quota probe failed")
			errs = append(errs, err)
			continue
		}
		s.ObserveRate(ctx, p.Scope(), sample)
		s.log.Debug().
			Str("scope", p.Scope()).
			Int("remaining", sample.Remaining).
			Int("limit", sample.Limit).
			Time("reset", sample.Reset).
			Msg("quota probed")
	}
	return errors.Join(errs...)
}

// Run probes on every tick until ctx ends; probe errors are logged and retried next tick
func (s *Svc) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	_ = s.Probe(ctx)

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = s.Probe(ctx)
		}
	}
}
