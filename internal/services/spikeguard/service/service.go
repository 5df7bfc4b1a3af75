// Package service implements the error-spike rollback guard
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"progcap/internal/platform/logger"
	"progcap/internal/platform/metrics"
	rolloutdomain "progcap/internal/services/rollout/domain"
	"progcap/internal/services/spikeguard/domain"
	tldomain "progcap/internal/services/timeline/domain"
)

// Configs is the read side of rollout state the guard watches
type Configs interface {
	rolloutdomain.Reader
	List(ctx context.Context) ([]rolloutdomain.Config, error)
}

// Counter counts failed cohort jobs of a feature finished since a point in time
type Counter interface {
	CountFailedSince(ctx context.Context, feature string, since time.Time) (int, error)
}

// Config is the spike definition
type Config struct {
	Window    time.Duration
	Threshold int
	Interval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.Threshold <= 0 {
		c.Threshold = 10
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	return c
}

// Svc implements domain.ServicePort
// it only ever sets the stop; clearing it is an operator action
type Svc struct {
	configs Configs
	counter Counter
	stop    rolloutdomain.StopSetter
	events  tldomain.Recorder
	cfg     Config
	log     logger.Logger
	now     func() time.Time
}

// New constructs a guard; events may be nil
func New(configs Configs, counter Counter, stop rolloutdomain.StopSetter, events tldomain.Recorder, cfg Config) *Svc {
	if configs == nil || counter == nil || stop == nil {
		panic("spikeguard.Service requires configs, counter and stop setter")
	}
	if events == nil {
		events = tldomain.Nop{}
	}
	return &Svc{
		configs: configs,
		counter: counter,
		stop:    stop,
		events:  events,
		cfg:     cfg.withDefaults(),
		log:     *logger.Named("spikeguard"),
		now:     time.Now,
	}
}

// Check trips every feature under active rollout whose recent errors reach the threshold
func (s *Svc) Check(ctx context.Context) ([]domain.Trip, error) {
	cfgs, err := s.configs.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		trips []domain.Trip
		errs  []error
	)
	for _, c := range cfgs {
		if c.EmergencyStop || c.Percentage <= 0 {
			continue
		}
		// errors from before the last manual reset do not count again
		since := now.Add(-s.cfg.Window)
		if c.StopClearedAt != nil && c.StopClearedAt.After(since) {
			since = *c.StopClearedAt
		}
		n, err := s.counter.CountFailedSince(ctx, c.Feature, since)
		if err != nil {
			s.log.Warn().Err(err).Str("feature", c.Feature).Msg("error count unavailable")
			errs = append(errs, err)
			continue
		}
		if n < s.cfg.Threshold {
			continue
		}
		if _, err := s.stop.SetEmergencyStop(ctx, c.Feature, true, domain.Reason, domain.Actor); err != nil {
			s.log.Error().Err(err).Str("feature", c.Feature).Int("errors", n).Msg("auto-rollback failed")
			errs = append(errs, err)
			continue
		}

		t := domain.Trip{Feature: c.Feature, Errors: n, Since: since, At: now}
		trips = append(trips, t)
		metrics.RollbackTrips.WithLabelValues(c.Feature).Inc()
		s.events.Record(ctx, tldomain.Event{
			TS:      now.UTC(),
			JobID:   uuid.Nil,
			Feature: c.Feature,
			Kind:    tldomain.RollbackTrip,
			Detail:  domain.Reason,
		})
		s.log.Warn().
			Str("feature", c.Feature).
			Int("errors", n).
			Int("threshold", s.cfg.Threshold).
			Dur("window", s.cfg.Window).
			Int("percentage", c.Percentage).
			Msg("error spike, emergency stop set")
	}
	return trips, errors.Join(errs...)
}

// State reports Tripped while the feature's emergency stop is set
func (s *Svc) State(ctx context.Context, feature string) (domain.State, error) {
	c, err := s.configs.GetConfig(ctx, feature)
	if err != nil {
		return "", err
	}
	if c.EmergencyStop {
		return domain.Tripped, nil
	}
	return domain.Normal, nil
}

// Run checks on every interval until ctx ends
func (s *Svc) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := s.Check(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("spike check incomplete")
			}
		}
	}
}
