// Package service implements the rate limit monitor
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	gh "progcap/internal/adapters/github"
	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/logger"
	"progcap/internal/platform/metrics"
	"progcap/internal/services/ratelimit/domain"
	"progcap/internal/services/ratelimit/repo"
)

// Config tunes admission and local pacing
type Config struct {
	// Reserve is the quota kept back for interactive work
	Reserve int
	// RPS and Burst size the local token bucket per scope
	RPS   float64
	Burst int
	// StaleAfter discards snapshots nobody refreshed
	StaleAfter time.Duration
	// MaxWait bounds how long Wait blocks on a backoff before giving up
	MaxWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.Reserve < 0 {
		c.Reserve = 0
	}
	if c.RPS <= 0 {
		c.RPS = 2
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * time.Hour
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 30 * time.Second
	}
	return c
}

// Prober reads the aggregate quota of one credential pool
type Prober interface {
	Scope() string
	PoolRateLimit(ctx context.Context) (gh.RateSample, error)
}

// Svc implements domain.ServicePort and the github client's RateObserver and Pacer
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	cfg    Config
	log    logger.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	probers  []Prober
}

// New constructs a rate limit monitor
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo], cfg Config) *Svc {
	if db == nil {
		panic("ratelimit.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("ratelimit.Service requires a non nil Repo binder")
	}
	return &Svc{
		Repo:     binder.Bind(db),
		binder:   binder,
		cfg:      cfg.withDefaults(),
		log:      *logger.Named("ratelimit"),
		now:      time.Now,
		sleep:    sleepCtx,
		limiters: map[string]*rate.Limiter{},
	}
}

// AddProber registers a credential pool for Probe
func (s *Svc) AddProber(p Prober) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probers = append(s.probers, p)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func normScope(scope string) (string, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		return "", perr.WithField(perr.Validationf("scope is required"), "scope")
	}
	return scope, nil
}

// Observe records a quota sample for scope
func (s *Svc) Observe(ctx context.Context, scope string, in domain.Sample) (domain.Snapshot, error) {
	scope, err := normScope(scope)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if in.Remaining < 0 || in.Limit < 0 || in.RetryAfter < 0 {
		return domain.Snapshot{}, perr.InvalidArgf("quota sample must not be negative")
	}
	now := s.now().UTC()
	snap := domain.Snapshot{Scope: scope, Remaining: in.Remaining, Limit: in.Limit, ObservedAt: now}
	if !in.Reset.IsZero() {
		r := in.Reset.UTC()
		snap.ResetAt = &r
	}
	if in.RetryAfter > 0 {
		u := now.Add(in.RetryAfter)
		snap.RetryUntil = &u
	}
	out, err := s.Repo.Upsert(ctx, snap)
	if err != nil {
		return domain.Snapshot{}, err
	}
	metrics.RateRemaining.WithLabelValues(scope).Set(float64(out.Remaining))
	return out, nil
}

// ObserveRate adapts github client reports; failures are logged since the call itself succeeded
func (s *Svc) ObserveRate(ctx context.Context, scope string, in gh.RateSample) {
	if in.Limit == 0 && in.Reset.IsZero() && in.RetryAfter == 0 {
		return
	}
	_, err := s.Observe(ctx, scope, domain.Sample{
		Remaining:  in.Remaining,
		Limit:      in.Limit,
		Reset:      in.Reset,
		RetryAfter: in.RetryAfter,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("scope", scope).Msg("rate sample not recorded")
	}
}

// Decide reports whether scope has headroom
func (s *Svc) Decide(ctx context.Context, scope string) (domain.Decision, error) {
	scope, err := normScope(scope)
	if err != nil {
		return domain.Decision{}, err
	}
	snap, err := s.Repo.Get(ctx, scope)
	if errors.Is(err, perr.ErrNotFound) {
		return domain.Decision{Scope: scope, Proceed: true, Reason: domain.ReasonUnknown}, nil
	}
	if err != nil {
		return domain.Decision{}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "read quota of %s", scope)
	}
	return decide(snap, s.now(), s.cfg), nil
}

// decide is the pure admission rule over one snapshot
func decide(snap domain.Snapshot, now time.Time, cfg Config) domain.Decision {
	d := domain.Decision{Scope: snap.Scope, Proceed: true, Reason: domain.ReasonHeadroom}
	if now.Sub(snap.ObservedAt) > cfg.StaleAfter {
		d.Reason = domain.ReasonStale
		return d
	}
	rem := snap.Remaining
	d.Remaining = &rem

	if snap.RetryUntil != nil && snap.RetryUntil.After(now) {
		d.Proceed, d.Reason = false, domain.ReasonRetryAfter
		d.BackoffUntil = snap.RetryUntil
		return d
	}
	if snap.Remaining <= cfg.Reserve && snap.ResetAt != nil && snap.ResetAt.After(now) {
		d.Proceed, d.Reason = false, domain.ReasonReserve
		d.BackoffUntil = snap.ResetAt
	}
	return d
}

func (s *Svc) limiter(scope string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[scope]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.cfg.RPS), s.cfg.Burst)
		s.limiters[scope] = l
	}
	return l
}

// Wait takes a local token then honors any backoff the monitor returns
// a backoff longer than MaxWait is returned as TooManyRequests for the caller to reschedule
func (s *Svc) Wait(ctx context.Context, scope string) error {
	scope, err := normScope(scope)
	if err != nil {
		return err
	}
	if err := s.limiter(scope).Wait(ctx); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeTimeout, "pacing %s", scope)
	}
	d, err := s.Decide(ctx, scope)
	if err != nil {
		// monitor outage is recoverable; local pacing still applied
		s.log.Warn().Err(err).Str("scope", scope).Msg("quota unknown, proceeding on local pacing")
		return nil
	}
	if d.Proceed {
		return nil
	}
	wait := d.BackoffUntil.Sub(s.now())
	if wait > s.cfg.MaxWait {
		return perr.Newf(perr.ErrorCodeTooManyRequests, "rate limit: %s backing off until %s", scope, d.BackoffUntil.UTC().Format(time.RFC3339))
	}
	s.log.Debug().Str("scope", scope).Dur("wait", wait).Str("reason", d.Reason).Msg("backing off")
	return s.sleep(ctx, wait)
}

// Snapshots lists every known scope
func (s *Svc) Snapshots(ctx context.Context) ([]domain.Snapshot, error) {
	return s.Repo.List(ctx)
}
