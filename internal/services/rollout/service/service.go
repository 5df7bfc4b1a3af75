// Package service implements the rollout controller
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"progcap/internal/core/cohort"
	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/logger"
	"progcap/internal/services/rollout/domain"
	"progcap/internal/services/rollout/repo"
)

// Svc implements domain.ServicePort
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	db     repokit.TxRunner
	log    logger.Logger
	now    func() time.Time
}

// New constructs a rollout controller
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo]) *Svc {
	if db == nil {
		panic("rollout.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("rollout.Service requires a non nil Repo binder")
	}
	return &Svc{
		Repo:   binder.Bind(db),
		binder: binder,
		db:     db,
		log:    *logger.Named("rollout"),
		now:    time.Now,
	}
}

func validFeature(feature string) error {
	if strings.TrimSpace(feature) == "" {
		return perr.WithField(perr.Validationf("feature is required"), "feature")
	}
	return nil
}

// GetConfig returns the feature state; an unknown feature reads as 0% with no stop
func (s *Svc) GetConfig(ctx context.Context, feature string) (domain.Config, error) {
	if err := validFeature(feature); err != nil {
		return domain.Config{}, err
	}
	c, err := s.Repo.Get(ctx, feature)
	if errors.Is(err, perr.ErrNotFound) {
		return domain.Default(feature), nil
	}
	return c, err
}

// List returns every configured feature
func (s *Svc) List(ctx context.Context) ([]domain.Config, error) {
	return s.Repo.List(ctx)
}

// History returns the newest changes first
func (s *Svc) History(ctx context.Context, feature string, limit int) ([]domain.HistoryEntry, error) {
	if err := validFeature(feature); err != nil {
		return nil, err
	}
	return s.Repo.History(ctx, feature, limit)
}

// SetPercentage changes the share of repositories in the cohort
func (s *Svc) SetPercentage(ctx context.Context, feature string, pct int, reason, actor string) (domain.Config, error) {
	if pct < 0 || pct > 100 {
		return domain.Config{}, perr.WithField(perr.Validationf("percentage must be between 0 and 100, got %d", pct), "percentage")
	}
	return s.mutate(ctx, feature, domain.Change{Reason: reason, Actor: actor}, func(c *domain.Config) {
		c.Percentage = pct
	})
}

// SetEmergencyStop sets or clears the stop; the stored percentage is untouched
func (s *Svc) SetEmergencyStop(ctx context.Context, feature string, stop bool, reason, actor string) (domain.Config, error) {
	return s.mutate(ctx, feature, domain.Change{Reason: reason, Actor: actor}, func(c *domain.Config) {
		if c.EmergencyStop && !stop {
			now := s.now().UTC()
			c.StopClearedAt = &now
		}
		c.EmergencyStop = stop
	})
}

// SetStrategy changes how cohort membership is computed
func (s *Svc) SetStrategy(ctx context.Context, feature string, st cohort.Strategy, reason, actor string) (domain.Config, error) {
	if !st.Valid() {
		return domain.Config{}, perr.WithField(perr.Validationf("unknown strategy %q", st), "strategy")
	}
	return s.mutate(ctx, feature, domain.Change{Reason: reason, Actor: actor}, func(c *domain.Config) {
		c.Strategy = st
	})
}

// mutate locks the row, applies fn, saves and appends exactly one history row in one transaction
func (s *Svc) mutate(ctx context.Context, feature string, ch domain.Change, fn func(*domain.Config)) (domain.Config, error) {
	if err := validFeature(feature); err != nil {
		return domain.Config{}, err
	}
	ch.Reason, ch.Actor = strings.TrimSpace(ch.Reason), strings.TrimSpace(ch.Actor)
	if ch.Reason == "" {
		return domain.Config{}, perr.WithField(perr.Validationf("reason is required"), "reason")
	}
	if ch.Actor == "" {
		return domain.Config{}, perr.WithField(perr.Validationf("actor is required"), "actor")
	}

	var (
		out  domain.Config
		prev domain.Config
	)
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		cur, err := r.Lock(ctx, feature)
		if err != nil {
			return err
		}
		prev = cur
		next := cur
		fn(&next)
		if out, err = r.Save(ctx, next); err != nil {
			return err
		}
		_, err = r.Append(ctx, domain.HistoryEntry{
			Feature:            feature,
			PreviousPercentage: prev.Percentage,
			NewPercentage:      out.Percentage,
			PreviousStop:       prev.EmergencyStop,
			NewStop:            out.EmergencyStop,
			PreviousStrategy:   prev.Strategy,
			NewStrategy:        out.Strategy,
			Reason:             ch.Reason,
			Actor:              ch.Actor,
		})
		return err
	})
	if err != nil {
		return domain.Config{}, err
	}

	ev := s.log.Info()
	if out.EmergencyStop != prev.EmergencyStop {
		ev = s.log.Warn()
	}
	ev.Str("feature", feature).
		Int("percentage", out.Percentage).
		Str("strategy", string(out.Strategy)).
		Bool("emergency_stop", out.EmergencyStop).
		Int64("version", out.Version).
		Str("actor", ch.Actor).
		Str("reason", ch.Reason).
		Msg("rollout changed")
	return out, nil
}
