// Package service resolves capture targets against the local registry and GitHub
package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"

	gh "progcap/internal/adapters/github"
	"progcap/internal/modkit/repokit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/logger"
	"progcap/internal/services/repos/domain"
	"progcap/internal/services/repos/repo"
)

// Fetcher reads repository documents from GitHub
type Fetcher interface {
	RepoByID(ctx context.Context, id int64, etag string) (gh.Repo, string, bool, error)
	RepoByFullName(ctx context.Context, owner, name, etag string) (gh.Repo, string, bool, error)
}

// Config holds the large repository threshold
type Config struct {
	LargeKB int64
}

// Svc implements domain.ServicePort
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	db     repokit.TxRunner
	gh     Fetcher
	cfg    Config
	fold   cases.Caser
	log    logger.Logger
}

// New constructs the resolver; gh may be nil to resolve from the registry only
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo], gh Fetcher, cfg Config) *Svc {
	if db == nil {
		panic("repos.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("repos.Service requires a non nil Repo binder")
	}
	if cfg.LargeKB <= 0 {
		cfg.LargeKB = 1_000_000
	}
	return &Svc{
		Repo:   binder.Bind(db),
		binder: binder,
		db:     db,
		gh:     gh,
		cfg:    cfg,
		fold:   cases.Fold(),
		log:    *logger.Named("repos"),
	}
}

// NameKey is the lookup key of a full name; GitHub names are case insensitive
func (s *Svc) NameKey(fullName string) string {
	return s.fold.String(strings.TrimSpace(fullName))
}

// Resolve returns a known repository, fetching and registering it on first use
func (s *Svc) Resolve(ctx context.Context, id int64) (domain.Repository, error) {
	if id <= 0 {
		return domain.Repository{}, perr.WithField(perr.Validationf("repository id must be positive"), "repository.id")
	}
	x, err := s.Repo.Get(ctx, id)
	if err == nil {
		return x, nil
	}
	if !errors.Is(err, perr.ErrNotFound) {
		return domain.Repository{}, err
	}
	if s.gh == nil {
		return domain.Repository{}, perr.WithField(perr.Validationf("unknown repository %d", id), "repository.id")
	}
	doc, _, _, err := s.gh.RepoByID(ctx, id, "")
	if err != nil {
		return domain.Repository{}, s.fetchErr(err, "repository %d", id)
	}
	return s.register(ctx, doc)
}

// ResolveName resolves owner/name the same way
func (s *Svc) ResolveName(ctx context.Context, fullName string) (domain.Repository, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return domain.Repository{}, perr.WithField(perr.Validationf("repository name must be owner/name"), "repository.name")
	}
	x, err := s.Repo.ByNameKey(ctx, s.NameKey(fullName))
	if err == nil {
		return x, nil
	}
	if !errors.Is(err, perr.ErrNotFound) {
		return domain.Repository{}, err
	}
	if s.gh == nil {
		return domain.Repository{}, perr.WithField(perr.Validationf("unknown repository %s", fullName), "repository.name")
	}
	doc, _, _, err := s.gh.RepoByFullName(ctx, owner, name, "")
	if err != nil {
		return domain.Repository{}, s.fetchErr(err, "repository %s", fullName)
	}
	return s.register(ctx, doc)
}

func (s *Svc) fetchErr(err error, format string, a ...any) error {
	switch {
	case gh.IsNotFound(err):
		return perr.WithField(perr.Validationf("unknown "+format, a...), "repository")
	case gh.IsRateLimited(err), gh.IsTransient(err), perr.IsCode(err, perr.ErrorCodeUnavailable):
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "resolve "+format, a...)
	}
	return err
}

func (s *Svc) register(ctx context.Context, doc gh.Repo) (domain.Repository, error) {
	if doc.ID <= 0 || doc.FullName == "" {
		return domain.Repository{}, perr.Newf(perr.ErrorCodeUnavailable, "github returned an incomplete repository document")
	}
	in := domain.Repository{
		ID:       doc.ID,
		FullName: doc.FullName,
		NameKey:  s.NameKey(doc.FullName),
		IsLarge:  doc.SizeKB >= s.cfg.LargeKB,
		SizeKB:   doc.SizeKB,
	}
	var out domain.Repository
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		out, err = s.binder.Bind(q).Upsert(ctx, in)
		return err
	})
	if err != nil {
		return domain.Repository{}, err
	}
	s.log.Info().Int64("repo_id", out.ID).Str("full_name", out.FullName).Bool("large", out.IsLarge).Msg("repository registered")
	return out, nil
}

// MarkLarge sets the operator flag that routes a repository to bulk
func (s *Svc) MarkLarge(ctx context.Context, id int64, large bool) (domain.Repository, error) {
	if _, err := s.Resolve(ctx, id); err != nil {
		return domain.Repository{}, err
	}
	x, err := s.Repo.SetLarge(ctx, id, large)
	if errors.Is(err, perr.ErrNotFound) {
		return domain.Repository{}, perr.NotFoundf("repository %d not found", id)
	}
	return x, err
}
