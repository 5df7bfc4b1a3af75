// Package module wires the stuck-job reconciler
package module

import (
	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/modkit/repokit"
	"progcap/internal/platform/config"
	jobsrepo "progcap/internal/services/jobs/repo"
	progressrepo "progcap/internal/services/progress/repo"
	"progcap/internal/services/reconciler/domain"
	"progcap/internal/services/reconciler/service"
	routerdomain "progcap/internal/services/router/domain"
	tldomain "progcap/internal/services/timeline/domain"
)

// Ports exposed by the reconciler module
type Ports struct {
	Service domain.ServicePort
	Worker  *service.Svc
}

// Module implements the reconciler module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// FromConfig reads CAPTURE_RECONCILER_*
func FromConfig(cfg config.Conf) service.Config {
	c := cfg.Prefix("CAPTURE_RECONCILER_")
	return service.Config{
		Timeout:     c.MayDuration("TIMEOUT", 0),
		Interval:    c.MayDuration("INTERVAL", 0),
		Batch:       c.MayInt("BATCH", 100),
		StatsWindow: c.MayDuration("STATS_WINDOW", 0),
	}
}

// New constructs the reconciler module
func New(
	deps modkit.Deps,
	jobs repokit.Binder[jobsrepo.Repo],
	progress repokit.Binder[progressrepo.Repo],
	follow routerdomain.FollowUp,
	events tldomain.Recorder,
) *Module {
	svc := service.New(deps.PG, jobs, progress, follow, events, FromConfig(deps.Cfg))
	m := &Module{deps: deps}
	m.ports = Ports{Service: svc, Worker: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "reconciler" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(httpkit.Router) {}
