// Package module wires the dead letter queue and exposes its ports
package module

import (
	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/modkit/repokit"
	"progcap/internal/services/deadletter/domain"
	"progcap/internal/services/deadletter/repo"
	"progcap/internal/services/deadletter/service"
	jobsrepo "progcap/internal/services/jobs/repo"
)

// Ports exposed by the dead letter module
type Ports struct {
	Service domain.ServicePort
}

// Module implements the dead letter module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the dead letter module
func New(deps modkit.Deps, jobs repokit.Binder[jobsrepo.Repo]) *Module {
	opts := FromConfig(deps.Cfg)
	svc := service.New(deps.PG, repo.NewPG(), jobs, service.Config{RetryMax: opts.RetryMax})

	m := &Module{deps: deps}
	m.ports = Ports{Service: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "deadletter" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(httpkit.Router) {}
