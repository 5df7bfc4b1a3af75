// Package module wires the jobs service and exposes its ports
package module

import (
	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/modkit/repokit"
	"progcap/internal/services/jobs/domain"
	"progcap/internal/services/jobs/repo"
	"progcap/internal/services/jobs/service"
)

// Ports exposed by the jobs module
// Binder lets the reconciler and dead letter queue join job updates to their own transactions;
// Store is the pool bound repo for aggregate reads such as the failure count
type Ports struct {
	Service domain.ServicePort
	Binder  repokit.Binder[repo.Repo]
	Store   repo.Repo
}

// Module implements the jobs module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the jobs module on the Postgres repo
func New(deps modkit.Deps) *Module {
	binder := repo.NewPG()
	svc := service.New(deps.PG, binder)

	m := &Module{deps: deps}
	m.ports = Ports{Service: svc, Binder: binder, Store: svc.Repo}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "jobs" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// MountRoutes satisfies modkit.Module; jobs are exposed through the capture and backend APIs
func (m *Module) MountRoutes(httpkit.Router) {}
