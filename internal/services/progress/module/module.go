// Package module wires the progress tracker and exposes its ports
package module

import (
	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/modkit/repokit"
	"progcap/internal/services/progress/domain"
	"progcap/internal/services/progress/repo"
	"progcap/internal/services/progress/service"
)

// Ports exposed by the progress module
type Ports struct {
	Service domain.ServicePort
	Binder  repokit.Binder[repo.Repo]
}

// Module implements the progress module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the progress module; jobs explains rejected writes
func New(deps modkit.Deps, jobs service.JobReader) *Module {
	binder := repo.NewPG()
	svc := service.New(deps.PG, binder, jobs)

	m := &Module{deps: deps}
	m.ports = Ports{Service: svc, Binder: binder}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "progress" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(httpkit.Router) {}
