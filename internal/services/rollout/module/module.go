// Package module wires the rollout controller and exposes its ports
package module

import (
	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/services/rollout/domain"
	"progcap/internal/services/rollout/repo"
	"progcap/internal/services/rollout/service"
)

// Ports exposed by the rollout module
// the guard only receives Stop
type Ports struct {
	Service domain.ServicePort
	Stop    domain.StopSetter
}

// Module implements the rollout module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the rollout module
func New(deps modkit.Deps) *Module {
	svc := service.New(deps.PG, repo.NewPG())

	m := &Module{deps: deps}
	m.ports = Ports{Service: svc, Stop: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "rollout" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(httpkit.Router) {}
