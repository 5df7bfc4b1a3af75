// Package module wires repository resolution and exposes its ports
package module

import (
	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/services/repos/domain"
	"progcap/internal/services/repos/repo"
	"progcap/internal/services/repos/service"
)

// Ports exposed by the repos module
type Ports struct {
	Service domain.ServicePort
}

// Module implements the repos module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the repos module; gh is the paced client used on registry misses
func New(deps modkit.Deps, gh service.Fetcher) *Module {
	largeKB := deps.Cfg.Prefix("CAPTURE_GH_").MayInt("LARGE_REPO_KB", 1_000_000)
	svc := service.New(deps.PG, repo.NewPG(), gh, service.Config{LargeKB: int64(largeKB)})

	m := &Module{deps: deps}
	m.ports = Ports{Service: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "repos" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(httpkit.Router) {}
