// Package module wires the lifecycle event ledger
package module

import (
	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/services/timeline/domain"
	"progcap/internal/services/timeline/repo"
	"progcap/internal/services/timeline/service"
)

// Ports exposed by the timeline module
type Ports struct {
	Service domain.ServicePort
	Worker  *service.Svc
}

// Module implements the timeline module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the ledger; without clickhouse it records nothing
func New(deps modkit.Deps) *Module {
	c := deps.Cfg.Prefix("CAPTURE_TIMELINE_")
	cfg := service.Config{
		BatchSize:     c.MayInt("BATCH", 200),
		FlushInterval: c.MayDuration("FLUSH_INTERVAL", 0),
	}
	var r repo.Repo
	if deps.CH != nil {
		r = repo.NewCH(deps.CH)
	}
	svc := service.New(r, cfg)

	m := &Module{deps: deps}
	m.ports = Ports{Service: svc, Worker: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "timeline" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(httpkit.Router) {}
