// Package module wires the hybrid router to its ports and the HTTP dispatcher
package module

import (
	"progcap/internal/adapters/dispatch"
	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/services/router/domain"
	"progcap/internal/services/router/service"
)

// Ports exposed by the router module
type Ports struct {
	Service  domain.ServicePort
	FollowUp domain.FollowUp
}

// Module implements the router module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the router; a nil Dispatch in ports gets the HTTP dispatcher
func New(deps modkit.Deps, ports service.Deps) *Module {
	opts := FromConfig(deps.Cfg)
	if ports.Dispatch == nil {
		ports.Dispatch = dispatch.New(dispatch.Options{
			RealtimeURL: opts.RealtimeURL,
			BulkURL:     opts.BulkURL,
			Token:       opts.DispatchToken,
			Timeout:     opts.Router.DispatchTimeout,
		})
	}
	svc := service.New(ports, opts.Router)

	m := &Module{deps: deps}
	m.ports = Ports{Service: svc, FollowUp: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "router" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(httpkit.Router) {}
