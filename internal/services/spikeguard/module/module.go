// Package module wires the error-spike rollback guard
package module

import (
	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/platform/config"
	rolloutdomain "progcap/internal/services/rollout/domain"
	"progcap/internal/services/spikeguard/domain"
	"progcap/internal/services/spikeguard/service"
	tldomain "progcap/internal/services/timeline/domain"
)

// Ports exposed by the guard module
type Ports struct {
	Service domain.ServicePort
	Worker  *service.Svc
}

// Module implements the guard module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// FromConfig reads CAPTURE_GUARD_*
func FromConfig(cfg config.Conf) service.Config {
	c := cfg.Prefix("CAPTURE_GUARD_")
	return service.Config{
		Window:    c.MayDuration("WINDOW", 0),
		Threshold: c.MayInt("THRESHOLD", 10),
		Interval:  c.MayDuration("INTERVAL", 0),
	}
}

// New constructs the guard; stop is the only write the guard gets on rollout state
func New(
	deps modkit.Deps,
	configs service.Configs,
	counter service.Counter,
	stop rolloutdomain.StopSetter,
	events tldomain.Recorder,
) *Module {
	svc := service.New(configs, counter, stop, events, FromConfig(deps.Cfg))
	m := &Module{deps: deps}
	m.ports = Ports{Service: svc, Worker: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "spikeguard" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(httpkit.Router) {}
