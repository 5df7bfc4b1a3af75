// Package module wires the capture endpoints into the API
package module

import (
	"net/http"

	modkit "progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	str "progcap/internal/platform/strings"
	capturehttp "progcap/internal/services/api/capture/http"
)

// Ports are the injected service ports
type Ports = capturehttp.Deps

// Module implements the capture API module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)
}

// New constructs the capture module; Ports must be injected with modkit.WithPorts
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("capture"),
		modkit.WithPrefix("/capture"),
	}, opts...)...)

	p, ok := b.Ports.(Ports)
	if !ok || p.Router == nil || p.Jobs == nil || p.Progress == nil {
		panic("capture API module requires router, jobs and progress ports")
	}

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
	}
	external := b.Register
	m.register = func(r httpkit.Router) {
		capturehttp.Register(r, p)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes implements the modkit.Module interface
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		m.register(rr)
	})
}

// Name implements the modkit.Module interface
func (m *Module) Name() string { return str.MustString(m.name, "capture") }

// Prefix implements the modkit.Module interface
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return nil }
