// Package module wires the backend callback endpoints into the API
package module

import (
	"net/http"

	modkit "progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	str "progcap/internal/platform/strings"
	backendhttp "progcap/internal/services/api/backend/http"
)

// Ports are the injected service ports
type Ports = backendhttp.Deps

// Module implements the backend API module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)
}

// New constructs the backend module; Ports must be injected with modkit.WithPorts
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("backend"),
		modkit.WithPrefix("/backend"),
	}, opts...)...)

	p, ok := b.Ports.(Ports)
	if !ok || p.Router == nil || p.Progress == nil || p.Quota == nil {
		panic("backend API module requires router, progress and quota ports")
	}

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
	}
	// an empty token leaves the routes open, for local runs behind a private network
	token := deps.Cfg.Prefix("CAPTURE_").MayString("BACKEND_TOKEN", "")
	external := b.Register
	m.register = func(r httpkit.Router) {
		if token == "" {
			backendhttp.Register(r, p)
		} else {
			httpkit.Protected(r, httpkit.StaticToken("backend", token), func(pr httpkit.Router) {
				backendhttp.Register(pr, p)
			})
		}
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
func (m *Module) Name() string { return str.MustString(m.name, "backend") }

// Prefix implements the modkit.Module interface
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return nil }
