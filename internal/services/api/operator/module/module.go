// Package module wires the operator endpoints into the API
package module

import (
	"net/http"

	modkit "progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	str "progcap/internal/platform/strings"
	operatorhttp "progcap/internal/services/api/operator/http"
)

// Ports are the injected service ports
type Ports = operatorhttp.Deps

// Module implements the operator API module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)
}

// New constructs the operator module; Ports must be injected with modkit.WithPorts
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("operator"),
		modkit.WithPrefix("/operator"),
	}, opts...)...)

	p, ok := b.Ports.(Ports)
	if !ok || p.Rollout == nil || p.DLQ == nil || p.Jobs == nil || p.Router == nil || p.Repos == nil || p.Quota == nil {
		panic("operator API module requires rollout, dead letter, jobs, router, repository and quota ports")
	}

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
	}
	// an empty token leaves the routes open, for local runs behind a private network
	token := deps.Cfg.Prefix("CAPTURE_").MayString("OPERATOR_TOKEN", "")
	external := b.Register
	m.register = func(r httpkit.Router) {
		if token == "" {
			operatorhttp.Register(r, p)
		} else {
			httpkit.Protected(r, httpkit.StaticToken("operator", token), func(pr httpkit.Router) {
				operatorhttp.Register(pr, p)
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
func (m *Module) Name() string { return str.MustString(m.name, "operator") }

// Prefix implements the modkit.Module interface
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return nil }
