// Package module wires the rate limit monitor and the GitHub clients it paces
package module

import (
	gh "progcap/internal/adapters/github"
	"progcap/internal/core/route"
	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/services/ratelimit/domain"
	"progcap/internal/services/ratelimit/repo"
	"progcap/internal/services/ratelimit/service"
)

// Ports exposed by the rate limit module
// GitHub holds one paced client per backend scope
type Ports struct {
	Service domain.ServicePort
	Worker  *service.Svc
	GitHub  map[route.Backend]*gh.Client
}

// Module implements the rate limit module
type Module struct {
	deps  modkit.Deps
	opts  Options
	ports Ports
}

// New constructs the monitor and registers both credential pools as probers
func New(deps modkit.Deps, overrides Options) *Module {
	opts := FromConfig(deps.Cfg)
	if overrides.ProbeInterval != 0 {
		opts.ProbeInterval = overrides.ProbeInterval
	}
	if overrides.Reserve != 0 {
		opts.Reserve = overrides.Reserve
	}

	svc := service.New(deps.PG, repo.NewPG(), service.Config{
		Reserve:    opts.Reserve,
		RPS:        opts.RPS,
		Burst:      opts.Burst,
		StaleAfter: opts.StaleAfter,
		MaxWait:    opts.MaxWait,
	})

	clients := map[route.Backend]*gh.Client{}
	for b, tokens := range map[route.Backend]string{
		route.Realtime: opts.GHTokensRealtime,
		route.Bulk:     opts.GHTokensBulk,
	} {
		c := gh.NewClient(gh.Options{
			BaseURL:    opts.GHBaseURL,
			UserAgent:  opts.GHUserAgent,
			Timeout:    opts.GHTimeout,
			Scope:      string(b),
			TokensCSV:  tokens,
			MaxRetries: opts.GHMaxRetries,
			RetryBase:  opts.GHRetryBase,
			Observer:   svc,
			Pacer:      svc,
		})
		clients[b] = c
		svc.AddProber(c)
	}

	m := &Module{deps: deps, opts: opts}
	m.ports = Ports{Service: svc, Worker: svc, GitHub: clients}
	return m
}

// Options returns the resolved options
func (m *Module) Options() Options { return m.opts }

// Name satisfies modkit.Module
func (m *Module) Name() string { return "ratelimit" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(httpkit.Router) {}
