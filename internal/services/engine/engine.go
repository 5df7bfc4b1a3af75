// Package engine assembles the capture service modules into one graph
// shared by the API and the sweeper process
package engine

import (
	"progcap/internal/core/route"
	"progcap/internal/modkit"
	"progcap/internal/modkit/module"

	dlmod "progcap/internal/services/deadletter/module"
	jobsmod "progcap/internal/services/jobs/module"
	progressmod "progcap/internal/services/progress/module"
	rlmod "progcap/internal/services/ratelimit/module"
	recmod "progcap/internal/services/reconciler/module"
	reposmod "progcap/internal/services/repos/module"
	rolloutmod "progcap/internal/services/rollout/module"
	routermod "progcap/internal/services/router/module"
	routersvc "progcap/internal/services/router/service"
	guardmod "progcap/internal/services/spikeguard/module"
	tlmod "progcap/internal/services/timeline/module"
)

// Graph holds every constructed service module and its typed ports
type Graph struct {
	Modules []module.Module

	Jobs       jobsmod.Ports
	Progress   progressmod.Ports
	DeadLetter dlmod.Ports
	Rollout    rolloutmod.Ports
	RateLimit  rlmod.Ports
	Repos      reposmod.Ports
	Timeline   tlmod.Ports
	Router     routermod.Ports
	Reconciler recmod.Ports
	Guard      guardmod.Ports
}

// Build wires the service modules in dependency order and registers their ports
func Build(deps modkit.Deps) *Graph {
	g := &Graph{}

	jobs := jobsmod.New(deps)
	g.Jobs = module.MustPortsOf[jobsmod.Ports](jobs)

	progress := progressmod.New(deps, g.Jobs.Service)
	g.Progress = module.MustPortsOf[progressmod.Ports](progress)

	dlq := dlmod.New(deps, g.Jobs.Binder)
	g.DeadLetter = module.MustPortsOf[dlmod.Ports](dlq)

	rollout := rolloutmod.New(deps)
	g.Rollout = module.MustPortsOf[rolloutmod.Ports](rollout)

	rl := rlmod.New(deps, rlmod.Options{})
	g.RateLimit = module.MustPortsOf[rlmod.Ports](rl)

	// repository lookups are the orchestrator's own calls and spend the realtime pool
	repos := reposmod.New(deps, g.RateLimit.GitHub[route.Realtime])
	g.Repos = module.MustPortsOf[reposmod.Ports](repos)

	timeline := tlmod.New(deps)
	g.Timeline = module.MustPortsOf[tlmod.Ports](timeline)

	router := routermod.New(deps, routersvc.Deps{
		Jobs:    g.Jobs.Service,
		Repos:   g.Repos.Service,
		Rollout: g.Rollout.Service,
		Quota:   g.RateLimit.Service,
		DLQ:     g.DeadLetter.Service,
		Events:  g.Timeline.Service,
	})
	g.Router = module.MustPortsOf[routermod.Ports](router)

	rec := recmod.New(deps, g.Jobs.Binder, g.Progress.Binder, g.Router.FollowUp, g.Timeline.Service)
	g.Reconciler = module.MustPortsOf[recmod.Ports](rec)

	guard := guardmod.New(deps, g.Rollout.Service, g.Jobs.Store, g.Rollout.Stop, g.Timeline.Service)
	g.Guard = module.MustPortsOf[guardmod.Ports](guard)

	g.Modules = []module.Module{jobs, progress, dlq, rollout, rl, repos, timeline, router, rec, guard}
	for _, m := range g.Modules {
		module.Register(m.Name(), m.Ports())
	}
	return g
}
