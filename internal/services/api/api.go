// Package api provides the HTTP API for the capture engine
package api

import (
	"progcap/internal/platform/config"
	"progcap/internal/platform/logger"
	"progcap/internal/platform/metrics"
	phttp "progcap/internal/platform/net/http"
	"progcap/internal/platform/store"

	"progcap/internal/modkit"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/modkit/module"
	"progcap/internal/modkit/swaggerkit"

	backendapi "progcap/internal/services/api/backend/module"
	captureapi "progcap/internal/services/api/capture/module"
	metamod "progcap/internal/services/api/meta/module"
	operatorapi "progcap/internal/services/api/operator/module"
	"progcap/internal/services/engine"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	EnableSwagger  bool
	EnableProfiler bool
	// EnableWorkers exposes on demand sweeps and guard state through the operator API
	EnableWorkers bool
}

// Mount mounts the API service onto the given router and returns the engine graph
// so the caller can run its background loops
func Mount(r phttp.Router, opt Options) *engine.Graph {
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
	}
	if opt.Logger != nil {
		deps.Log = *opt.Logger
	}

	g := engine.Build(deps)

	ops := operatorapi.Ports{
		Rollout: g.Rollout.Service,
		DLQ:     g.DeadLetter.Service,
		Jobs:    g.Jobs.Service,
		Router:  g.Router.Service,
		Repos:   g.Repos.Service,
		Quota:   g.RateLimit.Service,
		Events:  g.Timeline.Service,
	}
	if opt.EnableWorkers {
		ops.Reconciler = g.Reconciler.Service
		ops.Guard = g.Guard.Service
	}

	mods := []module.Module{
		metamod.New(deps),
		captureapi.New(deps, modkit.WithPorts(captureapi.Ports{
			Router:   g.Router.Service,
			Jobs:     g.Jobs.Service,
			Progress: g.Progress.Service,
		})),
		backendapi.New(deps, modkit.WithPorts(backendapi.Ports{
			Router:   g.Router.Service,
			Progress: g.Progress.Service,
			Quota:    g.RateLimit.Service,
		})),
		operatorapi.New(deps, modkit.WithPorts(ops)),
	}

	// versioned API with a common middleware stack
	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		swaggerkit.Mount(r, opt.EnableSwagger)
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)
		r.Handle("/metrics", metrics.Handler())

		for _, m := range mods {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(api)
		}
	})

	return g
}
