package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"progcap/internal/modkit"
	"progcap/internal/modkit/repokit"
	"progcap/internal/platform/config"
	"progcap/internal/platform/logger"
	"progcap/internal/platform/metrics"
	phttp "progcap/internal/platform/net/http"
	"progcap/internal/platform/store"

	"progcap/internal/services/engine"
	rlmod "progcap/internal/services/ratelimit/module"
)

func main() {
	var (
		fMode = flag.String("mode", "all", "sweeper mode: all | reconcile | guard | ratelimit")
		fOnce = flag.Bool("once", false, "run a single pass and exit")
	)
	flag.Parse()

	_ = godotenv.Load()

	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chURL := root.MayString("SERVICE_CHDB_URL", "")

	l := logger.Get()

	mode := *fMode
	switch mode {
	case "all", "reconcile", "guard", "ratelimit":
	default:
		l.Panic().Str("mode", mode).Msg("sweeper unknown -mode (expected: all | reconcile | guard | ratelimit)")
	}
	on := func(m string) bool { return mode == "all" || mode == m }

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		AppName: "progcap",
		Role:    "sweeper",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled: chURL != "",
			URL:     chURL,
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	// a store that opened but does not answer fails the process before any route or loop starts
	repokit.MustGuard(ctx, st)
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	g := engine.Build(modkit.Deps{Cfg: root, PG: st.PG, CH: st.CH, Log: *l})
	if err := g.Timeline.Worker.Ensure(ctx); err != nil {
		l.Warn().Err(err).Msg("event ledger table not ready")
	}

	if *fOnce {
		runOnce(ctx, l, g, on)
		return
	}

	probeEvery := rlmod.FromConfig(root).ProbeInterval

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.Timeline.Worker.Run(ctx) })
	if on("reconcile") {
		eg.Go(func() error { return g.Reconciler.Worker.Run(ctx) })
	}
	if on("guard") {
		eg.Go(func() error { return g.Guard.Worker.Run(ctx) })
	}
	if on("ratelimit") {
		eg.Go(func() error { return g.RateLimit.Worker.Run(ctx, probeEvery) })
	}

	srv := phttp.NewServerAddr(root.MayString("SWEEPER_METRICS_PORT", ":4100"))
	r := srv.Router()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		phttp.JSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": mode})
	})
	eg.Go(func() error { return srv.Run(ctx) })

	l.Info().Str("mode", mode).Msg("sweeper started")
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.Fatal().Err(err).Msg("sweeper stopped")
	}
	l.Info().Msg("sweeper stopped")
}

// runOnce does a single pass of each enabled loop, then drains the ledger
func runOnce(ctx context.Context, l *logger.Logger, g *engine.Graph, on func(string) bool) {
	if on("ratelimit") {
		if err := g.RateLimit.Worker.Probe(ctx); err != nil {
			l.Error().Err(err).Msg("rate limit probe failed")
		}
	}
	if on("reconcile") {
		if _, err := g.Reconciler.Service.Sweep(ctx); err != nil {
			l.Error().Err(err).Msg("stuck job sweep failed")
		}
	}
	if on("guard") {
		if _, err := g.Guard.Service.Check(ctx); err != nil {
			l.Error().Err(err).Msg("error spike check failed")
		}
	}
	if err := g.Timeline.Worker.Flush(ctx); err != nil {
		l.Error().Err(err).Msg("event ledger flush failed")
	}
}
