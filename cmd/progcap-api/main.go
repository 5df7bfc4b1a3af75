// @title         Progressive Capture API
// @version       0.1.0
// @description   Capture job submission, backend callbacks and operator controls
// @BasePath      /api/v1

package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"progcap/internal/modkit/repokit"
	"progcap/internal/platform/config"
	"progcap/internal/platform/logger"
	phttp "progcap/internal/platform/net/http"
	"progcap/internal/platform/store"
	"progcap/internal/platform/store/schema"

	"progcap/internal/services/api"
)

func main() {
	fMigrate := flag.Bool("migrate", false, "apply the postgres schema before serving")
	fWorkers := flag.Bool("workers", false, "also run the reconciler, guard and ledger loops in this process")
	flag.Parse()

	// a local .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	root := config.New()
	apiCfg := root.Prefix("API_")
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chURL := root.MayString("SERVICE_CHDB_URL", "")

	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		AppName: "progcap",
		Role:    "api",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 8)),
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

	if *fMigrate {
		if err := schema.Apply(ctx, st.PG); err != nil {
			l.Panic().Err(err).Msg("schema apply failed")
		}
		l.Info().Msg("schema applied")
	}

	srv := phttp.NewServer(root)

	g := api.Mount(srv.Router(), api.Options{
		Config:         root,
		Store:          st,
		Logger:         l,
		EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
		EnableProfiler: apiCfg.MayBool("PROFILER", false),
		EnableWorkers:  *fWorkers,
	})

	if err := g.Timeline.Worker.Ensure(ctx); err != nil {
		l.Warn().Err(err).Msg("event ledger table not ready")
	}
	go func() { _ = g.Timeline.Worker.Run(ctx) }()
	if *fWorkers {
		go func() { _ = g.Reconciler.Worker.Run(ctx) }()
		go func() { _ = g.Guard.Worker.Run(ctx) }()
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Panic().Err(err).Msg("http server stopped")
	}
	if err := g.Timeline.Worker.Flush(context.Background()); err != nil {
		l.Warn().Err(err).Msg("event ledger flush on shutdown")
	}
	l.Info().Msg("api stopped")
}
