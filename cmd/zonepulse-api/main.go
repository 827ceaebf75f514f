package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"zonepulse/internal/platform/config"
	"zonepulse/internal/platform/logger"
	"zonepulse/internal/platform/migrate"
	phttp "zonepulse/internal/platform/net/http"
	"zonepulse/internal/platform/store"

	"zonepulse/internal/services/api"
	"zonepulse/internal/services/zonesync/cronsync"
)

func main() {
	// local dev convenience; absent .env is fine
	_ = godotenv.Load()

	root := config.New()
	apiCfg := root.Prefix("CORE_API_")
	pgCfg := root.Prefix("SERVICE_PGSQL_")

	l := logger.Get()

	dsn := pgCfg.MustString("DBURL")
	st, err := store.Open(
		context.Background(),
		store.Config{
			PG: store.PGConfig{
				Enabled:     true,
				URL:         dsn,
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", false),
			},
		},
		store.WithLogger(*l),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	if err := migrate.Up(context.Background(), dsn); err != nil {
		l.Panic().Err(err).Msg("migrations failed")
	}

	// http server (reads CORE_API_PORT)
	srv := phttp.NewServer(apiCfg)

	zs := api.Mount(srv.Router(), api.Options{
		Config: root,
		Store:  st,
		Logger: l,
	})

	// unattended nightly runs, disabled unless CORE_SYNC_CRON_SPEC is set
	cr := cronsync.FromConfig(root, zs.Ports().Sync)
	if err := cr.Start(); err != nil {
		l.Panic().Err(err).Msg("cronsync start failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()

	select {
	case err := <-errc:
		if err != nil {
			l.Panic().Err(err).Msg("http server stopped")
		}
	case <-ctx.Done():
		l.Info().Msg("shutting down")
		cr.Stop()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			l.Error().Err(err).Msg("shutdown failed")
		}
	}
}
