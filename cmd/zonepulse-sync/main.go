package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"zonepulse/internal/modkit"
	"zonepulse/internal/platform/config"
	"zonepulse/internal/platform/logger"
	"zonepulse/internal/platform/migrate"
	"zonepulse/internal/platform/store"

	"zonepulse/internal/services/zonesync/domain"
	zonesyncmod "zonepulse/internal/services/zonesync/module"
)

func main() {
	_ = godotenv.Load()

	var (
		fZone   = flag.String("zone", "", "cloudflare zone id")
		fToken  = flag.String("token", "", "cloudflare api token (falls back to CLOUDFLARE_API_TOKEN)")
		fDays   = flag.Int("days", 0, "initial backfill depth in days when a target has no history")
		fNoSubs = flag.Bool("no-subdomains", false, "sync only the whole-zone target, skip dns discovery")
	)
	flag.Parse()

	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")

	// stdout carries the ndjson event stream, so logs must go to stderr
	lopt := logger.FromEnv()
	lopt.Writer = os.Stderr
	logger.Init(lopt)
	l := logger.Get()

	token := *fToken
	if token == "" {
		token = os.Getenv("CLOUDFLARE_API_TOKEN")
	}
	if *fZone == "" || token == "" {
		l.Fatal().Msg("must provide -zone and -token (or CLOUDFLARE_API_TOKEN)")
	}

	dsn := pgCfg.MustString("DBURL")
	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         dsn,
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 2)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
	}, store.WithLogger(*l))
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

	deps := modkit.Deps{
		Log: *l,
		Cfg: root,
		PG:  st.PG,
	}
	zs := zonesyncmod.New(deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// one json object per line on stdout
	events := make(chan domain.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		enc := json.NewEncoder(os.Stdout)
		for ev := range events {
			if err := enc.Encode(ev); err != nil {
				l.Error().Err(err).Msg("event write failed")
			}
		}
	}()

	err = zs.Ports().Sync.SyncZone(ctx, domain.SyncRequest{
		ZoneID:       *fZone,
		Token:        token,
		Days:         *fDays,
		NoSubdomains: *fNoSubs,
	}, events)
	<-done
	if err != nil {
		l.Fatal().Err(err).Msg("sync failed")
	}
}
