// Package migrate applies the embedded goose migrations at boot
package migrate

import (
	"context"
	"database/sql"
	"time"

	perr "zonepulse/internal/platform/errors"
	"zonepulse/internal/platform/logger"
	"zonepulse/migrations"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"
)

// Up applies any pending migrations against the database at dsn
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "migrate open")
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "migrate dialect")
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	log := logger.Named("migrate")
	before, _ := goose.GetDBVersionContext(runCtx, db)
	if err := goose.UpContext(runCtx, db, "."); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "migrate up")
	}
	after, _ := goose.GetDBVersionContext(runCtx, db)
	log.Info().Int64("from", before).Int64("to", after).Msg("migrations applied")
	return nil
}
