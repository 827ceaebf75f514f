// Package api provides the HTTP API for the application
package api

import (
	"zonepulse/internal/platform/config"
	"zonepulse/internal/platform/logger"
	phttp "zonepulse/internal/platform/net/http"
	"zonepulse/internal/platform/store"

	"zonepulse/internal/modkit"
	"zonepulse/internal/modkit/httpkit"

	reportsmod "zonepulse/internal/services/api/reports/module"
	zonesyncmod "zonepulse/internal/services/zonesync/module"
)

// Options are the API options
type Options struct {
	Config config.Conf
	Store  *store.Store
	Logger *logger.Logger
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) *zonesyncmod.Module {
	deps := modkit.Deps{
		Log: *opt.Logger,
		Cfg: opt.Config,
		PG:  opt.Store.PG,
	}

	// zonesync owns the orchestrator and storage; reports is its http face
	zs := zonesyncmod.New(deps)
	rep := reportsmod.New(deps, zs.Ports().Sync)

	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		rep.MountRoutes(api)
	})

	return zs
}
