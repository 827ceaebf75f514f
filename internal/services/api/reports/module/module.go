// Package module wires reports into the API
package module

import (
	"zonepulse/internal/modkit"
	"zonepulse/internal/modkit/httpkit"
	reportshttp "zonepulse/internal/services/api/reports/http"
	"zonepulse/internal/services/zonesync/domain"
)

// Module exposes the stored digests and the sync runner over http
type Module struct {
	deps modkit.Deps
	sync domain.Ports
}

// New constructs the reports module around the zonesync ports
func New(deps modkit.Deps, sync domain.Ports) *Module {
	return &Module{deps: deps, sync: sync}
}

// MountRoutes mounts the module routes on the given router.
// Paths span /zones and /targets, so the module mounts at the api root
func (m *Module) MountRoutes(r httpkit.Router) {
	reportshttp.Register(r, m.sync)
}

// Name returns the module name
func (m *Module) Name() string { return "reports" }
