// Package module wires the zonesync service
package module

import (
	"zonepulse/internal/adapters/upstream/cloudflare"
	"zonepulse/internal/modkit"
	"zonepulse/internal/modkit/repokit"
	"zonepulse/internal/services/zonesync/domain"
	"zonepulse/internal/services/zonesync/repo"
	"zonepulse/internal/services/zonesync/service"
)

// Ports defines what the zonesync module exposes to other modules
type Ports struct {
	Sync domain.Ports
}

// Module implements the zonesync module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the zonesync module from config in deps.Cfg.
// It does not mount any routes; the api module consumes its ports
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	storeBinder := repo.NewPG()

	factory := domain.UpstreamFactory(func(token string) domain.Upstream {
		return cloudflare.NewClient(cloudflare.Options{
			BaseURL:    opts.APIBase,
			Token:      token,
			Timeout:    opts.FetchTimeout,
			MaxRetries: opts.ClientRetries,
		})
	})

	svc := service.New(
		repokit.TxRunner(deps.PG), storeBinder, factory,
		service.Config{
			Days:           opts.Days,
			InterDateDelay: opts.InterDateDelay,
			MaxAttempts:    opts.MaxAttempts,
			RetryDelay:     opts.RetryDelay,
		},
	)

	m := &Module{deps: deps}
	m.ports = Ports{Sync: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "zonesync" }

// Ports returns the module ports
func (m *Module) Ports() Ports { return m.ports }
