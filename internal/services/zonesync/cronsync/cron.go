// Package cronsync runs unattended nightly sync jobs on a cron schedule
package cronsync

import (
	"context"
	"strings"
	"time"

	"zonepulse/internal/platform/config"
	"zonepulse/internal/platform/logger"
	"zonepulse/internal/services/zonesync/domain"

	"github.com/robfig/cron/v3"
)

// ZoneCred pairs a zone with the credential used for its scheduled runs
type ZoneCred struct {
	ZoneID string
	Token  string
}

// Runner owns the cron scheduler and drains sync events into the log
type Runner struct {
	cron  *cron.Cron
	svc   domain.RunnerPort
	log   logger.Logger
	spec  string
	zones []ZoneCred
}

// FromConfig builds a Runner from CORE_SYNC_CRON_* config. An empty schedule
// disables it. Zones are configured as "zoneID=token,zoneID=token"
func FromConfig(cfg config.Conf, svc domain.RunnerPort) *Runner {
	cs := cfg.Prefix("CORE_SYNC_CRON_")
	r := &Runner{
		cron: cron.New(),
		svc:  svc,
		log:  *logger.Named("cronsync"),
		spec: cs.MayString("SPEC", ""),
	}
	for _, pair := range strings.Split(cs.MayString("ZONES", ""), ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, tok, ok := strings.Cut(pair, "=")
		if !ok || id == "" || tok == "" {
			r.log.Warn().Str("entry", pair).Msg("cronsync zone entry malformed, skipping")
			continue
		}
		r.zones = append(r.zones, ZoneCred{ZoneID: id, Token: tok})
	}
	return r
}

// Enabled reports whether a schedule and at least one zone are configured
func (r *Runner) Enabled() bool { return r.spec != "" && len(r.zones) > 0 }

// Start registers the job and starts the scheduler
func (r *Runner) Start() error {
	if !r.Enabled() {
		r.log.Info().Msg("cronsync disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(r.spec, r.runAll); err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info().Str("spec", r.spec).Int("zones", len(r.zones)).Msg("cronsync scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		r.log.Warn().Msg("cronsync stop timed out waiting for running job")
	}
}

func (r *Runner) runAll() {
	ctx := context.Background()
	for _, z := range r.zones {
		r.runZone(ctx, z)
	}
}

// runZone drives one zone's sync, logging events instead of streaming them
func (r *Runner) runZone(ctx context.Context, z ZoneCred) {
	log := r.log.With().Str("zone", z.ZoneID).Logger()

	events := make(chan domain.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			switch ev.Kind {
			case domain.EventWarning:
				log.Warn().Str("message", ev.Message).Msg("sync warning")
			case domain.EventError:
				log.Error().Str("message", ev.Message).Msg("sync error")
			case domain.EventDone:
				log.Info().Int("subdomains", ev.SubdomainCount).Msg("sync done")
			case domain.EventProgress:
				log.Debug().
					Str("target", ev.Target).
					Str("date", ev.Date).
					Str("status", ev.Status).
					Int("current", ev.Current).
					Int("total", ev.Total).
					Msg("sync progress")
			}
		}
	}()

	err := r.svc.SyncZone(ctx, domain.SyncRequest{ZoneID: z.ZoneID, Token: z.Token}, events)
	<-done
	if err != nil {
		log.Error().Err(err).Msg("scheduled sync failed")
	}
}
