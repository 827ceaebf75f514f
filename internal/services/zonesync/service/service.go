// Package service implements the zonesync orchestrator
package service

import (
	"context"
	"fmt"
	"time"

	"zonepulse/internal/core/analytics"
	"zonepulse/internal/modkit/repokit"
	perr "zonepulse/internal/platform/errors"
	"zonepulse/internal/platform/logger"
	"zonepulse/internal/services/zonesync/domain"
)

// Config holds orchestrator pacing and retry settings
type Config struct {
	// Days is the initial backfill depth for a target with no history
	Days int // <=0 -> 30

	// InterDateDelay is the pause between processed dates, keeping load on
	// the upstream predictable
	InterDateDelay time.Duration

	// Per-day fetch retry policy
	MaxAttempts int           // <=0 -> 2
	RetryDelay  time.Duration // <=0 -> 5s
}

// Service walks calendar days per target and persists bounded digests.
// It is the only writer of sync state; callers serialize runs per zone
type Service struct {
	DB       repokit.TxRunner
	Binder   repokit.Binder[domain.StorageRepo]
	Upstream domain.UpstreamFactory
	Cfg      Config

	log logger.Logger
	now func() time.Time
}

// New constructs the orchestrator
func New(
	db repokit.TxRunner,
	binder repokit.Binder[domain.StorageRepo],
	factory domain.UpstreamFactory,
	cfg Config,
) *Service {
	if db == nil {
		panic("zonesync.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("zonesync.Service requires a non nil Repo binder")
	}
	if factory == nil {
		panic("zonesync.Service requires an upstream factory")
	}
	if cfg.Days <= 0 {
		cfg.Days = 30
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Service{
		DB:       db,
		Binder:   binder,
		Upstream: factory,
		Cfg:      cfg,
		log:      *logger.Named("zonesync"),
		now:      time.Now,
	}
}

// SyncZone runs the whole-zone target first, then discovered subdomains,
// emitting events until it closes the channel. Fatal failures end the
// stream with an error event; per-day failures become markers and warnings
func (s *Service) SyncZone(ctx context.Context, req domain.SyncRequest, events chan<- domain.Event) error {
	defer close(events)

	emit := func(ev domain.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	up := s.Upstream(req.Token)
	repo := s.Binder.Bind(s.DB)

	if !emit(domain.Phased(domain.PhaseCheck)) {
		return ctx.Err()
	}
	info, err := up.ZoneStatus(ctx, req.ZoneID)
	if err != nil {
		emit(domain.Failed("zone lookup failed: " + perr.Root(err).Error()))
		return err
	}

	ch := &chunker{
		fetch:       up,
		zoneID:      req.ZoneID,
		zoneName:    info.Name,
		accountName: info.AccountName,
		log:         s.log,
	}

	if !emit(domain.Phased(domain.PhaseZone)) {
		return ctx.Err()
	}
	if err := s.syncTarget(ctx, repo, ch, req, domain.AllSubdomains, "", emit); err != nil {
		if ctx.Err() == nil {
			emit(domain.Failed("zone sync failed: " + perr.Root(err).Error()))
		}
		return err
	}

	if req.NoSubdomains {
		emit(domain.Done(0))
		return nil
	}
	if info.Inactive() {
		emit(domain.Warned(fmt.Sprintf("zone is %s, skipping subdomain discovery", info.Status)))
		emit(domain.Done(0))
		return nil
	}

	if !emit(domain.Phased(domain.PhaseDiscover)) {
		return ctx.Err()
	}
	hosts, err := up.ListHostnames(ctx, req.ZoneID, info.Name)
	if err != nil {
		emit(domain.Failed("subdomain discovery failed: " + perr.Root(err).Error()))
		return err
	}
	if !emit(domain.Discovered(hosts)) {
		return ctx.Err()
	}

	processed := 0
	for _, host := range hosts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !emit(domain.Event{Kind: domain.EventPhase, Phase: domain.PhaseSubdomain, Target: host}) {
			return ctx.Err()
		}
		if err := s.syncTarget(ctx, repo, ch, req, host, host, emit); err != nil {
			if ctx.Err() == nil {
				emit(domain.Failed(fmt.Sprintf("sync for %s failed: %v", host, perr.Root(err))))
			}
			return err
		}
		processed++
	}

	emit(domain.Done(processed))
	return nil
}

// syncTarget walks calendar days for one target in ascending order.
// Already-stored days are skipped, so re-running a backfilled range is a
// no-op. Store errors are fatal; fetch failures degrade to markers
func (s *Service) syncTarget(
	ctx context.Context,
	repo domain.StorageRepo,
	ch *chunker,
	req domain.SyncRequest,
	targetKey, host string,
	emit func(domain.Event) bool,
) error {
	days := req.Days
	if days <= 0 {
		days = s.Cfg.Days
	}

	today := midnightUTC(s.now())
	start := today.AddDate(0, 0, -days)
	if latest, ok, err := repo.LatestSyncedDay(ctx, req.ZoneID, targetKey); err != nil {
		return err
	} else if ok {
		start = midnightUTC(latest).AddDate(0, 0, 1)
	}

	total := 0
	for d := start; d.Before(today); d = d.AddDate(0, 0, 1) {
		total++
	}

	current := 0
	for day := start; day.Before(today); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return err
		}
		current++

		exists, err := repo.DayExists(ctx, req.ZoneID, targetKey, day)
		if err != nil {
			return err
		}
		if exists {
			if !emit(domain.Progressed(targetKey, day, current, total, domain.StatusSkipped)) {
				return ctx.Err()
			}
			continue
		}

		win := analytics.TimeWindow{Start: day, End: day.AddDate(0, 0, 1)}
		var raw analytics.RawFetchResult
		err = Attempt(ctx, RetryPolicy{MaxAttempts: s.Cfg.MaxAttempts, Delay: s.Cfg.RetryDelay},
			func(ctx context.Context) error {
				var ferr error
				raw, ferr = ch.fetchDay(ctx, host, win)
				return ferr
			})

		status := domain.StatusSuccess
		switch {
		case err != nil && ctx.Err() != nil:
			// cancelled; no marker, the day stays unsynced
			return ctx.Err()

		case err != nil:
			// terminal for this date: store a marker so it is never
			// retried forever, keep the run going
			if uerr := repo.UpsertDay(ctx, req.ZoneID, targetKey, day, analytics.Marker()); uerr != nil {
				return uerr
			}
			s.log.Warn().
				Str("zone", req.ZoneID).
				Str("target", targetKey).
				Time("day", day).
				Err(err).
				Msg("day fetch failed permanently, marker stored")
			if !emit(domain.Warned(fmt.Sprintf(
				"fetch for %s on %s failed permanently, marker stored: %v",
				targetKey, day.Format("2006-01-02"), perr.Root(err)))) {
				return ctx.Err()
			}
			status = domain.StatusMarker

		default:
			sum := analytics.Summarize(raw)
			if uerr := repo.UpsertDay(ctx, req.ZoneID, targetKey, day, sum); uerr != nil {
				return uerr
			}
			if sum.Truncated {
				if !emit(domain.Warned(fmt.Sprintf(
					"data for %s on %s is truncated at the finest window, counts are a lower bound",
					targetKey, day.Format("2006-01-02")))) {
					return ctx.Err()
				}
			}
		}

		if !emit(domain.Progressed(targetKey, day, current, total, status)) {
			return ctx.Err()
		}

		if day.AddDate(0, 0, 1).Before(today) {
			if serr := sleepCtx(ctx, s.Cfg.InterDateDelay); serr != nil {
				return serr
			}
		}
	}
	return nil
}

// RangeDays returns the stored digests for one target between two days
func (s *Service) RangeDays(ctx context.Context, zoneID, target string, from, to time.Time) ([]domain.DayRecord, error) {
	return s.Binder.Bind(s.DB).RangeDays(ctx, zoneID, target, from, to)
}

// AllTargetsStatus lists every stored (zone, target) pair with its day range
func (s *Service) AllTargetsStatus(ctx context.Context) ([]domain.TargetStatus, error) {
	return s.Binder.Bind(s.DB).AllTargetsStatus(ctx)
}

// DeleteTarget removes one target's history and returns the rows deleted
func (s *Service) DeleteTarget(ctx context.Context, zoneID, target string) (int64, error) {
	return s.Binder.Bind(s.DB).DeleteTarget(ctx, zoneID, target)
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
