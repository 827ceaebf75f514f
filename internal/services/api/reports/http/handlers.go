// Package http provides http transport for stored digests and sync runs
package http

import (
	"encoding/json"
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"zonepulse/internal/modkit/httpkit"
	perr "zonepulse/internal/platform/errors"
	"zonepulse/internal/platform/logger"
	phttp "zonepulse/internal/platform/net/http"
	"zonepulse/internal/platform/net/http/bind"
	"zonepulse/internal/services/zonesync/domain"
)

// eventBuffer bounds the producer/consumer gap on a sync stream
const eventBuffer = 16

// Register mounts report endpoints on the given router
func Register(r httpkit.Router, s domain.Ports) {
	h := &handlers{svc: s}

	httpkit.MountUnder(r, "/zones/{zoneID}", nil, func(zr httpkit.Router) {
		// live sync run, one event per line
		httpkit.Stream(zr, "/sync", h.syncZone)

		// stored digests for one target over a day range
		httpkit.Get(zr, "/targets/{target}/days", h.rangeDays)

		// drop one target's entire history
		httpkit.Delete(zr, "/targets/{target}", h.deleteTarget)
	})

	// every stored (zone, target) pair with its coverage
	httpkit.Get(r, "/targets", h.allTargets)
}

type handlers struct{ svc domain.Ports }

// syncBody is the wire shape of a sync request; the zone comes from the path
type syncBody struct {
	Token        string `json:"token" validate:"required"`
	Days         int    `json:"days,omitempty" validate:"omitempty,min=1,max=365"`
	NoSubdomains bool   `json:"noSubdomains,omitempty"`
}

// syncZone runs a sync and streams progress as ndjson. The response commits
// to 200 before the run starts; failures after that arrive as error events
func (h *handlers) syncZone(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	zoneID := chi.URLParam(r, "zoneID")
	if zoneID == "" {
		phttp.WriteError(w, r, perr.InvalidArgf("zone id required"))
		return
	}

	body, err := bind.ParseJSON[syncBody](r)
	if err != nil {
		phttp.WriteError(w, r, err)
		return
	}

	ctx := logger.WithSyncRun(r.Context(), uuid.NewString())
	log := logger.C(ctx)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(stdhttp.StatusOK)

	events := make(chan domain.Event, eventBuffer)
	errc := make(chan error, 1)
	go func() {
		errc <- h.svc.SyncZone(ctx, domain.SyncRequest{
			ZoneID:       zoneID,
			Token:        body.Token,
			Days:         body.Days,
			NoSubdomains: body.NoSubdomains,
		}, events)
	}()

	enc := json.NewEncoder(w)
	fl, _ := w.(stdhttp.Flusher)

	// a write failure means the client is gone; keep draining so the
	// producer can observe ctx cancellation and close the channel
	gone := false
	for ev := range events {
		if gone {
			continue
		}
		if err := enc.Encode(ev); err != nil {
			gone = true
			continue
		}
		if fl != nil {
			fl.Flush()
		}
	}

	if err := <-errc; err != nil {
		// already surfaced to the client as an error event
		log.Warn().Err(err).Str("zone_id", zoneID).Msg("sync run ended with error")
	}
}

// rangeDays returns stored digests for [from, to]; the window defaults to
// the last 30 days ending today utc
func (h *handlers) rangeDays(r *stdhttp.Request) (any, error) {
	zoneID := chi.URLParam(r, "zoneID")
	target := chi.URLParam(r, "target")
	if zoneID == "" || target == "" {
		return nil, perr.InvalidArgf("zone id and target required")
	}

	to := midnight(time.Now().UTC())
	from := to.AddDate(0, 0, -30)

	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, perr.InvalidArgf("from: want YYYY-MM-DD, got %q", s)
		}
		from = d.UTC()
	}
	if s := q.Get("to"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, perr.InvalidArgf("to: want YYYY-MM-DD, got %q", s)
		}
		to = d.UTC()
	}
	if to.Before(from) {
		return nil, perr.InvalidArgf("to %s precedes from %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	return h.svc.RangeDays(r.Context(), zoneID, target, from, to)
}

func (h *handlers) allTargets(r *stdhttp.Request) (any, error) {
	return h.svc.AllTargetsStatus(r.Context())
}

func (h *handlers) deleteTarget(r *stdhttp.Request) (any, error) {
	zoneID := chi.URLParam(r, "zoneID")
	target := chi.URLParam(r, "target")
	if zoneID == "" || target == "" {
		return nil, perr.InvalidArgf("zone id and target required")
	}

	n, err := h.svc.DeleteTarget(r.Context(), zoneID, target)
	if err != nil {
		return nil, err
	}
	return struct {
		Deleted int64 `json:"deleted"`
	}{Deleted: n}, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
