package domain

import (
	"context"
	"time"

	"zonepulse/internal/adapters/upstream/cloudflare"
	"zonepulse/internal/core/analytics"
)

// Fetcher issues window-scoped analytics queries. Implemented by the
// cloudflare client; fakes implement it in tests
type Fetcher interface {
	FetchWindow(ctx context.Context, zoneID string, win analytics.TimeWindow, host string) (analytics.RawFetchResult, error)
	FetchWindowSplit(ctx context.Context, zoneID string, win analytics.TimeWindow, host string) (analytics.RawFetchResult, error)
}

// Directory answers zone metadata and hostname discovery
type Directory interface {
	ZoneStatus(ctx context.Context, zoneID string) (cloudflare.ZoneInfo, error)
	ListHostnames(ctx context.Context, zoneID, rootDomain string) ([]string, error)
}

// Upstream is the full per-token API surface a sync run needs
type Upstream interface {
	Fetcher
	Directory
}

// UpstreamFactory builds an Upstream bound to one request's credential
type UpstreamFactory func(token string) Upstream

// StorageRepo is the persistence surface for daily digests
type StorageRepo interface {
	LatestSyncedDay(ctx context.Context, zoneID, target string) (time.Time, bool, error)
	DayExists(ctx context.Context, zoneID, target string, day time.Time) (bool, error)
	UpsertDay(ctx context.Context, zoneID, target string, day time.Time, s analytics.DailySummary) error
	RangeDays(ctx context.Context, zoneID, target string, from, to time.Time) ([]DayRecord, error)
	DeleteTarget(ctx context.Context, zoneID, target string) (int64, error)
	AllTargetsStatus(ctx context.Context) ([]TargetStatus, error)
}

// RunnerPort drives a sync run, emitting events until the channel is closed.
// The implementation owns the channel close; the caller owns the transport
type RunnerPort interface {
	SyncZone(ctx context.Context, req SyncRequest, events chan<- Event) error
}

// QueryPort exposes the read side of the stored digests
type QueryPort interface {
	RangeDays(ctx context.Context, zoneID, target string, from, to time.Time) ([]DayRecord, error)
	AllTargetsStatus(ctx context.Context) ([]TargetStatus, error)
	DeleteTarget(ctx context.Context, zoneID, target string) (int64, error)
}

// Ports bundles what other modules may depend on
type Ports interface {
	RunnerPort
	QueryPort
}
