package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"zonepulse/internal/adapters/upstream/cloudflare"
	"zonepulse/internal/core/analytics"
	"zonepulse/internal/modkit/repokit"
	perr "zonepulse/internal/platform/errors"
	"zonepulse/internal/platform/store"
	"zonepulse/internal/platform/testkit"
	"zonepulse/internal/services/zonesync/domain"
)

// fakeTx satisfies repokit.TxRunner; the fake repo ignores the queryer
type fakeTx struct{}

func (fakeTx) Exec(context.Context, string, ...any) (store.CommandTag, error) {
	var z store.CommandTag
	return z, nil
}
func (fakeTx) Query(context.Context, string, ...any) (store.Rows, error) {
	var z store.Rows
	return z, nil
}
func (fakeTx) QueryRow(context.Context, string, ...any) store.Row {
	var z store.Row
	return z
}
func (fakeTx) Tx(ctx context.Context, fn func(q store.RowQuerier) error) error {
	return fn(fakeTx{})
}

type fakeUpstream struct {
	mu sync.Mutex

	info     cloudflare.ZoneInfo
	infoErr  error
	hosts    []string
	hostsErr error

	fetchCalls int
	fetch      func(win analytics.TimeWindow, host string) (analytics.RawFetchResult, error)
}

func (f *fakeUpstream) FetchWindow(_ context.Context, _ string, win analytics.TimeWindow, host string) (analytics.RawFetchResult, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()
	return f.fetch(win, host)
}

func (f *fakeUpstream) FetchWindowSplit(ctx context.Context, zoneID string, win analytics.TimeWindow, host string) (analytics.RawFetchResult, error) {
	return f.FetchWindow(ctx, zoneID, win, host)
}

func (f *fakeUpstream) ZoneStatus(context.Context, string) (cloudflare.ZoneInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeUpstream) ListHostnames(context.Context, string, string) ([]string, error) {
	return f.hosts, f.hostsErr
}

func (f *fakeUpstream) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

type fakeRepo struct {
	mu      sync.Mutex
	stored  map[string]analytics.DailySummary
	upserts int

	// when set, LatestSyncedDay reports no history regardless of stored
	// days, so the full window is walked and DayExists does the skipping
	noLatest bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{stored: make(map[string]analytics.DailySummary)}
}

func dayKey(zoneID, target string, day time.Time) string {
	return zoneID + "|" + target + "|" + day.UTC().Format("2006-01-02")
}

func (r *fakeRepo) LatestSyncedDay(_ context.Context, zoneID, target string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.noLatest {
		return time.Time{}, false, nil
	}
	var latest time.Time
	found := false
	for k := range r.stored {
		// keys are zone|target|date
		parts := splitKey(k)
		if parts[0] != zoneID || parts[1] != target {
			continue
		}
		day, _ := time.Parse("2006-01-02", parts[2])
		if !found || day.After(latest) {
			latest = day
			found = true
		}
	}
	return latest, found, nil
}

func splitKey(k string) [3]string {
	var out [3]string
	idx := 0
	start := 0
	for i := 0; i < len(k) && idx < 2; i++ {
		if k[i] == '|' {
			out[idx] = k[start:i]
			idx++
			start = i + 1
		}
	}
	out[2] = k[start:]
	return out
}

func (r *fakeRepo) DayExists(_ context.Context, zoneID, target string, day time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stored[dayKey(zoneID, target, day)]
	return ok, nil
}

func (r *fakeRepo) UpsertDay(_ context.Context, zoneID, target string, day time.Time, s analytics.DailySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored[dayKey(zoneID, target, day)] = s
	r.upserts++
	return nil
}

func (r *fakeRepo) RangeDays(context.Context, string, string, time.Time, time.Time) ([]domain.DayRecord, error) {
	return nil, nil
}

func (r *fakeRepo) DeleteTarget(context.Context, string, string) (int64, error) { return 0, nil }

func (r *fakeRepo) AllTargetsStatus(context.Context) ([]domain.TargetStatus, error) {
	return nil, nil
}

func (r *fakeRepo) upsertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}

func newTestService(t *testing.T, up *fakeUpstream, repo *fakeRepo, days int) *Service {
	t.Helper()
	svc := New(
		fakeTx{},
		repokit.BindFunc[domain.StorageRepo](func(repokit.Queryer) domain.StorageRepo { return repo }),
		func(string) domain.Upstream { return up },
		Config{Days: days, MaxAttempts: 2, RetryDelay: time.Millisecond, InterDateDelay: 0},
	)
	svc.now = func() time.Time {
		return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestNew_GuardsRequiredDeps(t *testing.T) {
	t.Parallel()

	binder := repokit.BindFunc[domain.StorageRepo](func(repokit.Queryer) domain.StorageRepo { return &fakeRepo{} })
	factory := domain.UpstreamFactory(func(string) domain.Upstream { return &fakeUpstream{} })

	testkit.MustPanic(t, func() { New(nil, binder, factory, Config{}) })
	testkit.MustPanic(t, func() { New(fakeTx{}, nil, factory, Config{}) })
	testkit.MustPanic(t, func() { New(fakeTx{}, binder, nil, Config{}) })
	testkit.MustNotPanic(t, func() { New(fakeTx{}, binder, factory, Config{}) })
}

func runSync(t *testing.T, svc *Service, req domain.SyncRequest) ([]domain.Event, error) {
	t.Helper()
	events := make(chan domain.Event, 256)
	err := svc.SyncZone(context.Background(), req, events)
	var got []domain.Event
	for ev := range events {
		got = append(got, ev)
	}
	return got, err
}

func eventsOfKind(evs []domain.Event, kind domain.EventKind) []domain.Event {
	var out []domain.Event
	for _, ev := range evs {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func okFetch(win analytics.TimeWindow, _ string) (analytics.RawFetchResult, error) {
	return analytics.RawFetchResult{
		ZoneSummary: []analytics.ZoneSummaryRow{{Requests: 10}},
	}, nil
}

func TestSyncZone_EmitsPhasesAndDoneWithSubdomainCount(t *testing.T) {
	up := &fakeUpstream{
		info:  cloudflare.ZoneInfo{ID: "z1", Name: "example.com", Status: "active"},
		hosts: []string{"api.example.com", "www.example.com"},
		fetch: okFetch,
	}
	repo := newFakeRepo()
	svc := newTestService(t, up, repo, 2)

	evs, err := runSync(t, svc, domain.SyncRequest{ZoneID: "z1", Token: "tok"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	phases := eventsOfKind(evs, domain.EventPhase)
	if len(phases) < 4 {
		t.Fatalf("expected check/zone/discover/subdomain phases, got %+v", phases)
	}
	if phases[0].Phase != domain.PhaseCheck || phases[1].Phase != domain.PhaseZone {
		t.Fatalf("unexpected phase order %+v", phases)
	}

	dones := eventsOfKind(evs, domain.EventDone)
	if len(dones) != 1 || dones[0].SubdomainCount != 2 {
		t.Fatalf("expected done with 2 subdomains got %+v", dones)
	}

	// 2 days x (1 zone target + 2 subdomains) = 6 stored digests
	if repo.upsertCount() != 6 {
		t.Fatalf("expected 6 upserts got %d", repo.upsertCount())
	}

	// zone target progress must come before any subdomain progress
	progress := eventsOfKind(evs, domain.EventProgress)
	sawSub := false
	for _, p := range progress {
		if p.Target != domain.AllSubdomains {
			sawSub = true
		} else if sawSub {
			t.Fatal("zone target progress after subdomain progress")
		}
	}
}

func TestSyncZone_SkipsExistingDaysAndStillAdvancesProgress(t *testing.T) {
	up := &fakeUpstream{
		info:  cloudflare.ZoneInfo{ID: "z1", Name: "example.com", Status: "active"},
		fetch: okFetch,
	}
	repo := newFakeRepo()
	repo.noLatest = true
	svc := newTestService(t, up, repo, 3)

	// pre-store the middle day
	existing := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	_ = repo.UpsertDay(context.Background(), "z1", domain.AllSubdomains, existing, analytics.DailySummary{})
	before := repo.upsertCount()
	callsBefore := up.calls()

	evs, err := runSync(t, svc, domain.SyncRequest{ZoneID: "z1", Token: "tok", NoSubdomains: true})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	progress := eventsOfKind(evs, domain.EventProgress)
	var skipped *domain.Event
	for i := range progress {
		if progress[i].Status == domain.StatusSkipped {
			skipped = &progress[i]
		}
	}
	if skipped == nil {
		t.Fatalf("expected a skipped progress event, got %+v", progress)
	}
	if skipped.Date != "2024-03-08" {
		t.Fatalf("expected skip for 2024-03-08 got %s", skipped.Date)
	}
	if skipped.Current == 0 || skipped.Total == 0 {
		t.Fatalf("skip must still advance current/total, got %+v", skipped)
	}

	// the pre-stored day got no fetch and no new upsert
	// latest-synced fast-forwards the start, so only days after it are fetched
	wantFetched := up.calls() - callsBefore
	if wantFetched != repo.upsertCount()-before {
		t.Fatalf("fetch calls %d and new upserts %d disagree", wantFetched, repo.upsertCount()-before)
	}
}

func TestSyncZone_SecondRunIsNoOp(t *testing.T) {
	up := &fakeUpstream{
		info:  cloudflare.ZoneInfo{ID: "z1", Name: "example.com", Status: "active"},
		fetch: okFetch,
	}
	repo := newFakeRepo()
	svc := newTestService(t, up, repo, 2)

	if _, err := runSync(t, svc, domain.SyncRequest{ZoneID: "z1", Token: "tok", NoSubdomains: true}); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	upserts := repo.upsertCount()
	second, err := runSync(t, svc, domain.SyncRequest{ZoneID: "z1", Token: "tok", NoSubdomains: true})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if repo.upsertCount() != upserts {
		t.Fatalf("second run wrote %d new rows, expected none", repo.upsertCount()-upserts)
	}

	// latest-synced day advances past a full backfill, so the second run
	// either has nothing to do or skips everything it sees
	for _, p := range eventsOfKind(second, domain.EventProgress) {
		if p.Status == domain.StatusSuccess || p.Status == domain.StatusMarker {
			t.Fatalf("second run should not fetch, got %+v", p)
		}
	}
}

func TestSyncZone_TransientFailuresBecomeMarkers(t *testing.T) {
	up := &fakeUpstream{
		info: cloudflare.ZoneInfo{ID: "z1", Name: "example.com", Status: "active"},
		fetch: func(analytics.TimeWindow, string) (analytics.RawFetchResult, error) {
			return analytics.RawFetchResult{}, perr.Newf(perr.ErrorCodeUnavailable, "upstream 503")
		},
	}
	repo := newFakeRepo()
	svc := newTestService(t, up, repo, 1)

	evs, err := runSync(t, svc, domain.SyncRequest{ZoneID: "z1", Token: "tok", NoSubdomains: true})
	if err != nil {
		t.Fatalf("markers are not fatal, got %v", err)
	}

	// MaxAttempts 2 and one day -> exactly two fetch calls
	if up.calls() != 2 {
		t.Fatalf("expected 2 fetch attempts got %d", up.calls())
	}

	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	stored, ok := repo.stored[dayKey("z1", domain.AllSubdomains, day)]
	if !ok {
		t.Fatal("expected a marker record for the failed day")
	}
	if !stored.FetchError || stored.Totals.Requests != 0 {
		t.Fatalf("expected zero-valued marker got %+v", stored)
	}

	if len(eventsOfKind(evs, domain.EventWarning)) == 0 {
		t.Fatal("expected a warning event for the marker")
	}
	progress := eventsOfKind(evs, domain.EventProgress)
	if len(progress) != 1 || progress[0].Status != domain.StatusMarker {
		t.Fatalf("expected one marker progress event got %+v", progress)
	}

	// a later run must not re-attempt the marked day
	calls := up.calls()
	if _, err := runSync(t, svc, domain.SyncRequest{ZoneID: "z1", Token: "tok", NoSubdomains: true}); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if up.calls() != calls {
		t.Fatalf("marked day was re-fetched, calls went %d -> %d", calls, up.calls())
	}
}

func TestSyncZone_NonRetryableFailsWithoutSecondAttempt(t *testing.T) {
	up := &fakeUpstream{
		info: cloudflare.ZoneInfo{ID: "z1", Name: "example.com", Status: "active"},
		fetch: func(analytics.TimeWindow, string) (analytics.RawFetchResult, error) {
			return analytics.RawFetchResult{}, perr.Unauthorizedf("bad token")
		},
	}
	repo := newFakeRepo()
	svc := newTestService(t, up, repo, 1)

	if _, err := runSync(t, svc, domain.SyncRequest{ZoneID: "z1", Token: "tok", NoSubdomains: true}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if up.calls() != 1 {
		t.Fatalf("non-retryable error should not be retried, got %d calls", up.calls())
	}
}

func TestSyncZone_PendingZoneSkipsDiscovery(t *testing.T) {
	up := &fakeUpstream{
		info:  cloudflare.ZoneInfo{ID: "z1", Name: "example.com", Status: "pending"},
		hosts: []string{"should.not.be.processed"},
		fetch: okFetch,
	}
	repo := newFakeRepo()
	svc := newTestService(t, up, repo, 1)

	evs, err := runSync(t, svc, domain.SyncRequest{ZoneID: "z1", Token: "tok"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	// zone overview still synced
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	if _, ok := repo.stored[dayKey("z1", domain.AllSubdomains, day)]; !ok {
		t.Fatal("expected the zone overview day to be stored")
	}

	warnings := eventsOfKind(evs, domain.EventWarning)
	if len(warnings) == 0 {
		t.Fatal("expected a warning about skipped discovery")
	}
	dones := eventsOfKind(evs, domain.EventDone)
	if len(dones) != 1 || dones[0].SubdomainCount != 0 {
		t.Fatalf("expected done with 0 subdomains got %+v", dones)
	}
	for _, p := range eventsOfKind(evs, domain.EventProgress) {
		if p.Target != domain.AllSubdomains {
			t.Fatalf("subdomain was processed for a pending zone: %+v", p)
		}
	}
}

func TestSyncZone_DiscoveryFailureEndsStreamWithError(t *testing.T) {
	up := &fakeUpstream{
		info:     cloudflare.ZoneInfo{ID: "z1", Name: "example.com", Status: "active"},
		hostsErr: perr.Upstreamf("dns listing broke"),
		fetch:    okFetch,
	}
	repo := newFakeRepo()
	svc := newTestService(t, up, repo, 1)

	evs, err := runSync(t, svc, domain.SyncRequest{ZoneID: "z1", Token: "tok"})
	if err == nil {
		t.Fatal("expected fatal error from discovery")
	}
	errs := eventsOfKind(evs, domain.EventError)
	if len(errs) != 1 {
		t.Fatalf("expected one error event got %+v", errs)
	}
	if len(eventsOfKind(evs, domain.EventDone)) != 0 {
		t.Fatal("error stream must not also emit done")
	}
	// already-persisted zone days stay valid
	if repo.upsertCount() == 0 {
		t.Fatal("expected the zone day persisted before the failure")
	}
}

func TestSyncZone_ZoneLookupFailureIsFatal(t *testing.T) {
	up := &fakeUpstream{
		infoErr: perr.Unauthorizedf("bad token"),
		fetch:   okFetch,
	}
	repo := newFakeRepo()
	svc := newTestService(t, up, repo, 1)

	evs, err := runSync(t, svc, domain.SyncRequest{ZoneID: "z1", Token: "tok"})
	if err == nil {
		t.Fatal("expected zone lookup failure to be fatal")
	}
	if len(eventsOfKind(evs, domain.EventError)) != 1 {
		t.Fatalf("expected one error event got %+v", evs)
	}
	if up.calls() != 0 {
		t.Fatal("no fetches should happen after a failed check")
	}
}

func TestSyncZone_CancellationStopsSchedulingWithoutMarkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	up := &fakeUpstream{
		info: cloudflare.ZoneInfo{ID: "z1", Name: "example.com", Status: "active"},
	}
	up.fetch = func(analytics.TimeWindow, string) (analytics.RawFetchResult, error) {
		cancel() // cancel mid-run, like a dropped caller connection
		return analytics.RawFetchResult{ZoneSummary: []analytics.ZoneSummaryRow{{Requests: 1}}}, nil
	}
	repo := newFakeRepo()
	svc := newTestService(t, up, repo, 5)

	events := make(chan domain.Event, 256)
	err := svc.SyncZone(ctx, domain.SyncRequest{ZoneID: "z1", Token: "tok", NoSubdomains: true}, events)
	for range events {
	}

	if err == nil {
		t.Fatal("expected cancellation error")
	}
	for _, s := range repo.stored {
		if s.FetchError {
			t.Fatal("cancellation must not write markers")
		}
	}
	if up.calls() >= 5 {
		t.Fatalf("expected scheduling to stop after cancel, got %d fetches", up.calls())
	}
}
