package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"zonepulse/internal/core/analytics"
	perr "zonepulse/internal/platform/errors"
	"zonepulse/internal/platform/logger"
)

// fakeFetcher scripts responses by window duration so each level can behave
// differently
type fakeFetcher struct {
	mu    sync.Mutex
	calls []analytics.TimeWindow
	fn    func(win analytics.TimeWindow, host string) (analytics.RawFetchResult, error)
}

func (f *fakeFetcher) FetchWindow(_ context.Context, _ string, win analytics.TimeWindow, host string) (analytics.RawFetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, win)
	f.mu.Unlock()
	return f.fn(win, host)
}

func (f *fakeFetcher) FetchWindowSplit(ctx context.Context, zoneID string, win analytics.TimeWindow, host string) (analytics.RawFetchResult, error) {
	return f.FetchWindow(ctx, zoneID, win, host)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testDay() analytics.TimeWindow {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return analytics.TimeWindow{Start: start, End: start.Add(24 * time.Hour)}
}

func adaptiveRows(n int) []analytics.AdaptiveRow {
	rows := make([]analytics.AdaptiveRow, n)
	for i := range rows {
		rows[i].Count = 1
	}
	return rows
}

func newChunker(f *fakeFetcher) *chunker {
	return &chunker{fetch: f, zoneID: "z1", log: *logger.Named("test")}
}

func TestFetchDay_StampsZoneLabelsOnMergedResult(t *testing.T) {
	f := &fakeFetcher{fn: func(analytics.TimeWindow, string) (analytics.RawFetchResult, error) {
		return analytics.RawFetchResult{HTTPRequestsAdaptive: adaptiveRows(10)}, nil
	}}

	ch := newChunker(f)
	ch.zoneName = "example.com"
	ch.accountName = "acme"

	got, err := ch.fetchDay(context.Background(), "", testDay())
	if err != nil {
		t.Fatalf("fetch day: %v", err)
	}
	if got.ZoneName != "example.com" || got.AccountName != "acme" {
		t.Fatalf("zone labels lost in merge: %q %q", got.ZoneName, got.AccountName)
	}
}

func TestFetchDay_NoEscalationBelowCap(t *testing.T) {
	f := &fakeFetcher{fn: func(analytics.TimeWindow, string) (analytics.RawFetchResult, error) {
		return analytics.RawFetchResult{HTTPRequestsAdaptive: adaptiveRows(10)}, nil
	}}

	got, err := newChunker(f).fetchDay(context.Background(), "", testDay())
	if err != nil {
		t.Fatalf("fetch day: %v", err)
	}
	if f.callCount() != 1 {
		t.Fatalf("expected a single 24h fetch got %d calls", f.callCount())
	}
	if got.Truncated {
		t.Fatal("below-cap result must not be flagged truncated")
	}
}

func TestFetchDay_EscalatesOnceThenMerges(t *testing.T) {
	// 24h window comes back at cap; 12h windows fit
	f := &fakeFetcher{}
	f.fn = func(win analytics.TimeWindow, _ string) (analytics.RawFetchResult, error) {
		if win.Duration() == 24*time.Hour {
			return analytics.RawFetchResult{HTTPRequestsAdaptive: adaptiveRows(analytics.CapHTTPRequestsAdaptive)}, nil
		}
		return analytics.RawFetchResult{HTTPRequestsAdaptive: adaptiveRows(100)}, nil
	}

	got, err := newChunker(f).fetchDay(context.Background(), "", testDay())
	if err != nil {
		t.Fatalf("fetch day: %v", err)
	}

	// level 1 (one call) then level 2 (two calls)
	if f.callCount() != 3 {
		t.Fatalf("expected 3 calls got %d", f.callCount())
	}
	if len(got.HTTPRequestsAdaptive) != 200 {
		t.Fatalf("expected merged rows 200 got %d", len(got.HTTPRequestsAdaptive))
	}
	if got.Truncated {
		t.Fatal("result that fit after escalation must not be truncated")
	}
}

func TestFetchDay_EscalatesWhenAnySubWindowAtCap(t *testing.T) {
	// at the 2-way level only the first half is at cap; escalation must
	// still happen, never partially
	f := &fakeFetcher{}
	f.fn = func(win analytics.TimeWindow, _ string) (analytics.RawFetchResult, error) {
		switch {
		case win.Duration() == 24*time.Hour:
			return analytics.RawFetchResult{HTTPRequestsAdaptive: adaptiveRows(analytics.CapHTTPRequestsAdaptive)}, nil
		case win.Duration() == 12*time.Hour && win.Start.Hour() == 0:
			return analytics.RawFetchResult{HTTPRequestsAdaptive: adaptiveRows(analytics.CapHTTPRequestsAdaptive)}, nil
		default:
			return analytics.RawFetchResult{HTTPRequestsAdaptive: adaptiveRows(5)}, nil
		}
	}

	got, err := newChunker(f).fetchDay(context.Background(), "", testDay())
	if err != nil {
		t.Fatalf("fetch day: %v", err)
	}
	// 1 + 2 + 4 calls: the 4-way level fits everywhere
	if f.callCount() != 7 {
		t.Fatalf("expected 7 calls got %d", f.callCount())
	}
	if len(got.HTTPRequestsAdaptive) != 20 {
		t.Fatalf("expected 4x5 merged rows got %d", len(got.HTTPRequestsAdaptive))
	}
}

func TestFetchDay_AcceptsTruncationAtFinestLevel(t *testing.T) {
	f := &fakeFetcher{fn: func(analytics.TimeWindow, string) (analytics.RawFetchResult, error) {
		return analytics.RawFetchResult{HTTPRequestsAdaptive: adaptiveRows(analytics.CapHTTPRequestsAdaptive)}, nil
	}}

	got, err := newChunker(f).fetchDay(context.Background(), "", testDay())
	if err != nil {
		t.Fatalf("fetch day: %v", err)
	}
	if !got.Truncated {
		t.Fatal("expected truncated flag when cap persists at 1h windows")
	}

	// every level tried: 1+2+4+6+12+24
	want := 0
	for _, n := range analytics.Levels {
		want += n
	}
	if f.callCount() != want {
		t.Fatalf("expected %d calls got %d", want, f.callCount())
	}
}

func TestFetchDay_FirstErrorAbortsTheDay(t *testing.T) {
	f := &fakeFetcher{fn: func(win analytics.TimeWindow, _ string) (analytics.RawFetchResult, error) {
		if win.Duration() == 24*time.Hour {
			return analytics.RawFetchResult{HTTPRequestsAdaptive: adaptiveRows(analytics.CapHTTPRequestsAdaptive)}, nil
		}
		return analytics.RawFetchResult{}, perr.Newf(perr.ErrorCodeUnavailable, "boom")
	}}

	_, err := newChunker(f).fetchDay(context.Background(), "", testDay())
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if perr.CodeOf(err) != perr.ErrorCodeUnavailable {
		t.Fatalf("expected unavailable got %v", perr.CodeOf(err))
	}
}

func TestFetchDay_CancelledBetweenLevels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{}
	f.fn = func(analytics.TimeWindow, string) (analytics.RawFetchResult, error) {
		cancel()
		return analytics.RawFetchResult{HTTPRequestsAdaptive: adaptiveRows(analytics.CapHTTPRequestsAdaptive)}, nil
	}

	_, err := newChunker(f).fetchDay(ctx, "", testDay())
	if err == nil {
		t.Fatal("expected cancellation to stop escalation")
	}
	if f.callCount() != 1 {
		t.Fatalf("expected no further levels after cancel, got %d calls", f.callCount())
	}
}
