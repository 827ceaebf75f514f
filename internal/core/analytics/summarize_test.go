package analytics

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestSummarize_ZoneSummaryIsAuthoritative(t *testing.T) {
	t.Parallel()

	raw := RawFetchResult{
		ZoneSummary: []ZoneSummaryRow{{
			Requests:       1234,
			Bytes:          99,
			CachedRequests: 600,
			CachedBytes:    50,
			Countries: []CountryStat{
				{Code: "DE", Requests: 700},
				{Code: "US", Requests: 400},
			},
		}},
		// adaptive deliberately disagrees; zone summary must win
		HTTPRequestsAdaptive: []AdaptiveRow{{Count: 5, Path: "/"}},
	}

	got := Summarize(raw)

	if got.Totals.Requests != 1234 {
		t.Fatalf("expected zone summary requests 1234 got %d", got.Totals.Requests)
	}
	if got.Totals.Bytes != 99 || got.Totals.CachedRequests != 600 || got.Totals.CachedBytes != 50 {
		t.Fatalf("unexpected totals %+v", got.Totals)
	}
	if len(got.Totals.TopCountries) != 2 || got.Totals.TopCountries[0].Code != "DE" {
		t.Fatalf("unexpected top countries %+v", got.Totals.TopCountries)
	}
}

func TestSummarize_AdaptiveFallbackWhenNoZoneSummary(t *testing.T) {
	t.Parallel()

	raw := RawFetchResult{
		HTTPRequestsAdaptive: []AdaptiveRow{
			{Count: 3, Path: "/a"},
			{Count: 7, Path: "/b"},
		},
	}

	got := Summarize(raw)

	if got.Totals.Requests != 10 {
		t.Fatalf("expected fallback sum 10 got %d", got.Totals.Requests)
	}
}

func TestSummarize_TopNBoundedUnderAdversarialCardinality(t *testing.T) {
	t.Parallel()

	raw := RawFetchResult{}
	for i := 0; i < 100_000; i++ {
		raw.HTTPRequestsAdaptive = append(raw.HTTPRequestsAdaptive, AdaptiveRow{
			Count: 1,
			Path:  fmt.Sprintf("/p/%d", i),
		})
	}

	got := Summarize(raw)

	if len(got.TopUrls) > TopN {
		t.Fatalf("expected at most %d top urls got %d", TopN, len(got.TopUrls))
	}
}

func TestSummarize_TiesBreakByFirstSeen(t *testing.T) {
	t.Parallel()

	raw := RawFetchResult{}
	// 12 distinct paths, all count 1; the first TopN seen must survive in order
	for i := 0; i < 12; i++ {
		raw.HTTPRequestsAdaptive = append(raw.HTTPRequestsAdaptive, AdaptiveRow{
			Count: 1,
			Path:  fmt.Sprintf("/tie/%d", i),
		})
	}

	got := Summarize(raw)

	if len(got.TopUrls) != TopN {
		t.Fatalf("expected %d entries got %d", TopN, len(got.TopUrls))
	}
	for i, e := range got.TopUrls {
		want := fmt.Sprintf("/tie/%d", i)
		if e.Key != want {
			t.Fatalf("entry %d: got %q want %q", i, e.Key, want)
		}
	}
}

func TestSummarize_BreakdownsAccumulateByDimension(t *testing.T) {
	t.Parallel()

	raw := RawFetchResult{
		HTTPRequestsAdaptive: []AdaptiveRow{
			{Count: 5, Path: "/a", ClientIP: "9.9.9.9", Host: "www.example.com", UserAgent: "curl", Status: 200},
			{Count: 3, Path: "/a", ClientIP: "9.9.9.9", Host: "api.example.com", UserAgent: "curl", Status: 404},
			{Count: 1, Path: "/b", ClientIP: "8.8.8.8", Host: "www.example.com", UserAgent: "wget", Status: 200},
		},
	}

	got := Summarize(raw)

	if got.TopUrls[0].Key != "/a" || got.TopUrls[0].Count != 8 {
		t.Fatalf("unexpected top url %+v", got.TopUrls)
	}
	if got.TopIPs[0].Key != "9.9.9.9" || got.TopIPs[0].Count != 8 {
		t.Fatalf("unexpected top ip %+v", got.TopIPs)
	}
	if got.TopHosts[0].Key != "www.example.com" || got.TopHosts[0].Count != 6 {
		t.Fatalf("unexpected top host %+v", got.TopHosts)
	}
	if got.StatusDistribution["200"] != 6 || got.StatusDistribution["404"] != 3 {
		t.Fatalf("unexpected status distribution %+v", got.StatusDistribution)
	}
}

func TestSummarize_WeightedAverageSkipsZeroTimes(t *testing.T) {
	t.Parallel()

	raw := RawFetchResult{
		HTTPRequestsAdaptive: []AdaptiveRow{
			{Count: 3, Path: "/a", AvgTimeMs: 100},
			{Count: 1, Path: "/b", AvgTimeMs: 300},
			{Count: 50, Path: "/c"}, // no timing data, excluded from the average
		},
	}

	got := Summarize(raw)

	// (100*3 + 300*1) / 4 = 150
	if got.AvgResponseMs != 150 {
		t.Fatalf("expected weighted average 150 got %v", got.AvgResponseMs)
	}
}

func TestSummarize_AverageZeroWhenNoTimingData(t *testing.T) {
	t.Parallel()

	got := Summarize(RawFetchResult{
		HTTPRequestsAdaptive: []AdaptiveRow{{Count: 10, Path: "/a"}},
	})
	if got.AvgResponseMs != 0 {
		t.Fatalf("expected average 0 got %v", got.AvgResponseMs)
	}
}

func TestSummarize_HourlyTimelineBuckets(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := RawFetchResult{
		HTTPRequestsAdaptive: []AdaptiveRow{
			{Count: 4, Path: "/a", Timestamp: day.Add(2 * time.Hour)},
			{Count: 6, Path: "/a", Timestamp: day.Add(2*time.Hour + 30*time.Minute)},
			{Count: 1, Path: "/b", Timestamp: day.Add(23 * time.Hour)},
			{Count: 9, Path: "/c"}, // no timestamp, no bucket
		},
	}

	got := Summarize(raw)

	if got.HourlyTimeline[2] != 10 {
		t.Fatalf("expected hour 2 bucket 10 got %d", got.HourlyTimeline[2])
	}
	if got.HourlyTimeline[23] != 1 {
		t.Fatalf("expected hour 23 bucket 1 got %d", got.HourlyTimeline[23])
	}
	var rest int64
	for h, v := range got.HourlyTimeline {
		if h != 2 && h != 23 {
			rest += v
		}
	}
	if rest != 0 {
		t.Fatalf("expected all other buckets zero, sum was %d", rest)
	}
}

func TestSummarize_FirewallDigestBounds(t *testing.T) {
	t.Parallel()

	raw := RawFetchResult{}
	for i := 0; i < 500; i++ {
		raw.FirewallActivity = append(raw.FirewallActivity, ActivityPoint{Count: 2})
		raw.FirewallRules = append(raw.FirewallRules, RuleStat{RuleID: fmt.Sprintf("r%d", i), Count: 1})
	}

	got := Summarize(raw)

	if got.Firewall.Total != 1000 {
		t.Fatalf("expected firewall total 1000 got %d", got.Firewall.Total)
	}
	if len(got.Firewall.TopRules) != TopN {
		t.Fatalf("expected %d top rules got %d", TopN, len(got.Firewall.TopRules))
	}
	if len(got.Firewall.Activity) != MaxActivityPoints {
		t.Fatalf("expected %d activity points got %d", MaxActivityPoints, len(got.Firewall.Activity))
	}
}

func TestSummarize_OutputSizeBounded(t *testing.T) {
	t.Parallel()

	raw := RawFetchResult{}
	for i := 0; i < 50_000; i++ {
		raw.HTTPRequestsAdaptive = append(raw.HTTPRequestsAdaptive, AdaptiveRow{
			Count:     1,
			Path:      fmt.Sprintf("/long/path/number/%d", i),
			ClientIP:  fmt.Sprintf("10.0.%d.%d", i/255%255, i%255),
			Host:      fmt.Sprintf("h%d.example.com", i%1000),
			UserAgent: fmt.Sprintf("agent-%d", i%2000),
			Status:    200 + i%5,
		})
	}

	b, err := json.Marshal(Summarize(raw))
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}
	// generous ceiling; the point is independence from input size
	if len(b) > 64<<10 {
		t.Fatalf("summary serialized to %d bytes, expected bounded output", len(b))
	}
}

func TestMarker_IsZeroValuedAndFlagged(t *testing.T) {
	t.Parallel()

	m := Marker()
	if !m.FetchError {
		t.Fatal("expected fetch error flag on marker")
	}
	if m.Totals.Requests != 0 {
		t.Fatalf("expected zero totals got %d", m.Totals.Requests)
	}
}
