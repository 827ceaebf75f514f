package analytics

import (
	"sort"
	"strconv"
)

// Summarize reduces one raw result into a bounded DailySummary. Pure and
// deterministic: top-N selection breaks count ties by first-seen order
func Summarize(raw RawFetchResult) DailySummary {
	out := DailySummary{Truncated: raw.Truncated}

	if len(raw.ZoneSummary) > 0 {
		// upstream's own daily rollup is ground truth
		zs := raw.ZoneSummary[0]
		out.Totals = Totals{
			Requests:       zs.Requests,
			Bytes:          zs.Bytes,
			CachedRequests: zs.CachedRequests,
			CachedBytes:    zs.CachedBytes,
			TopCountries:   topCountries(zs.Countries),
		}
	} else {
		// lower-bound approximation, the adaptive group may itself be truncated
		var sum int64
		for _, e := range raw.HTTPRequestsAdaptive {
			sum += e.Count
		}
		out.Totals = Totals{Requests: sum}
	}

	urls := newCounter()
	ips := newCounter()
	hosts := newCounter()
	uas := newCounter()
	statuses := make(map[string]int64)
	var weightedSum, weightTotal float64

	for _, e := range raw.HTTPRequestsAdaptive {
		urls.add(e.Path, e.Count)
		ips.add(e.ClientIP, e.Count)
		hosts.add(e.Host, e.Count)
		uas.add(e.UserAgent, e.Count)

		if e.Status > 0 {
			statuses[strconv.Itoa(e.Status)] += e.Count
		}
		if e.AvgTimeMs > 0 {
			weightedSum += e.AvgTimeMs * float64(e.Count)
			weightTotal += float64(e.Count)
		}
		if !e.Timestamp.IsZero() {
			out.HourlyTimeline[e.Timestamp.UTC().Hour()] += e.Count
		}
	}

	out.TopUrls = urls.top(TopN)
	out.TopIPs = ips.top(TopN)
	out.TopHosts = hosts.top(TopN)
	out.TopUAs = uas.top(TopN)
	if len(statuses) > 0 {
		out.StatusDistribution = statuses
	}
	if weightTotal > 0 {
		out.AvgResponseMs = weightedSum / weightTotal
	}

	out.Firewall = firewallDigest(raw)
	return out
}

func topCountries(in []CountryStat) []CountryStat {
	if len(in) == 0 {
		return nil
	}
	out := make([]CountryStat, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Requests > out[j].Requests })
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}

func firewallDigest(raw RawFetchResult) FirewallDigest {
	var total int64
	for _, p := range raw.FirewallActivity {
		total += p.Count
	}

	d := FirewallDigest{
		Total:      total,
		TopRules:   raw.FirewallRules,
		TopIPs:     raw.FirewallIPs,
		TopSources: raw.FirewallSources,
		Activity:   raw.FirewallActivity,
	}
	if len(d.TopRules) > TopN {
		d.TopRules = d.TopRules[:TopN]
	}
	if len(d.TopIPs) > TopN {
		d.TopIPs = d.TopIPs[:TopN]
	}
	if len(d.TopSources) > TopN {
		d.TopSources = d.TopSources[:TopN]
	}
	if len(d.Activity) > MaxActivityPoints {
		d.Activity = d.Activity[:MaxActivityPoints]
	}
	return d
}

// counter accumulates counts per key, remembering first-seen order so that
// ties sort stably
type counter struct {
	sums  map[string]int64
	order []string
}

func newCounter() *counter {
	return &counter{sums: make(map[string]int64)}
}

func (c *counter) add(key string, n int64) {
	if key == "" {
		return
	}
	if _, seen := c.sums[key]; !seen {
		c.order = append(c.order, key)
	}
	c.sums[key] += n
}

func (c *counter) top(n int) []KeyCount {
	if len(c.order) == 0 {
		return nil
	}
	out := make([]KeyCount, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, KeyCount{Key: k, Count: c.sums[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
