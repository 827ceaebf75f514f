package analytics

import "sort"

// Merge combines chunks covering disjoint sub-windows of the same day into
// one logical result. chunks must be non-empty and ordered by window start.
//
// zoneSummary is taken from the first chunk only: it is the whole-day rollup
// regardless of how the day was sliced, so concatenating it would over-count.
// Adaptive and activity entries are already time-scoped and disjoint, so they
// concatenate. The grouped firewall lists are re-aggregated by key with
// counts summed and re-sorted descending, which is a no-op on a single
// already-sorted chunk
func Merge(chunks []RawFetchResult) RawFetchResult {
	if len(chunks) == 0 {
		return RawFetchResult{}
	}

	out := RawFetchResult{
		ZoneSummary: chunks[0].ZoneSummary,
	}

	for _, c := range chunks {
		out.HTTPRequestsAdaptive = append(out.HTTPRequestsAdaptive, c.HTTPRequestsAdaptive...)
		out.FirewallActivity = append(out.FirewallActivity, c.FirewallActivity...)
		out.Truncated = out.Truncated || c.Truncated

		if out.ZoneName == "" && c.ZoneName != "" {
			out.ZoneName = c.ZoneName
		}
		if out.AccountName == "" && c.AccountName != "" {
			out.AccountName = c.AccountName
		}
	}

	out.FirewallRules = mergeRules(chunks)
	out.FirewallIPs = mergeIPs(chunks)
	out.FirewallSources = mergeSources(chunks)
	return out
}

type ruleKey struct {
	ruleID      string
	description string
}

func mergeRules(chunks []RawFetchResult) []RuleStat {
	sums := make(map[ruleKey]int64)
	var order []ruleKey
	for _, c := range chunks {
		for _, r := range c.FirewallRules {
			k := ruleKey{r.RuleID, r.Description}
			if _, seen := sums[k]; !seen {
				order = append(order, k)
			}
			sums[k] += r.Count
		}
	}
	if len(order) == 0 {
		return nil
	}
	out := make([]RuleStat, 0, len(order))
	for _, k := range order {
		out = append(out, RuleStat{RuleID: k.ruleID, Description: k.description, Count: sums[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

type ipKey struct {
	clientIP string
	action   string
}

func mergeIPs(chunks []RawFetchResult) []IPStat {
	sums := make(map[ipKey]int64)
	var order []ipKey
	for _, c := range chunks {
		for _, e := range c.FirewallIPs {
			k := ipKey{e.ClientIP, e.Action}
			if _, seen := sums[k]; !seen {
				order = append(order, k)
			}
			sums[k] += e.Count
		}
	}
	if len(order) == 0 {
		return nil
	}
	out := make([]IPStat, 0, len(order))
	for _, k := range order {
		out = append(out, IPStat{ClientIP: k.clientIP, Action: k.action, Count: sums[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func mergeSources(chunks []RawFetchResult) []SourceStat {
	sums := make(map[string]int64)
	var order []string
	for _, c := range chunks {
		for _, e := range c.FirewallSources {
			if _, seen := sums[e.Source]; !seen {
				order = append(order, e.Source)
			}
			sums[e.Source] += e.Count
		}
	}
	if len(order) == 0 {
		return nil
	}
	out := make([]SourceStat, 0, len(order))
	for _, s := range order {
		out = append(out, SourceStat{Source: s, Count: sums[s]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
