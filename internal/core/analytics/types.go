// Package analytics holds the pure aggregation core: typed fetch results,
// chunk merging, and bounded daily summarization. No network or storage access
package analytics

import "time"

// Row caps requested per metric group. The upstream truncates silently at
// these limits, so callers compare returned lengths against them
const (
	CapZoneSummary          = 1
	CapHTTPRequestsAdaptive = 8000
	CapFirewallActivity     = 5000
	CapFirewallRules        = 500
	CapFirewallIPs          = 100
	CapFirewallSources      = 100
)

// TopN is the breakdown size kept in a DailySummary
const TopN = 10

// MaxActivityPoints bounds the raw firewall activity kept for sparklines
const MaxActivityPoints = 100

// TimeWindow is a half-open [Start, End) UTC interval, millisecond precision
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the window is non-empty
func (w TimeWindow) Valid() bool { return w.Start.Before(w.End) }

// Duration returns End minus Start
func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// CountryStat is one country row from the zone overview rollup
type CountryStat struct {
	Code     string `json:"code"`
	Requests int64  `json:"requests"`
	Bytes    int64  `json:"bytes"`
}

// ZoneSummaryRow is the authoritative whole-day rollup (at most one per day)
type ZoneSummaryRow struct {
	Requests       int64         `json:"requests"`
	Bytes          int64         `json:"bytes"`
	CachedRequests int64         `json:"cachedRequests"`
	CachedBytes    int64         `json:"cachedBytes"`
	Countries      []CountryStat `json:"countries,omitempty"`
}

// AdaptiveRow is one per-request-pattern sample from the adaptive group
type AdaptiveRow struct {
	Count     int64     `json:"count"`
	Path      string    `json:"path,omitempty"`
	ClientIP  string    `json:"clientIP,omitempty"`
	Host      string    `json:"host,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Country   string    `json:"country,omitempty"`
	Status    int       `json:"status,omitempty"`
	AvgTimeMs float64   `json:"avgTimeMs,omitempty"`
	Timestamp time.Time `json:"ts,omitempty"`
}

// ActivityPoint is one per-minute firewall action count
type ActivityPoint struct {
	Count  int64     `json:"count"`
	Action string    `json:"action,omitempty"`
	Minute time.Time `json:"minute,omitempty"`
}

// RuleStat aggregates firewall events by triggering rule
type RuleStat struct {
	RuleID      string `json:"ruleId"`
	Description string `json:"description,omitempty"`
	Count       int64  `json:"count"`
}

// IPStat aggregates firewall events by client IP and action taken
type IPStat struct {
	ClientIP string `json:"clientIP"`
	Action   string `json:"action,omitempty"`
	Count    int64  `json:"count"`
}

// SourceStat aggregates firewall events by detection source
type SourceStat struct {
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

// RawFetchResult carries the six metric groups for one fetched window.
// Owned by the caller that requested it until merged or summarized
type RawFetchResult struct {
	ZoneSummary          []ZoneSummaryRow `json:"zoneSummary,omitempty"`
	HTTPRequestsAdaptive []AdaptiveRow    `json:"httpRequestsAdaptive,omitempty"`
	FirewallActivity     []ActivityPoint  `json:"firewallActivity,omitempty"`
	FirewallRules        []RuleStat       `json:"firewallRules,omitempty"`
	FirewallIPs          []IPStat         `json:"firewallIPs,omitempty"`
	FirewallSources      []SourceStat     `json:"firewallSources,omitempty"`

	ZoneName    string `json:"zoneName,omitempty"`
	AccountName string `json:"accountName,omitempty"`

	// Truncated is set when the adaptive group was still at cap at the
	// finest chunk resolution, meaning counts are a lower bound
	Truncated bool `json:"truncated,omitempty"`
}

// AdaptiveAtCap reports whether the adaptive group hit the upstream row cap.
// >= rather than > so exact-boundary truncation is caught
func (r RawFetchResult) AdaptiveAtCap() bool {
	return len(r.HTTPRequestsAdaptive) >= CapHTTPRequestsAdaptive
}

// KeyCount is one breakdown entry (path, IP, host, or user agent)
type KeyCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Totals are the headline numbers for one day
type Totals struct {
	Requests       int64         `json:"requests"`
	Bytes          int64         `json:"bytes"`
	CachedRequests int64         `json:"cachedRequests"`
	CachedBytes    int64         `json:"cachedBytes"`
	TopCountries   []CountryStat `json:"topCountries,omitempty"`
}

// FirewallDigest is the bounded firewall section of a DailySummary
type FirewallDigest struct {
	Total      int64           `json:"total"`
	TopRules   []RuleStat      `json:"topRules,omitempty"`
	TopIPs     []IPStat        `json:"topIPs,omitempty"`
	TopSources []SourceStat    `json:"topSources,omitempty"`
	Activity   []ActivityPoint `json:"activity,omitempty"`
}

// DailySummary is the bounded digest persisted per (zone, target, day).
// Serialized size is bounded regardless of input size
type DailySummary struct {
	Totals             Totals           `json:"totals"`
	TopUrls            []KeyCount       `json:"topUrls,omitempty"`
	TopIPs             []KeyCount       `json:"topIps,omitempty"`
	TopHosts           []KeyCount       `json:"topHosts,omitempty"`
	TopUAs             []KeyCount       `json:"topUAs,omitempty"`
	StatusDistribution map[string]int64 `json:"statusDistribution,omitempty"`
	HourlyTimeline     [24]int64        `json:"hourlyTimeline"`
	AvgResponseMs      float64          `json:"avgResponseMs,omitempty"`
	Firewall           FirewallDigest   `json:"firewall"`

	// FetchError marks a day whose fetch permanently failed. The marker
	// still counts as synced so the day is never retried forever
	FetchError bool `json:"_fetchError,omitempty"`

	// Truncated marks a day whose adaptive counts are a lower bound
	Truncated bool `json:"truncated,omitempty"`
}

// Marker returns the zero-valued summary persisted for a permanently
// failing day, distinguishable from a genuinely empty day
func Marker() DailySummary {
	return DailySummary{FetchError: true}
}
