package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"zonepulse/internal/core/analytics"
	perr "zonepulse/internal/platform/errors"
)

// group selections shared between the full and split query documents
const (
	selZoneSummary = `
      zoneSummary: httpRequests1dGroups(limit: %d, filter: {date: $date}) {
        sum {
          requests bytes cachedRequests cachedBytes
          countryMap { clientCountryName requests bytes }
        }
      }`

	selAdaptive = `
      httpRequestsAdaptive: httpRequestsAdaptiveGroups(
        limit: %d
        filter: {datetime_geq: $start, datetime_lt: $end%s}
        orderBy: [count_DESC]
      ) {
        count
        avg { originResponseDurationMs }
        dimensions {
          clientRequestPath clientIP clientRequestHTTPHost userAgent
          clientCountryName edgeResponseStatus datetimeFifteenMinutes
        }
      }`

	selFirewall = `
      firewallActivity: firewallEventsAdaptiveGroups(
        limit: %d
        filter: {datetime_geq: $start, datetime_lt: $end%s}
      ) {
        count
        dimensions { action datetimeMinute }
      }
      firewallRules: firewallEventsAdaptiveGroups(
        limit: %d
        filter: {datetime_geq: $start, datetime_lt: $end%s}
        orderBy: [count_DESC]
      ) {
        count
        dimensions { ruleId description }
      }
      firewallIPs: firewallEventsAdaptiveGroups(
        limit: %d
        filter: {datetime_geq: $start, datetime_lt: $end%s}
        orderBy: [count_DESC]
      ) {
        count
        dimensions { clientIP action }
      }
      firewallSources: firewallEventsAdaptiveGroups(
        limit: %d
        filter: {datetime_geq: $start, datetime_lt: $end%s}
        orderBy: [count_DESC]
      ) {
        count
        dimensions { source }
      }`
)

// wrapDoc builds the query document. Variables are declared only when a
// selection references them; a declared-but-unused variable fails upstream
// validation and the whole document comes back as a query error
func wrapDoc(selections ...string) string {
	body := strings.Join(selections, "")
	vars := "$zoneTag: string!, $start: Time!, $end: Time!"
	if strings.Contains(body, "$date") {
		vars += ", $date: Date!"
	}
	return `query (` + vars + `) {
  viewer {
    zones(filter: {zoneTag: $zoneTag}) {` + body + `
    }
  }
}`
}

// hostClause returns the extra filter term for a host-scoped query
func hostClause(host string) string {
	if host == "" {
		return ""
	}
	// host names are DNS labels, quoting is safe without escaping
	return fmt.Sprintf(", clientRequestHTTPHost: %q", host)
}

func zoneSummarySel() string {
	return fmt.Sprintf(selZoneSummary, analytics.CapZoneSummary)
}

func adaptiveSel(host string) string {
	return fmt.Sprintf(selAdaptive, analytics.CapHTTPRequestsAdaptive, hostClause(host))
}

func firewallSel(host string) string {
	hc := hostClause(host)
	return fmt.Sprintf(selFirewall,
		analytics.CapFirewallActivity, hc,
		analytics.CapFirewallRules, hc,
		analytics.CapFirewallIPs, hc,
		analytics.CapFirewallSources, hc,
	)
}

func queryVars(zoneID string, win analytics.TimeWindow) map[string]any {
	return map[string]any{
		"zoneTag": zoneID,
		"start":   win.Start.UTC().Format(time.RFC3339),
		"end":     win.End.UTC().Format(time.RFC3339),
		"date":    win.Start.UTC().Format("2006-01-02"),
	}
}

// FetchWindow issues one query covering all six metric groups. Used for the
// zone overview; win must not exceed 24h. A host filter scopes the adaptive
// and firewall groups and drops the zone rollup, which has no host dimension
func (c *Client) FetchWindow(
	ctx context.Context,
	zoneID string,
	win analytics.TimeWindow,
	host string,
) (analytics.RawFetchResult, error) {
	if !win.Valid() {
		return analytics.RawFetchResult{}, perr.InvalidArgf("window start must precede end")
	}
	if win.Duration() > 24*time.Hour {
		return analytics.RawFetchResult{}, perr.InvalidArgf("window exceeds 24h")
	}

	sels := []string{adaptiveSel(host), firewallSel(host)}
	if host == "" {
		sels = append([]string{zoneSummarySel()}, sels...)
	}

	resp, err := c.graphql(ctx, wrapDoc(sels...), queryVars(zoneID, win))
	if err != nil {
		return analytics.RawFetchResult{}, err
	}
	return decodeZoneData(resp.Data)
}

// FetchWindowSplit issues the traffic groups and the firewall groups as two
// independent parallel queries and combines them. Used for per-host sync to
// keep each call's data volume lower
func (c *Client) FetchWindowSplit(
	ctx context.Context,
	zoneID string,
	win analytics.TimeWindow,
	host string,
) (analytics.RawFetchResult, error) {
	if !win.Valid() {
		return analytics.RawFetchResult{}, perr.InvalidArgf("window start must precede end")
	}

	trafficSels := []string{adaptiveSel(host)}
	if host == "" {
		trafficSels = append([]string{zoneSummarySel()}, trafficSels...)
	}

	var (
		wg       sync.WaitGroup
		traffic  analytics.RawFetchResult
		firewall analytics.RawFetchResult
		trafErr  error
		fwErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		resp, err := c.graphql(ctx, wrapDoc(trafficSels...), queryVars(zoneID, win))
		if err != nil {
			trafErr = err
			return
		}
		traffic, trafErr = decodeZoneData(resp.Data)
	}()
	go func() {
		defer wg.Done()
		resp, err := c.graphql(ctx, wrapDoc(firewallSel(host)), queryVars(zoneID, win))
		if err != nil {
			fwErr = err
			return
		}
		firewall, fwErr = decodeZoneData(resp.Data)
	}()
	wg.Wait()

	if trafErr != nil {
		return analytics.RawFetchResult{}, trafErr
	}
	if fwErr != nil {
		return analytics.RawFetchResult{}, fwErr
	}

	traffic.FirewallActivity = firewall.FirewallActivity
	traffic.FirewallRules = firewall.FirewallRules
	traffic.FirewallIPs = firewall.FirewallIPs
	traffic.FirewallSources = firewall.FirewallSources
	return traffic, nil
}

// decodeZoneData maps the wire payload onto the typed result. A nil or empty
// data section (degraded response) yields an empty result, not an error
func decodeZoneData(data json.RawMessage) (analytics.RawFetchResult, error) {
	var out analytics.RawFetchResult
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}

	var env viewerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return out, perr.Wrapf(err, perr.ErrorCodeUpstream, "cloudflare decode zone data failed")
	}
	if len(env.Viewer.Zones) == 0 {
		return out, nil
	}
	z := env.Viewer.Zones[0]

	for _, g := range z.ZoneSummary {
		row := analytics.ZoneSummaryRow{
			Requests:       g.Sum.Requests,
			Bytes:          g.Sum.Bytes,
			CachedRequests: g.Sum.CachedRequests,
			CachedBytes:    g.Sum.CachedBytes,
		}
		for _, cm := range g.Sum.CountryMap {
			row.Countries = append(row.Countries, analytics.CountryStat{
				Code:     cm.ClientCountryName,
				Requests: cm.Requests,
				Bytes:    cm.Bytes,
			})
		}
		out.ZoneSummary = append(out.ZoneSummary, row)
	}

	for _, g := range z.HTTPRequestsAdaptive {
		out.HTTPRequestsAdaptive = append(out.HTTPRequestsAdaptive, analytics.AdaptiveRow{
			Count:     g.Count,
			Path:      g.Dimensions.ClientRequestPath,
			ClientIP:  g.Dimensions.ClientIP,
			Host:      g.Dimensions.ClientRequestHTTPHost,
			UserAgent: g.Dimensions.UserAgent,
			Country:   g.Dimensions.ClientCountryName,
			Status:    g.Dimensions.EdgeResponseStatus,
			AvgTimeMs: g.Avg.OriginResponseDurationMs,
			Timestamp: parseWireTime(g.Dimensions.Datetime),
		})
	}

	for _, g := range z.FirewallActivity {
		out.FirewallActivity = append(out.FirewallActivity, analytics.ActivityPoint{
			Count:  g.Count,
			Action: g.Dimensions.Action,
			Minute: parseWireTime(g.Dimensions.DatetimeMinute),
		})
	}
	for _, g := range z.FirewallRules {
		out.FirewallRules = append(out.FirewallRules, analytics.RuleStat{
			RuleID:      g.Dimensions.RuleID,
			Description: g.Dimensions.Description,
			Count:       g.Count,
		})
	}
	for _, g := range z.FirewallIPs {
		out.FirewallIPs = append(out.FirewallIPs, analytics.IPStat{
			ClientIP: g.Dimensions.ClientIP,
			Action:   g.Dimensions.Action,
			Count:    g.Count,
		})
	}
	for _, g := range z.FirewallSources {
		out.FirewallSources = append(out.FirewallSources, analytics.SourceStat{
			Source: g.Dimensions.Source,
			Count:  g.Count,
		})
	}

	return out, nil
}

func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
