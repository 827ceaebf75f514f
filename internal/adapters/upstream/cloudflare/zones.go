package cloudflare

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	perr "zonepulse/internal/platform/errors"
)

// ZoneInfo is the subset of zone metadata sync cares about
type ZoneInfo struct {
	ID          string
	Name        string
	Status      string
	AccountName string
}

// Inactive reports whether the zone should skip subdomain discovery
func (z ZoneInfo) Inactive() bool {
	return z.Status == "pending" || z.Status == "deactivated"
}

// ZoneStatus looks the zone up over REST and returns its metadata
func (c *Client) ZoneStatus(ctx context.Context, zoneID string) (ZoneInfo, error) {
	b, err := c.do(ctx, http.MethodGet, "/zones/"+zoneID, nil)
	if err != nil {
		return ZoneInfo{}, err
	}

	var env restEnvelope[zoneResult]
	if err := json.Unmarshal(b, &env); err != nil {
		return ZoneInfo{}, perr.Wrapf(err, perr.ErrorCodeUpstream, "cloudflare decode zone failed")
	}
	if !env.Success {
		msg := "unknown"
		if len(env.Errors) > 0 {
			msg = env.Errors[0].Message
		}
		return ZoneInfo{}, perr.Upstreamf("cloudflare zone lookup failed: %s", msg)
	}

	return ZoneInfo{
		ID:          env.Result.ID,
		Name:        env.Result.Name,
		Status:      env.Result.Status,
		AccountName: env.Result.Account.Name,
	}, nil
}

// ListHostnames returns the zone's hostnames that carry A, AAAA, or CNAME
// records, excluding the bare root domain, deduplicated and sorted
func (c *Client) ListHostnames(ctx context.Context, zoneID, rootDomain string) ([]string, error) {
	b, err := c.do(ctx, http.MethodGet, "/zones/"+zoneID+"/dns_records?per_page=200", nil)
	if err != nil {
		return nil, err
	}

	var env restEnvelope[[]dnsRecord]
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUpstream, "cloudflare decode dns records failed")
	}
	if !env.Success {
		msg := "unknown"
		if len(env.Errors) > 0 {
			msg = env.Errors[0].Message
		}
		return nil, perr.Upstreamf("cloudflare dns listing failed: %s", msg)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, rec := range env.Result {
		switch rec.Type {
		case "A", "AAAA", "CNAME":
		default:
			continue
		}
		name := strings.TrimSuffix(strings.ToLower(rec.Name), ".")
		if name == "" || name == strings.ToLower(rootDomain) {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
