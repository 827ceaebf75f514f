package cloudflare

import "encoding/json"

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// viewerEnvelope is the standard shape of analytics query payloads,
// viewer.zones filtered down to the one zone we asked about
type viewerEnvelope struct {
	Viewer struct {
		Zones []zoneData `json:"zones"`
	} `json:"viewer"`
}

// zoneData uses GraphQL aliases so the six groups land under stable keys
// regardless of which underlying dataset serves them
type zoneData struct {
	ZoneSummary []struct {
		Sum struct {
			Requests       int64 `json:"requests"`
			Bytes          int64 `json:"bytes"`
			CachedRequests int64 `json:"cachedRequests"`
			CachedBytes    int64 `json:"cachedBytes"`
			CountryMap     []struct {
				ClientCountryName string `json:"clientCountryName"`
				Requests          int64  `json:"requests"`
				Bytes             int64  `json:"bytes"`
			} `json:"countryMap"`
		} `json:"sum"`
	} `json:"zoneSummary"`

	HTTPRequestsAdaptive []struct {
		Count      int64 `json:"count"`
		Dimensions struct {
			ClientRequestPath     string `json:"clientRequestPath"`
			ClientIP              string `json:"clientIP"`
			ClientRequestHTTPHost string `json:"clientRequestHTTPHost"`
			UserAgent             string `json:"userAgent"`
			ClientCountryName     string `json:"clientCountryName"`
			EdgeResponseStatus    int    `json:"edgeResponseStatus"`
			Datetime              string `json:"datetimeFifteenMinutes"`
		} `json:"dimensions"`
		Avg struct {
			OriginResponseDurationMs float64 `json:"originResponseDurationMs"`
		} `json:"avg"`
	} `json:"httpRequestsAdaptive"`

	FirewallActivity []struct {
		Count      int64 `json:"count"`
		Dimensions struct {
			Action         string `json:"action"`
			DatetimeMinute string `json:"datetimeMinute"`
		} `json:"dimensions"`
	} `json:"firewallActivity"`

	FirewallRules []struct {
		Count      int64 `json:"count"`
		Dimensions struct {
			RuleID      string `json:"ruleId"`
			Description string `json:"description"`
		} `json:"dimensions"`
	} `json:"firewallRules"`

	FirewallIPs []struct {
		Count      int64 `json:"count"`
		Dimensions struct {
			ClientIP string `json:"clientIP"`
			Action   string `json:"action"`
		} `json:"dimensions"`
	} `json:"firewallIPs"`

	FirewallSources []struct {
		Count      int64 `json:"count"`
		Dimensions struct {
			Source string `json:"source"`
		} `json:"dimensions"`
	} `json:"firewallSources"`
}

// restEnvelope is the REST v4 response wrapper
type restEnvelope[T any] struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result T `json:"result"`
}

type zoneResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Account struct {
		Name string `json:"name"`
	} `json:"account"`
}

type dnsRecord struct {
	Type string `json:"type"`
	Name string `json:"name"`
}
