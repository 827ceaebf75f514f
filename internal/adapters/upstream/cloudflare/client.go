// Package cloudflare provides a resilient client for the Cloudflare GraphQL
// analytics API and the REST endpoints zonepulse needs around it
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	perr "zonepulse/internal/platform/errors"
	"zonepulse/internal/platform/logger"
)

const (
	baseURLDefault   = "https://api.cloudflare.com/client/v4"
	defaultTimeout   = 30 * time.Second
	defaultUA        = "zonepulse"
	defaultRetryBase = 500 * time.Millisecond
)

// Options configures the Client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// API token with Analytics:Read and DNS:Read on the zone
	Token string

	// MaxRetries adds client-internal retries for transient and rate
	// limited responses. Zero leaves transient failures to the caller,
	// whose own attempt policy governs the fetch
	MaxRetries int
	RetryBase  time.Duration
}

// Client talks to the Cloudflare API for one zone's worth of credentials
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("cloudflare"),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// do issues a request with auth and retries, returning the raw body on 2xx.
// body may be nil for GET requests
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := c.opts.BaseURL + path
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "cloudflare new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !c.shouldRetry(attempts) {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "cloudflare do failed")
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("cloudflare transport error retrying")
			c.sleep(back)
			attempts++
			continue
		}

		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Msg("cloudflare http response")

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			b, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "cloudflare read body failed")
			}
			return b, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, perr.Newf(perr.ErrorCodeTooManyRequests, "cloudflare rate limited")
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("sleep", back).Msg("cloudflare rate limited backing off")
			c.sleep(back)
			attempts++
			continue

		case resp.StatusCode == http.StatusBadGateway ||
			resp.StatusCode == http.StatusServiceUnavailable ||
			resp.StatusCode == http.StatusGatewayTimeout:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, perr.Newf(perr.ErrorCodeUnavailable, "cloudflare transient server error %d", resp.StatusCode)
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("cloudflare transient error retrying")
			c.sleep(back)
			attempts++
			continue

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return nil, perr.Newf(perr.ErrorCodeUnauthorized, "cloudflare auth rejected %d body %s", resp.StatusCode, string(tail))

		default:
			tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return nil, perr.Newf(perr.ErrorCodeUpstream, "cloudflare unexpected status %d body %s", resp.StatusCode, string(tail))
		}
	}
}

// graphql posts a query document and returns the decoded response envelope.
// Query level errors do not fail the call, callers treat them as degraded
func (c *Client) graphql(ctx context.Context, query string, vars map[string]any) (*graphQLResponse, error) {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "cloudflare marshal query failed")
	}

	b, err := c.do(ctx, http.MethodPost, "/graphql", payload)
	if err != nil {
		return nil, err
	}

	var out graphQLResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUpstream, "cloudflare decode graphql response failed")
	}
	if len(out.Errors) > 0 {
		c.log.Warn().
			Int("errors", len(out.Errors)).
			Str("first", out.Errors[0].Message).
			Msg("cloudflare graphql reported query errors, affected groups will be empty")
	}
	return &out, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase
	// simple exponential with cap
	ms := int64(d / time.Millisecond)
	ms = ms << uint(attempt)
	ceiling := int64(30 * time.Second / time.Millisecond)
	if ms > ceiling {
		ms = ceiling
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<20))
	return rc.Close()
}
