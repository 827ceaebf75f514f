package service

import (
	"context"
	"sync"

	"zonepulse/internal/core/analytics"
	"zonepulse/internal/platform/logger"
	"zonepulse/internal/services/zonesync/domain"
)

// chunker fetches one day's metrics, narrowing the window whenever the
// adaptive group comes back at the upstream row cap. The upstream truncates
// silently, so an at-cap result is the only truncation signal available
type chunker struct {
	fetch  domain.Fetcher
	zoneID string

	// display labels from the zone lookup; the analytics query itself
	// has no name fields to request
	zoneName    string
	accountName string

	log logger.Logger
}

// fetchDay walks the split levels coarse to fine. At each level all
// sub-windows are fetched concurrently; escalation happens whenever any
// sub-window is at cap, never partially. At the finest level an at-cap
// result is accepted with the truncated flag set
func (c *chunker) fetchDay(ctx context.Context, host string, day analytics.TimeWindow) (analytics.RawFetchResult, error) {
	for li, n := range analytics.Levels {
		if err := ctx.Err(); err != nil {
			return analytics.RawFetchResult{}, err
		}

		chunks, err := c.fetchLevel(ctx, host, analytics.SplitWindow(day, n))
		if err != nil {
			return analytics.RawFetchResult{}, err
		}

		atCap := false
		for _, ch := range chunks {
			if ch.AdaptiveAtCap() {
				atCap = true
				break
			}
		}

		last := li == len(analytics.Levels)-1
		if atCap && !last {
			c.log.Debug().
				Int("level", n).
				Int("next", analytics.Levels[li+1]).
				Str("host", host).
				Msg("adaptive group at row cap, escalating to finer windows")
			continue
		}

		merged := analytics.Merge(chunks)
		if atCap {
			merged.Truncated = true
			c.log.Warn().
				Str("zone", c.zoneID).
				Str("host", host).
				Time("day", day.Start).
				Msg("adaptive group still at row cap at 1h windows, counts are a lower bound")
		}
		return merged, nil
	}

	// Levels is never empty; unreachable
	return analytics.RawFetchResult{}, nil
}

// fetchLevel fans the sub-windows out concurrently and fails on the first
// fetch error, letting the caller's retry policy decide what happens next
func (c *chunker) fetchLevel(ctx context.Context, host string, wins []analytics.TimeWindow) ([]analytics.RawFetchResult, error) {
	chunks := make([]analytics.RawFetchResult, len(wins))
	errs := make([]error, len(wins))

	var wg sync.WaitGroup
	for i, w := range wins {
		wg.Add(1)
		go func(i int, w analytics.TimeWindow) {
			defer wg.Done()
			if host == "" {
				chunks[i], errs[i] = c.fetch.FetchWindow(ctx, c.zoneID, w, host)
			} else {
				chunks[i], errs[i] = c.fetch.FetchWindowSplit(ctx, c.zoneID, w, host)
			}
			if errs[i] == nil {
				chunks[i].ZoneName = c.zoneName
				chunks[i].AccountName = c.accountName
			}
		}(i, w)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}
