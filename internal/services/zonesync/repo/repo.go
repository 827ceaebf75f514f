// Package repo provides postgres access for zonesync digests
package repo

import (
	"context"
	"encoding/json"
	"time"

	"zonepulse/internal/core/analytics"
	"zonepulse/internal/modkit/repokit"
	perr "zonepulse/internal/platform/errors"
	"zonepulse/internal/services/zonesync/domain"
)

type (
	// PG is a Postgres binder for domain.StorageRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

// LatestSyncedDay returns the most recent stored day for a target
func (r *queries) LatestSyncedDay(ctx context.Context, zoneID, target string) (time.Time, bool, error) {
	row := r.q.QueryRow(ctx, `
		SELECT max(day) FROM daily_summaries
		WHERE zone_id = $1 AND target = $2
	`, zoneID, target)

	var day *time.Time
	if err := row.Scan(&day); err != nil {
		return time.Time{}, false, perr.FromPostgresf(err, "latest synced day")
	}
	if day == nil {
		return time.Time{}, false, nil
	}
	return day.UTC(), true, nil
}

// DayExists reports whether a digest (real or marker) is stored for a day
func (r *queries) DayExists(ctx context.Context, zoneID, target string, day time.Time) (bool, error) {
	row := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM daily_summaries
			WHERE zone_id = $1 AND target = $2 AND day = $3
		)
	`, zoneID, target, day.UTC())

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, perr.FromPostgresf(err, "day exists")
	}
	return exists, nil
}

// UpsertDay stores a digest, last write wins on re-invocation
func (r *queries) UpsertDay(ctx context.Context, zoneID, target string, day time.Time, s analytics.DailySummary) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return perr.JSONErrf("marshal daily summary: %v", err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO daily_summaries (zone_id, target, day, summary, fetch_error, truncated, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (zone_id, target, day) DO UPDATE SET
			summary = EXCLUDED.summary,
			fetch_error = EXCLUDED.fetch_error,
			truncated = EXCLUDED.truncated,
			synced_at = now()
	`, zoneID, target, day.UTC(), payload, s.FetchError, s.Truncated)
	if err != nil {
		return perr.FromPostgresf(err, "upsert day")
	}
	return nil
}

// RangeDays returns stored digests for [from, to] ascending by day
func (r *queries) RangeDays(ctx context.Context, zoneID, target string, from, to time.Time) ([]domain.DayRecord, error) {
	rows, err := r.q.Query(ctx, `
		SELECT zone_id, target, day, summary, synced_at
		FROM daily_summaries
		WHERE zone_id = $1 AND target = $2 AND day >= $3 AND day <= $4
		ORDER BY day ASC
	`, zoneID, target, from.UTC(), to.UTC())
	if err != nil {
		return nil, perr.FromPostgresf(err, "range days")
	}
	defer rows.Close()

	var out []domain.DayRecord
	for rows.Next() {
		var (
			rec     domain.DayRecord
			payload []byte
		)
		if err := rows.Scan(&rec.ZoneID, &rec.Target, &rec.Day, &payload, &rec.SyncedAt); err != nil {
			return nil, perr.FromPostgresf(err, "scan day record")
		}
		if err := json.Unmarshal(payload, &rec.Summary); err != nil {
			return nil, perr.JSONErrf("unmarshal daily summary: %v", err)
		}
		rec.Day = rec.Day.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgresf(err, "range days rows")
	}
	return out, nil
}

// DeleteTarget removes one target's entire history
func (r *queries) DeleteTarget(ctx context.Context, zoneID, target string) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM daily_summaries
		WHERE zone_id = $1 AND target = $2
	`, zoneID, target)
	if err != nil {
		return 0, perr.FromPostgresf(err, "delete target")
	}
	return tag.RowsAffected(), nil
}

// AllTargetsStatus lists every stored pair with its first and last day
func (r *queries) AllTargetsStatus(ctx context.Context) ([]domain.TargetStatus, error) {
	rows, err := r.q.Query(ctx, `
		SELECT zone_id, target, min(day), max(day), count(*)
		FROM daily_summaries
		GROUP BY zone_id, target
		ORDER BY zone_id, target
	`)
	if err != nil {
		return nil, perr.FromPostgresf(err, "all targets status")
	}
	defer rows.Close()

	var out []domain.TargetStatus
	for rows.Next() {
		var ts domain.TargetStatus
		if err := rows.Scan(&ts.ZoneID, &ts.Target, &ts.FirstDay, &ts.LastDay, &ts.Days); err != nil {
			return nil, perr.FromPostgresf(err, "scan target status")
		}
		ts.FirstDay = ts.FirstDay.UTC()
		ts.LastDay = ts.LastDay.UTC()
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgresf(err, "all targets rows")
	}
	return out, nil
}
