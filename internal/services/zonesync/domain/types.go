// Package domain defines the zonesync types and ports
package domain

import (
	"time"

	"zonepulse/internal/core/analytics"
)

// AllSubdomains is the target key for the zone as a whole
const AllSubdomains = "ALL_SUBDOMAINS"

// SyncRequest describes one sync run for a zone
type SyncRequest struct {
	ZoneID string `json:"zoneId" validate:"required"`
	Token  string `json:"token" validate:"required"`

	// Days bounds the initial backfill depth when a target has no history.
	// 0 means the configured default
	Days int `json:"days,omitempty" validate:"omitempty,min=1,max=365"`

	// NoSubdomains skips discovery and syncs only the whole-zone target
	NoSubdomains bool `json:"noSubdomains,omitempty"`
}

// DayRecord is one stored digest with its persistence metadata
type DayRecord struct {
	ZoneID   string                 `json:"zoneId"`
	Target   string                 `json:"target"`
	Day      time.Time              `json:"day"`
	Summary  analytics.DailySummary `json:"summary"`
	SyncedAt time.Time              `json:"syncedAt"`
}

// TargetStatus summarizes the stored history for one (zone, target) pair
type TargetStatus struct {
	ZoneID   string    `json:"zoneId"`
	Target   string    `json:"target"`
	FirstDay time.Time `json:"firstDay"`
	LastDay  time.Time `json:"lastDay"`
	Days     int       `json:"days"`
}
