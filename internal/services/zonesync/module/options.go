package module

import (
	"time"

	"zonepulse/internal/platform/config"
)

// Options holds configuration options for the zonesync service
type Options struct {
	Days           int
	InterDateDelay time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration

	// Upstream client tuning
	APIBase       string
	FetchTimeout  time.Duration
	ClientRetries int
}

// FromConfig reads the zonesync options from config with CORE_SYNC_ prefix
func FromConfig(cfg config.Conf) Options {
	zs := cfg.Prefix("CORE_SYNC_")
	return Options{
		Days:           zs.MayInt("DAYS", 30),
		InterDateDelay: zs.MayDuration("DATE_DELAY", time.Second),
		MaxAttempts:    zs.MayInt("ATTEMPTS", 2),
		RetryDelay:     zs.MayDuration("RETRY_DELAY", 5*time.Second),
		APIBase:        zs.MayString("API_BASE", ""),
		FetchTimeout:   zs.MayDuration("FETCH_TIMEOUT", 30*time.Second),
		// the sync attempt policy owns retries; client-internal retries
		// are opt-in on top of it
		ClientRetries: zs.MayInt("CLIENT_RETRIES", 0),
	}
}
