// Package net provides utilities for working with request contexts
package net

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// ctxKey is an unexported key type for context values
type ctxKey string

const keyZoneID ctxKey = "zone_id"

// WithRequest annotates context with common request scoped ids
func WithRequest(ctx context.Context, reqID, zoneID string) context.Context {
	if reqID != "" {
		// set chi RequestID so chimw.GetReqID can retrieve it
		ctx = context.WithValue(ctx, chimw.RequestIDKey, reqID)
	}
	if zoneID != "" {
		ctx = context.WithValue(ctx, keyZoneID, zoneID)
	}
	return ctx
}

// RequestID returns the request id on the context if present
func RequestID(ctx context.Context) string {
	if v := chimw.GetReqID(ctx); v != "" {
		return v
	}
	return ""
}

// ZoneID returns the zone id on the context if present
func ZoneID(ctx context.Context) string {
	if v, ok := ctx.Value(keyZoneID).(string); ok {
		return v
	}
	return ""
}
