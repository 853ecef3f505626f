// Package ratelimit bounds challenge issuance and heartbeat checks per
// client. The default store is process-local: in multi-instance deployments
// each instance enforces its own window, so the effective ceiling is
// limit * instances. Deployments that need a shared ceiling configure the
// redis store instead.
package ratelimit

import (
	"context"
	"time"
)

// Window is the fixed rate limit window.
const Window = time.Minute

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store counts requests per key within a fixed window.
type Store interface {
	// Allow increments the counter for key and reports whether the request
	// fits within limit for the current window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
