// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Context keys and getter/setter functions live here for values set by
// middleware but consumed by services. Keeping this package free of net/http
// dependencies lets services import only what they need.
//
// Usage in services (read values):
//
//	requestID := requestcontext.RequestID(ctx)
//	ip := requestcontext.ClientIP(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9", "test-agent")
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	citizenIDKey    struct{}
	clientIPKey     struct{}
	userAgentKey    struct{}
	deviceFamilyKey struct{}
	requestIDKey    struct{}
	requestTimeKey  struct{}
)

// CitizenID retrieves the authenticated citizen ID from the context.
// Returns "" if not set.
func CitizenID(ctx context.Context) string {
	if citizenID, ok := ctx.Value(citizenIDKey{}).(string); ok {
		return citizenID
	}
	return ""
}

// WithCitizenID injects a citizen ID into the context.
func WithCitizenID(ctx context.Context, citizenID string) context.Context {
	return context.WithValue(ctx, citizenIDKey{}, citizenID)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// DeviceFamily retrieves the parsed browser/platform family ("Firefox/Linux")
// used for audit enrichment.
func DeviceFamily(ctx context.Context) string {
	if df, ok := ctx.Value(deviceFamilyKey{}).(string); ok {
		return df
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// WithDeviceFamily injects a parsed device family into a context.
func WithDeviceFamily(ctx context.Context, family string) context.Context {
	return context.WithValue(ctx, deviceFamilyKey{}, family)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests that need deterministic clocks.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
