package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"civitas/internal/platform/metrics"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/httputil"
	"civitas/pkg/requestcontext"
)

// KeyFunc derives the rate limit key from a request. An empty key skips the
// check for that request.
type KeyFunc func(r *http.Request) string

// ByClientIP keys on the client address resolved by the metadata middleware.
func ByClientIP(r *http.Request) string {
	return requestcontext.ClientIP(r.Context())
}

// Middleware applies per-endpoint-class rate limits.
type Middleware struct {
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

// Option configures the Middleware.
type Option func(*Middleware)

// WithDisabled turns rate limiting off entirely (demo and test setups).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) { m.disabled = disabled }
}

// NewMiddleware creates the rate limit middleware over the given store.
func NewMiddleware(store Store, logger *slog.Logger, met *metrics.Metrics, opts ...Option) *Middleware {
	m := &Middleware{store: store, logger: logger, metrics: met}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit enforces perMinute requests per key for one endpoint class.
// A limiter failure fails open: an unavailable limiter must not take the
// service down with it.
func (m *Middleware) Limit(class string, perMinute int, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled || perMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := m.store.Allow(r.Context(), class+":"+k, perMinute, Window)
			if err != nil {
				m.logger.ErrorContext(r.Context(), "rate limit check failed",
					"class", class,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result)

			if !result.Allowed {
				m.metrics.RateLimitDenied.WithLabelValues(class).Inc()
				m.logger.InfoContext(r.Context(), "rate limit exceeded",
					"class", class,
					"request_id", requestcontext.RequestID(r.Context()),
					"log_type", "audit",
				)
				retryAfter := max(int(time.Until(result.ResetAt).Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited,
					"too many requests, retry later"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders is applied on every checked response so clients can
// pace themselves before hitting the limit.
func setRateLimitHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
