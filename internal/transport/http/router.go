// Package transport wires the HTTP surface: routing, middleware, and the
// handlers that translate between the JSON contract and domain services.
package transport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civitas/internal/audit"
	"civitas/internal/ceremony"
	"civitas/internal/grant"
	"civitas/internal/heartbeat"
	"civitas/internal/platform/config"
	"civitas/internal/ratelimit"
	"civitas/pkg/platform/middleware/metadata"
	"civitas/pkg/platform/middleware/requestid"
)

// Deps carries everything the router mounts.
type Deps struct {
	Ceremonies   *ceremony.Service
	Heartbeats   *heartbeat.Service
	Grants       *grant.Service
	Emitter      *audit.Emitter
	RelyingParty config.RelyingParty
	RateLimit    *ratelimit.Middleware
	Limits       config.RateLimitConfig
	Health       HealthChecks
	Logger       *slog.Logger
}

// NewRouter assembles the full route table.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestid.RequestID)
	r.Use(metadata.ClientMetadata)

	auth := NewAuthHandler(deps.Ceremonies, deps.RelyingParty, deps.Logger)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit("challenge", deps.Limits.ChallengePerMinute, ratelimit.ByClientIP))
		r.Get("/auth/register/challenge", auth.HandleRegisterChallenge)
		r.Get("/auth/login/challenge", auth.HandleLoginChallenge)
	})
	r.Post("/auth/register/verify", auth.HandleRegisterVerify)
	r.Post("/auth/login/verify", auth.HandleLoginVerify)

	hb := NewHeartbeatHandler(deps.Heartbeats, deps.Logger)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit("heartbeat", deps.Limits.HeartbeatPerMinute, byCitizenIDParam))
		r.Get("/session/heartbeat/{citizenId}", hb.HandleHeartbeat)
	})

	grants := NewGrantHandler(deps.Grants, deps.Logger)
	grants.Register(r)

	ingest := NewAuditHandler(deps.Emitter, deps.Logger)
	ingest.Register(r)

	health := NewHealthHandler(deps.Health)
	health.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// byCitizenIDParam rate limits heartbeats per citizen, not per address: one
// citizen polling aggressively must not starve others behind the same NAT.
func byCitizenIDParam(r *http.Request) string {
	return chi.URLParam(r, "citizenId")
}
