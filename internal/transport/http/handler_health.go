package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civitas/pkg/platform/httputil"
)

// HealthChecks maps component names to their liveness probes. Optional
// dependencies register a check only when configured.
type HealthChecks map[string]func(ctx context.Context) error

// HealthHandler serves the operational health endpoint.
type HealthHandler struct {
	checks HealthChecks
}

// NewHealthHandler constructs the health handler.
func NewHealthHandler(checks HealthChecks) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Register mounts the health endpoint.
func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// HandleHealth handles GET /healthz. The process serves traffic even with
// degraded dependencies (heartbeat fails open, grants degrade), so a
// component failure reports degraded rather than unhealthy.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	if len(h.checks) > 0 {
		resp.Components = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				resp.Components[name] = "unavailable"
				resp.Status = "degraded"
				continue
			}
			resp.Components[name] = "ok"
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
