package transport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civitas/internal/heartbeat"
	"civitas/pkg/platform/httputil"
)

// HeartbeatHandler serves the session heartbeat endpoint.
type HeartbeatHandler struct {
	heartbeats *heartbeat.Service
	logger     *slog.Logger
}

// NewHeartbeatHandler constructs the heartbeat handler.
func NewHeartbeatHandler(heartbeats *heartbeat.Service, logger *slog.Logger) *HeartbeatHandler {
	return &HeartbeatHandler{heartbeats: heartbeats, logger: logger}
}

// HandleHeartbeat handles GET /session/heartbeat/{citizenId}. An invalid
// session is still a 200: the check succeeded, the session did not.
func (h *HeartbeatHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	status, err := h.heartbeats.Check(r.Context(), chi.URLParam(r, "citizenId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}
