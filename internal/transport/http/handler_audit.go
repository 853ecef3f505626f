package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civitas/internal/audit"
	"civitas/pkg/platform/httputil"
	"civitas/pkg/requestcontext"
)

// AuditHandler ingests client-side audit events. This endpoint never fails
// the caller: a client reporting an error must not receive another error
// for its trouble.
type AuditHandler struct {
	emitter *audit.Emitter
	logger  *slog.Logger
}

// NewAuditHandler constructs the audit ingest handler.
func NewAuditHandler(emitter *audit.Emitter, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{emitter: emitter, logger: logger}
}

// Register mounts the audit ingest endpoint.
func (h *AuditHandler) Register(r chi.Router) {
	r.Post("/audit/events", h.HandleIngest)
}

type ingestRequest struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

type ingestResponse struct {
	OK bool `json:"ok"`
}

// HandleIngest handles POST /audit/events.
func (h *AuditHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Undecodable reports still count as a signal worth keeping.
		req = ingestRequest{Source: "client", Message: "unparseable audit report"}
	}
	if req.Source == "" {
		req.Source = "client"
	}

	h.emitter.Emit(ctx, audit.Event{
		Source:       req.Source,
		Message:      req.Message,
		Stack:        req.Stack,
		RequestID:    requestcontext.RequestID(ctx),
		DeviceFamily: requestcontext.DeviceFamily(ctx),
	})

	httputil.WriteJSON(w, http.StatusAccepted, ingestResponse{OK: true})
}
