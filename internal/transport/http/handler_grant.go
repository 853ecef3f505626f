package transport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civitas/internal/grant"
	"civitas/pkg/platform/httputil"
	"civitas/pkg/requestcontext"
)

// GrantHandler serves genesis grant issuance and the wallet view.
type GrantHandler struct {
	grants *grant.Service
	logger *slog.Logger
}

// NewGrantHandler constructs the grant handler.
func NewGrantHandler(grants *grant.Service, logger *slog.Logger) *GrantHandler {
	return &GrantHandler{grants: grants, logger: logger}
}

// Register mounts grant endpoints on the router.
func (h *GrantHandler) Register(r chi.Router) {
	r.Post("/grants/genesis", h.HandleGenesis)
	r.Get("/wallet/{citizenId}", h.HandleWallet)
}

// HandleGenesis handles POST /grants/genesis. A replayed claim is a 409
// carrying the original record: same shape as success, not an error
// envelope, because "already granted" is an answer, not a failure.
func (h *GrantHandler) HandleGenesis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeJSON[grant.Request](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	result, err := h.grants.Issue(ctx, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyExists {
		status = http.StatusConflict
	}
	httputil.WriteJSON(w, status, result.Record)
}

// HandleWallet handles GET /wallet/{citizenId}.
func (h *GrantHandler) HandleWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.grants.WalletFor(r.Context(), chi.URLParam(r, "citizenId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wallet)
}
