package transport

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"civitas/internal/ceremony"
	"civitas/internal/challenge"
	"civitas/internal/platform/config"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/httputil"
	"civitas/pkg/requestcontext"
)

// challengeCookie holds the signed challenge token between the challenge
// and verify calls. HttpOnly keeps it out of script reach; clearing it on
// verify makes each challenge single-use.
const challengeCookie = "civitas_challenge"

// AuthHandler serves the WebAuthn ceremony endpoints.
type AuthHandler struct {
	ceremonies *ceremony.Service
	rp         config.RelyingParty
	logger     *slog.Logger
	secure     bool
}

// NewAuthHandler constructs the ceremony handler.
func NewAuthHandler(ceremonies *ceremony.Service, rp config.RelyingParty, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		ceremonies: ceremonies,
		rp:         rp,
		logger:     logger,
		secure:     strings.HasPrefix(rp.Origin, "https://"),
	}
}

type registerChallengeResponse struct {
	Challenge string    `json:"challenge"`
	UserID    string    `json:"user_id"`
	RPID      string    `json:"rp_id"`
	RPName    string    `json:"rp_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

type loginChallengeResponse struct {
	Challenge string    `json:"challenge"`
	ExpiresAt time.Time `json:"expires_at"`
}

// registerVerifyRequest wraps the client's attestation response.
type registerVerifyRequest struct {
	Attestation json.RawMessage `json:"attestation"`
}

// loginVerifyRequest wraps the assertion and, in client-held mode, the
// credential envelope returned at registration.
type loginVerifyRequest struct {
	Assertion  json.RawMessage `json:"assertion"`
	Credential string          `json:"credential,omitempty"`
}

// HandleRegisterChallenge handles GET /auth/register/challenge.
func (h *AuthHandler) HandleRegisterChallenge(w http.ResponseWriter, r *http.Request) {
	ch, token, err := h.ceremonies.IssueChallenge(r.Context(), challenge.KindRegistration)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.setChallengeCookie(w, token, ch.ExpiresAt)
	httputil.WriteJSON(w, http.StatusOK, registerChallengeResponse{
		Challenge: ch.ChallengeB64(),
		UserID:    ch.UserHandleB64(),
		RPID:      h.rp.ID,
		RPName:    h.rp.Name,
		ExpiresAt: ch.ExpiresAt,
	})
}

// HandleLoginChallenge handles GET /auth/login/challenge.
func (h *AuthHandler) HandleLoginChallenge(w http.ResponseWriter, r *http.Request) {
	ch, token, err := h.ceremonies.IssueChallenge(r.Context(), challenge.KindLogin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.setChallengeCookie(w, token, ch.ExpiresAt)
	httputil.WriteJSON(w, http.StatusOK, loginChallengeResponse{
		Challenge: ch.ChallengeB64(),
		ExpiresAt: ch.ExpiresAt,
	})
}

// HandleRegisterVerify handles POST /auth/register/verify.
func (h *AuthHandler) HandleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	token, ok := h.challengeToken(w, r)
	if !ok {
		return
	}
	// The challenge is consumed by this attempt, pass or fail.
	h.clearChallengeCookie(w)

	req, ok := httputil.DecodeJSON[registerVerifyRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	if len(req.Attestation) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "attestation is required"))
		return
	}

	result, err := h.ceremonies.VerifyRegistration(ctx, token, bytes.NewReader(req.Attestation))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleLoginVerify handles POST /auth/login/verify.
func (h *AuthHandler) HandleLoginVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	token, ok := h.challengeToken(w, r)
	if !ok {
		return
	}
	h.clearChallengeCookie(w)

	req, ok := httputil.DecodeJSON[loginVerifyRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	if len(req.Assertion) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "assertion is required"))
		return
	}

	result, err := h.ceremonies.VerifyLogin(ctx, token, bytes.NewReader(req.Assertion), req.Credential)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// challengeToken reads the challenge cookie. Absence is a client error:
// the verify call only makes sense after a challenge call.
func (h *AuthHandler) challengeToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	cookie, err := r.Cookie(challengeCookie)
	if err != nil || cookie.Value == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "challenge cookie missing, request a challenge first"))
		return "", false
	}
	return cookie.Value, true
}

func (h *AuthHandler) setChallengeCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     challengeCookie,
		Value:    token,
		Path:     "/auth",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearChallengeCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     challengeCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
