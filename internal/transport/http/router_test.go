package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civitas/internal/audit"
	"civitas/internal/ceremony"
	"civitas/internal/ceremony/cache"
	"civitas/internal/challenge"
	"civitas/internal/grant"
	"civitas/internal/heartbeat"
	"civitas/internal/identity"
	"civitas/internal/platform/config"
	"civitas/internal/platform/metrics"
	"civitas/internal/ratelimit"
	"civitas/internal/registry"
	"civitas/pkg/testutil"
)

var testMetrics = metrics.New()

type fakeRegistration struct{ id []byte }

func (f fakeRegistration) CredentialID() []byte { return f.id }

type fakeAssertion struct{ id []byte }

func (f fakeAssertion) CredentialID() []byte { return f.id }
func (f fakeAssertion) UserHandle() []byte   { return nil }

// fakeVerifier accepts any payload and reports a fixed credential, so
// handler behavior can be tested without fabricating attestation objects.
type fakeVerifier struct {
	credentialID []byte
}

func (f *fakeVerifier) ParseRegistration(io.Reader) (ceremony.Registration, error) {
	return fakeRegistration{id: f.credentialID}, nil
}

func (f *fakeVerifier) VerifyRegistration(_ *challenge.Challenge, reg ceremony.Registration) (*identity.StoredCredential, error) {
	return &identity.StoredCredential{CredentialID: reg.CredentialID(), PublicKey: []byte("pk")}, nil
}

func (f *fakeVerifier) ParseAssertion(io.Reader) (ceremony.Assertion, error) {
	return fakeAssertion{id: f.credentialID}, nil
}

func (f *fakeVerifier) VerifyAssertion(_ *challenge.Challenge, cred *identity.StoredCredential, _ ceremony.Assertion) (*identity.StoredCredential, error) {
	updated := *cred
	updated.SignCounter++
	return &updated, nil
}

type routerFixture struct {
	router chi.Router
	store  *registry.MemoryStore
}

func newRouterFixture(t *testing.T, storeBacked bool, limits config.RateLimitConfig) *routerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	emitter := audit.NewEmitter(nil, logger, testMetrics)

	issuer, err := challenge.NewIssuer([]byte("test-challenge-secret"))
	require.NoError(t, err)
	deriver, err := identity.NewDeriver([]byte("test-pepper"))
	require.NoError(t, err)
	signer, err := cache.NewSigner([]byte("test-envelope-secret"))
	require.NoError(t, err)

	var store *registry.MemoryStore
	var storeArg registry.Store
	if storeBacked {
		store = registry.NewMemoryStore()
		storeArg = store
	}

	rp := config.RelyingParty{ID: "localhost", Name: "Civitas", Origin: "http://localhost:8080"}
	ceremonies := ceremony.NewService(issuer, &fakeVerifier{credentialID: []byte("credential-id")},
		deriver, storeArg, signer, emitter, logger, testMetrics)
	heartbeats := heartbeat.NewService(storeArg, time.Second, emitter, logger, testMetrics)
	grants := grant.NewService(deriver, storeArg, emitter, logger, testMetrics, 100)

	router := NewRouter(Deps{
		Ceremonies:   ceremonies,
		Heartbeats:   heartbeats,
		Grants:       grants,
		Emitter:      emitter,
		RelyingParty: rp,
		RateLimit:    ratelimit.NewMiddleware(ratelimit.NewMemoryStore(), logger, testMetrics),
		Limits:       limits,
		Health:       HealthChecks{},
		Logger:       logger,
	})
	return &routerFixture{router: router, store: store}
}

func defaultLimits() config.RateLimitConfig {
	return config.RateLimitConfig{ChallengePerMinute: 100, HeartbeatPerMinute: 100}
}

// challengeCookieFrom extracts the challenge cookie from a challenge
// response.
func challengeCookieFrom(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == challengeCookie && c.Value != "" {
			return c
		}
	}
	t.Fatal("challenge cookie not set")
	return nil
}

func clearedCookie(rr *httptest.ResponseRecorder) bool {
	for _, c := range rr.Result().Cookies() {
		if c.Name == challengeCookie && c.MaxAge < 0 {
			return true
		}
	}
	return false
}

func TestRegisterChallenge(t *testing.T) {
	f := newRouterFixture(t, true, defaultLimits())

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/register/challenge"))
	testutil.AssertStatus(t, rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[registerChallengeResponse](t, rr)
	assert.NotEmpty(t, resp.Challenge)
	assert.NotEmpty(t, resp.UserID)
	assert.Equal(t, "localhost", resp.RPID)
	assert.False(t, resp.ExpiresAt.IsZero())

	cookie := challengeCookieFrom(t, rr)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/auth", cookie.Path)
}

func TestLoginChallenge(t *testing.T) {
	f := newRouterFixture(t, true, defaultLimits())

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/login/challenge"))
	testutil.AssertStatus(t, rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[loginChallengeResponse](t, rr)
	assert.NotEmpty(t, resp.Challenge)
	challengeCookieFrom(t, rr)
}

func TestChallengeRateLimit(t *testing.T) {
	limits := defaultLimits()
	limits.ChallengePerMinute = 2
	f := newRouterFixture(t, true, limits)

	for i := 0; i < 2; i++ {
		rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/login/challenge"))
		testutil.AssertStatus(t, rr, http.StatusOK)
	}
	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/login/challenge"))
	testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limit_exceeded")
}

func TestRegisterVerify(t *testing.T) {
	t.Run("without cookie", func(t *testing.T) {
		f := newRouterFixture(t, true, defaultLimits())
		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/register/verify", map[string]any{
			"attestation": map[string]any{},
		})
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("full flow persists the citizen", func(t *testing.T) {
		f := newRouterFixture(t, true, defaultLimits())

		chRR := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/register/challenge"))
		cookie := challengeCookieFrom(t, chRR)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/register/verify", map[string]any{
			"attestation": map[string]any{"id": "x"},
		})
		req.AddCookie(cookie)
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.True(t, clearedCookie(rr), "challenge cookie is cleared on success")

		result := testutil.UnmarshalResponse[ceremony.Result](t, rr)
		require.NotNil(t, result.Identity)
		assert.Len(t, result.Identity.CitizenID, identity.CitizenIDLen)
		assert.Empty(t, result.Envelope)

		_, err := f.store.Credential(context.Background(), result.Identity.CitizenID)
		assert.NoError(t, err)
	})

	t.Run("client-held mode returns an envelope", func(t *testing.T) {
		f := newRouterFixture(t, false, defaultLimits())

		chRR := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/register/challenge"))
		cookie := challengeCookieFrom(t, chRR)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/register/verify", map[string]any{
			"attestation": map[string]any{"id": "x"},
		})
		req.AddCookie(cookie)
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)

		result := testutil.UnmarshalResponse[ceremony.Result](t, rr)
		assert.NotEmpty(t, result.Envelope)
	})

	t.Run("missing attestation", func(t *testing.T) {
		f := newRouterFixture(t, true, defaultLimits())

		chRR := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/register/challenge"))
		cookie := challengeCookieFrom(t, chRR)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/register/verify", map[string]any{})
		req.AddCookie(cookie)
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
		assert.True(t, clearedCookie(rr), "challenge cookie is consumed by the attempt")
	})
}

func TestLoginVerify(t *testing.T) {
	t.Run("unknown credential in store-backed mode", func(t *testing.T) {
		f := newRouterFixture(t, true, defaultLimits())

		chRR := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/login/challenge"))
		cookie := challengeCookieFrom(t, chRR)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/login/verify", map[string]any{
			"assertion": map[string]any{"id": "x"},
		})
		req.AddCookie(cookie)
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "credential_not_found")
		assert.True(t, clearedCookie(rr), "challenge cookie is cleared on terminal failure")
	})

	t.Run("register then login", func(t *testing.T) {
		f := newRouterFixture(t, true, defaultLimits())

		regChallenge := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/register/challenge"))
		regReq := testutil.NewJSONRequest(t, http.MethodPost, "/auth/register/verify", map[string]any{
			"attestation": map[string]any{"id": "x"},
		})
		regReq.AddCookie(challengeCookieFrom(t, regChallenge))
		regRR := testutil.DoRequest(f.router, regReq)
		testutil.AssertStatus(t, regRR, http.StatusOK)
		registered := testutil.UnmarshalResponse[ceremony.Result](t, regRR)

		loginChallenge := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/login/challenge"))
		loginReq := testutil.NewJSONRequest(t, http.MethodPost, "/auth/login/verify", map[string]any{
			"assertion": map[string]any{"id": "x"},
		})
		loginReq.AddCookie(challengeCookieFrom(t, loginChallenge))
		loginRR := testutil.DoRequest(f.router, loginReq)
		testutil.AssertStatus(t, loginRR, http.StatusOK)

		result := testutil.UnmarshalResponse[ceremony.Result](t, loginRR)
		assert.Equal(t, registered.Identity.CitizenID, result.Identity.CitizenID)
	})

	t.Run("client-held login round trip", func(t *testing.T) {
		f := newRouterFixture(t, false, defaultLimits())

		regChallenge := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/register/challenge"))
		regReq := testutil.NewJSONRequest(t, http.MethodPost, "/auth/register/verify", map[string]any{
			"attestation": map[string]any{"id": "x"},
		})
		regReq.AddCookie(challengeCookieFrom(t, regChallenge))
		regRR := testutil.DoRequest(f.router, regReq)
		registered := testutil.UnmarshalResponse[ceremony.Result](t, regRR)
		require.NotEmpty(t, registered.Envelope)

		loginChallenge := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/login/challenge"))
		loginReq := testutil.NewJSONRequest(t, http.MethodPost, "/auth/login/verify", map[string]any{
			"assertion":  map[string]any{"id": "x"},
			"credential": registered.Envelope,
		})
		loginReq.AddCookie(challengeCookieFrom(t, loginChallenge))
		loginRR := testutil.DoRequest(f.router, loginReq)
		testutil.AssertStatus(t, loginRR, http.StatusOK)

		result := testutil.UnmarshalResponse[ceremony.Result](t, loginRR)
		assert.NotEmpty(t, result.Envelope, "login re-signs the envelope with the new counter")
	})

	t.Run("no store and no envelope", func(t *testing.T) {
		f := newRouterFixture(t, false, defaultLimits())

		chRR := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/auth/login/challenge"))
		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/login/verify", map[string]any{
			"assertion": map[string]any{"id": "x"},
		})
		req.AddCookie(challengeCookieFrom(t, chRR))
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusServiceUnavailable, "service_unavailable")
	})
}

func TestHeartbeatEndpoint(t *testing.T) {
	const citizenID = "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"

	t.Run("malformed id", func(t *testing.T) {
		f := newRouterFixture(t, false, defaultLimits())
		rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/session/heartbeat/nope"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("session-only mode is always valid", func(t *testing.T) {
		f := newRouterFixture(t, false, defaultLimits())
		rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/session/heartbeat/"+citizenID))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "valid", true)
	})

	t.Run("unknown citizen is revoked in store-backed mode", func(t *testing.T) {
		f := newRouterFixture(t, true, defaultLimits())
		rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/session/heartbeat/"+citizenID))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "valid", false)
	})

	t.Run("rate limited per citizen", func(t *testing.T) {
		limits := defaultLimits()
		limits.HeartbeatPerMinute = 2
		f := newRouterFixture(t, false, limits)

		for i := 0; i < 2; i++ {
			rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/session/heartbeat/"+citizenID))
			testutil.AssertStatus(t, rr, http.StatusOK)
		}
		rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/session/heartbeat/"+citizenID))
		testutil.AssertStatus(t, rr, http.StatusTooManyRequests)

		// A different citizen has its own window.
		other := "ffffffffffffffffffffffffffffffff"
		rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/session/heartbeat/"+other))
		testutil.AssertStatus(t, rr, http.StatusOK)
	})
}

func TestGenesisGrantEndpoint(t *testing.T) {
	const citizenID = "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"
	f := newRouterFixture(t, true, defaultLimits())

	body := map[string]any{"citizen_id": citizenID, "covenant_hash": "covenant-v1"}

	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/grants/genesis", body))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	first := testutil.UnmarshalResponse[registry.GrantRecord](t, rr)
	assert.False(t, first.Degraded)

	// Replay: 409 with the original record, same shape as success.
	rr = testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/grants/genesis", body))
	testutil.AssertStatus(t, rr, http.StatusConflict)
	second := testutil.UnmarshalResponse[registry.GrantRecord](t, rr)
	assert.Equal(t, first.GrantID, second.GrantID)

	// And the wallet shows exactly one credit.
	rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/wallet/"+citizenID))
	testutil.AssertStatus(t, rr, http.StatusOK)
	wallet := testutil.UnmarshalResponse[grant.Wallet](t, rr)
	assert.Equal(t, int64(100), wallet.Balance)
	assert.Len(t, wallet.Entries, 1)
}

func TestGenesisGrantDegraded(t *testing.T) {
	f := newRouterFixture(t, false, defaultLimits())

	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/grants/genesis", map[string]any{
		"citizen_id":    "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6",
		"covenant_hash": "covenant-v1",
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	record := testutil.UnmarshalResponse[registry.GrantRecord](t, rr)
	assert.True(t, record.Degraded, "no store means degraded issuance")
}

func TestAuditIngestNeverFails(t *testing.T) {
	f := newRouterFixture(t, true, defaultLimits())

	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/audit/events", map[string]any{
		"source":  "client",
		"message": "render failed",
	}))
	testutil.AssertStatus(t, rr, http.StatusAccepted)
	testutil.AssertJSONContains(t, rr, "ok", true)

	// Garbage body still gets {ok:true}.
	req := testutil.NewRequestWithBody(t, http.MethodPost, "/audit/events", "{not json")
	rr = testutil.DoRequest(f.router, req)
	testutil.AssertStatus(t, rr, http.StatusAccepted)
	testutil.AssertJSONContains(t, rr, "ok", true)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t, true, defaultLimits())

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "status", "ok")

	rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatus(t, rr, http.StatusOK)
}
