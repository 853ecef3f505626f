// Package ceremony orchestrates WebAuthn registration and login: challenge
// verification, structural validation, cryptographic verification, identity
// derivation, and credential persistence.
//
// Two trust modes exist, selected once at startup. With an identity store,
// credentials live server-side and login checks "do we recognize this
// credential". Without one, the registered credential is handed to the
// client in a signed envelope and login checks "can this assertion be
// verified against the credential the client claims to hold". Device
// possession is proven either way.
package ceremony

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"civitas/internal/audit"
	"civitas/internal/ceremony/cache"
	"civitas/internal/challenge"
	"civitas/internal/identity"
	"civitas/internal/platform/metrics"
	"civitas/internal/registry"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/sentinel"
	"civitas/pkg/requestcontext"
)

// Result is the outcome of a successful ceremony.
type Result struct {
	Identity *identity.CitizenIdentity `json:"identity"`
	// Envelope carries the signed client-held credential. Set only in
	// client-held mode.
	Envelope string `json:"credential,omitempty"`
}

// Service implements the ceremony verifier.
type Service struct {
	issuer    *challenge.Issuer
	verifier  Verifier
	deriver   *identity.Deriver
	store     registry.Store // nil selects client-held mode
	envelopes *cache.Signer
	emitter   *audit.Emitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService wires the ceremony service. store may be nil (client-held
// credential mode); everything else is required.
func NewService(
	issuer *challenge.Issuer,
	verifier Verifier,
	deriver *identity.Deriver,
	store registry.Store,
	envelopes *cache.Signer,
	emitter *audit.Emitter,
	logger *slog.Logger,
	met *metrics.Metrics,
) *Service {
	return &Service{
		issuer:    issuer,
		verifier:  verifier,
		deriver:   deriver,
		store:     store,
		envelopes: envelopes,
		emitter:   emitter,
		logger:    logger,
		metrics:   met,
		tracer:    otel.Tracer("civitas/ceremony"),
		now:       time.Now,
	}
}

// StoreBacked reports whether credentials are persisted server-side.
func (s *Service) StoreBacked() bool { return s.store != nil }

// IssueChallenge mints a challenge for the given ceremony kind.
func (s *Service) IssueChallenge(ctx context.Context, kind challenge.Kind) (*challenge.Challenge, string, error) {
	ch, token, err := s.issuer.Issue(kind, s.now())
	if err != nil {
		return nil, "", err
	}
	s.metrics.ChallengesIssued.WithLabelValues(string(kind)).Inc()
	s.logger.InfoContext(ctx, "challenge issued",
		"kind", kind,
		"expires_at", ch.ExpiresAt,
		"request_id", requestcontext.RequestID(ctx),
	)
	return ch, token, nil
}

// VerifyRegistration runs the registration ceremony against the signed
// challenge token and the client's attestation response.
func (s *Service) VerifyRegistration(ctx context.Context, token string, body io.Reader) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "ceremony.VerifyRegistration")
	defer span.End()

	now := s.now()

	ch, err := s.issuer.Verify(token, now)
	if err != nil {
		return nil, s.reject(ctx, span, "registration", err)
	}

	reg, err := s.verifier.ParseRegistration(body)
	if err != nil {
		return nil, s.reject(ctx, span, "registration",
			dErrors.Wrap(err, dErrors.CodeMalformedCeremony, "registration response malformed"))
	}

	cred, err := s.verifier.VerifyRegistration(ch, reg)
	if err != nil {
		return nil, s.reject(ctx, span, "registration",
			dErrors.Wrap(err, dErrors.CodeCeremonyRejected, "registration could not be verified"))
	}

	citizenID := s.deriver.CitizenID(cred.CredentialID)
	span.SetAttributes(attribute.String("citizen_id", citizenID))

	citizen := &identity.CitizenIdentity{
		CitizenID:       citizenID,
		AuthenticatedAt: now,
	}

	result := &Result{Identity: citizen}
	if s.store != nil {
		if err := s.persistRegistration(ctx, citizen, cred); err != nil {
			return nil, s.reject(ctx, span, "registration",
				dErrors.Wrap(err, dErrors.CodeUnavailable, "identity store unavailable"))
		}
	} else {
		envelope, err := s.envelopes.Sign(citizenID, cred, now)
		if err != nil {
			return nil, s.reject(ctx, span, "registration",
				dErrors.Wrap(err, dErrors.CodeInternal, "credential envelope"))
		}
		result.Envelope = envelope
	}

	s.metrics.CeremonyOutcomes.WithLabelValues("registration", "success").Inc()
	s.logger.InfoContext(ctx, "citizen registered",
		"citizen_id", citizenID,
		"store_backed", s.store != nil,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	return result, nil
}

// VerifyLogin runs the authentication ceremony. envelope carries the
// client-held credential and is consulted only when no store is configured.
func (s *Service) VerifyLogin(ctx context.Context, token string, body io.Reader, envelope string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "ceremony.VerifyLogin")
	defer span.End()

	now := s.now()

	if s.store == nil && envelope == "" {
		return nil, s.reject(ctx, span, "login",
			dErrors.New(dErrors.CodeUnavailable, "no identity store configured and no credential supplied"))
	}

	ch, err := s.issuer.Verify(token, now)
	if err != nil {
		return nil, s.reject(ctx, span, "login", err)
	}

	assertion, err := s.verifier.ParseAssertion(body)
	if err != nil {
		return nil, s.reject(ctx, span, "login",
			dErrors.Wrap(err, dErrors.CodeMalformedCeremony, "assertion malformed"))
	}

	citizenID := s.deriver.CitizenID(assertion.CredentialID())
	span.SetAttributes(attribute.String("citizen_id", citizenID))

	cred, err := s.lookupCredential(ctx, citizenID, envelope)
	if err != nil {
		return nil, s.reject(ctx, span, "login", err)
	}

	updated, err := s.verifier.VerifyAssertion(ch, cred, assertion)
	if err != nil {
		return nil, s.reject(ctx, span, "login",
			dErrors.Wrap(err, dErrors.CodeCeremonyRejected, "assertion could not be verified"))
	}

	citizen := s.loadCitizen(ctx, citizenID, now)
	result := &Result{Identity: citizen}

	if s.store != nil {
		// Counter persistence is best-effort: the login already proved
		// device possession.
		if err := s.store.UpdateSignCounter(ctx, citizenID, updated.SignCounter); err != nil {
			s.logger.WarnContext(ctx, "sign counter not persisted",
				"citizen_id", citizenID,
				"error", err,
			)
		}
	} else {
		fresh, err := s.envelopes.Sign(citizenID, updated, now)
		if err != nil {
			return nil, s.reject(ctx, span, "login",
				dErrors.Wrap(err, dErrors.CodeInternal, "credential envelope"))
		}
		result.Envelope = fresh
	}

	s.metrics.CeremonyOutcomes.WithLabelValues("login", "success").Inc()
	s.logger.InfoContext(ctx, "citizen authenticated",
		"citizen_id", citizenID,
		"store_backed", s.store != nil,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	return result, nil
}

// lookupCredential resolves the credential to verify against, per mode.
func (s *Service) lookupCredential(ctx context.Context, citizenID, envelope string) (*identity.StoredCredential, error) {
	if s.store != nil {
		cred, err := s.store.Credential(ctx, citizenID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeCredentialNotFound, "credential not recognized, register first")
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity store unavailable")
		}
		return cred, nil
	}

	envelopeCitizen, cred, err := s.envelopes.Verify(envelope)
	if err != nil {
		return nil, err
	}
	// The envelope must describe the credential that signed this assertion.
	if envelopeCitizen != citizenID {
		return nil, dErrors.New(dErrors.CodeCeremonyRejected, "assertion could not be verified")
	}
	return cred, nil
}

func (s *Service) persistRegistration(ctx context.Context, citizen *identity.CitizenIdentity, cred *identity.StoredCredential) error {
	if err := s.store.PutCitizen(ctx, citizen); err != nil {
		return err
	}
	return s.store.PutCredential(ctx, citizen.CitizenID, cred)
}

// loadCitizen fetches the stored citizen record for login responses,
// falling back to a minimal record when absent or when no store exists.
func (s *Service) loadCitizen(ctx context.Context, citizenID string, now time.Time) *identity.CitizenIdentity {
	citizen := &identity.CitizenIdentity{
		CitizenID:       citizenID,
		AuthenticatedAt: now,
	}
	if s.store == nil {
		return citizen
	}
	stored, err := s.store.Citizen(ctx, citizenID)
	if err != nil {
		return citizen
	}
	stored.AuthenticatedAt = now
	return stored
}

// reject records a failed ceremony uniformly: one metric, one audit-tagged
// log line, the span marked, and the coded error returned unchanged.
func (s *Service) reject(ctx context.Context, span trace.Span, kind string, err error) error {
	code := dErrors.CodeOf(err)
	span.SetAttributes(attribute.String("ceremony.result", string(code)))
	s.metrics.CeremonyOutcomes.WithLabelValues(kind, string(code)).Inc()
	s.logger.InfoContext(ctx, "ceremony rejected",
		"kind", kind,
		"code", code,
		"request_id", requestcontext.RequestID(ctx),
		"device_family", requestcontext.DeviceFamily(ctx),
		"log_type", "audit",
	)
	s.emitter.Emit(ctx, audit.Event{
		Source:    "ceremony",
		Message:   kind + " rejected: " + string(code),
		RequestID: requestcontext.RequestID(ctx),
	})
	return err
}
