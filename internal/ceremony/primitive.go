package ceremony

import (
	"fmt"
	"io"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"civitas/internal/challenge"
	"civitas/internal/identity"
)

// Registration is a parsed, structurally valid credential creation response.
type Registration interface {
	CredentialID() []byte
}

// Assertion is a parsed, structurally valid authentication response.
type Assertion interface {
	CredentialID() []byte
	UserHandle() []byte
}

// Verifier is the cryptographic WebAuthn primitive. Parsing and
// verification are split because login needs the credential ID before it
// can fetch the credential to verify against.
type Verifier interface {
	ParseRegistration(body io.Reader) (Registration, error)
	VerifyRegistration(ch *challenge.Challenge, reg Registration) (*identity.StoredCredential, error)
	ParseAssertion(body io.Reader) (Assertion, error)
	VerifyAssertion(ch *challenge.Challenge, cred *identity.StoredCredential, a Assertion) (*identity.StoredCredential, error)
}

// RelyingParty scopes ceremonies to this deployment.
type RelyingParty struct {
	ID     string
	Name   string
	Origin string
}

// webauthnVerifier implements Verifier on go-webauthn.
type webauthnVerifier struct {
	wa *webauthn.WebAuthn
}

// NewWebAuthnVerifier builds the production Verifier.
func NewWebAuthnVerifier(rp RelyingParty) (Verifier, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          rp.ID,
		RPDisplayName: rp.Name,
		RPOrigins:     []string{rp.Origin},
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &webauthnVerifier{wa: wa}, nil
}

type parsedRegistration struct {
	data *protocol.ParsedCredentialCreationData
}

func (p parsedRegistration) CredentialID() []byte { return p.data.RawID }

type parsedAssertion struct {
	data *protocol.ParsedCredentialAssertionData
}

func (p parsedAssertion) CredentialID() []byte { return p.data.RawID }
func (p parsedAssertion) UserHandle() []byte   { return p.data.Response.UserHandle }

func (v *webauthnVerifier) ParseRegistration(body io.Reader) (Registration, error) {
	data, err := protocol.ParseCredentialCreationResponseBody(body)
	if err != nil {
		return nil, err
	}
	if len(data.RawID) == 0 {
		return nil, fmt.Errorf("registration response missing credential id")
	}
	return parsedRegistration{data: data}, nil
}

func (v *webauthnVerifier) VerifyRegistration(ch *challenge.Challenge, reg Registration) (*identity.StoredCredential, error) {
	parsed, ok := reg.(parsedRegistration)
	if !ok {
		return nil, fmt.Errorf("registration was not parsed by this verifier")
	}

	session := webauthn.SessionData{
		Challenge: ch.ChallengeB64(),
		UserID:    ch.UserHandle,
		Expires:   ch.ExpiresAt,
	}
	cred, err := v.wa.CreateCredential(ceremonyUser{id: ch.UserHandle}, session, parsed.data)
	if err != nil {
		return nil, err
	}

	return &identity.StoredCredential{
		CredentialID: cred.ID,
		PublicKey:    cred.PublicKey,
		SignCounter:  cred.Authenticator.SignCount,
	}, nil
}

func (v *webauthnVerifier) ParseAssertion(body io.Reader) (Assertion, error) {
	data, err := protocol.ParseCredentialRequestResponseBody(body)
	if err != nil {
		return nil, err
	}
	if len(data.RawID) == 0 {
		return nil, fmt.Errorf("assertion missing credential id")
	}
	return parsedAssertion{data: data}, nil
}

func (v *webauthnVerifier) VerifyAssertion(ch *challenge.Challenge, cred *identity.StoredCredential, a Assertion) (*identity.StoredCredential, error) {
	parsed, ok := a.(parsedAssertion)
	if !ok {
		return nil, fmt.Errorf("assertion was not parsed by this verifier")
	}

	// Identity is derived from the credential, not the user handle, so the
	// handle check is satisfied by construction; challenge, origin, RP ID
	// and signature checks all remain with the library.
	userHandle := parsed.data.Response.UserHandle
	session := webauthn.SessionData{
		Challenge: ch.ChallengeB64(),
		UserID:    userHandle,
		Expires:   ch.ExpiresAt,
	}
	user := ceremonyUser{
		id: userHandle,
		credentials: []webauthn.Credential{{
			ID:        cred.CredentialID,
			PublicKey: cred.PublicKey,
			Authenticator: webauthn.Authenticator{
				SignCount: cred.SignCounter,
			},
		}},
	}

	validated, err := v.wa.ValidateLogin(user, session, parsed.data)
	if err != nil {
		return nil, err
	}
	if validated.Authenticator.CloneWarning {
		return nil, fmt.Errorf("sign counter regressed, possible cloned authenticator")
	}

	return &identity.StoredCredential{
		CredentialID: validated.ID,
		PublicKey:    validated.PublicKey,
		SignCounter:  validated.Authenticator.SignCount,
	}, nil
}

// ceremonyUser adapts our credential model to the webauthn.User interface.
// Names are never displayed anywhere; the citizen ID is pseudonymous by
// design.
type ceremonyUser struct {
	id          []byte
	credentials []webauthn.Credential
}

func (u ceremonyUser) WebAuthnID() []byte                         { return u.id }
func (u ceremonyUser) WebAuthnName() string                       { return "citizen" }
func (u ceremonyUser) WebAuthnDisplayName() string                { return "citizen" }
func (u ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

var _ Verifier = (*webauthnVerifier)(nil)
