// Package cache implements the client-held credential envelope used when no
// identity store is configured. The registered credential (public key +
// sign counter) is handed back to the client inside a signed JWT; at login
// the client returns it, the signature proves the server minted it, and
// assertion verification proceeds against the enclosed public key.
//
// Possession of the envelope grants nothing by itself: login still requires
// a fresh assertion signed by the device's private key.
package cache

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"civitas/internal/identity"
	dErrors "civitas/pkg/domain-errors"
)

type envelopeClaims struct {
	CredentialID string `json:"cid"`
	PublicKey    string `json:"pk"`
	SignCounter  uint32 `json:"ctr"`
	jwt.RegisteredClaims
}

// Signer mints and verifies credential envelopes.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer. Refuses an empty secret.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, dErrors.New(dErrors.CodeUnavailable, "envelope signing secret not configured")
	}
	return &Signer{secret: secret}, nil
}

// Sign wraps a credential in a signed envelope bound to its citizen ID.
// Envelopes do not expire: the credential is as durable as the device key
// it describes.
func (s *Signer) Sign(citizenID string, cred *identity.StoredCredential, now time.Time) (string, error) {
	claims := envelopeClaims{
		CredentialID: base64.RawURLEncoding.EncodeToString(cred.CredentialID),
		PublicKey:    base64.RawURLEncoding.EncodeToString(cred.PublicKey),
		SignCounter:  cred.SignCounter,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  citizenID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential envelope: %w", err)
	}
	return signed, nil
}

// Verify checks the envelope signature and returns the enclosed credential
// and citizen ID. Any parse or signature failure reads the same to the
// caller: the envelope is rejected.
func (s *Signer) Verify(envelope string) (string, *identity.StoredCredential, error) {
	var claims envelopeClaims
	token, err := jwt.ParseWithClaims(envelope, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", nil, dErrors.New(dErrors.CodeInvalidSignature, "credential envelope rejected")
	}

	credentialID, err := base64.RawURLEncoding.DecodeString(claims.CredentialID)
	if err != nil {
		return "", nil, dErrors.New(dErrors.CodeInvalidSignature, "credential envelope rejected")
	}
	publicKey, err := base64.RawURLEncoding.DecodeString(claims.PublicKey)
	if err != nil {
		return "", nil, dErrors.New(dErrors.CodeInvalidSignature, "credential envelope rejected")
	}
	if claims.Subject == "" || len(credentialID) == 0 || len(publicKey) == 0 {
		return "", nil, dErrors.New(dErrors.CodeInvalidSignature, "credential envelope rejected")
	}

	return claims.Subject, &identity.StoredCredential{
		CredentialID: credentialID,
		PublicKey:    publicKey,
		SignCounter:  claims.SignCounter,
	}, nil
}
