// Package challenge issues and verifies the signed, single-use,
// time-bounded challenges WebAuthn ceremonies must sign over.
//
// The server stores nothing: the whole challenge (random bytes, optional
// ephemeral user handle, expiry, MAC) round-trips through the client as an
// opaque token in a short-lived cookie. Verification recomputes the MAC and
// compares in constant time, so a token is valid only if this process (or a
// peer sharing the secret) minted it and no bit has changed.
package challenge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	dErrors "civitas/pkg/domain-errors"
)

// Kind selects the ceremony a challenge is minted for. Registration
// challenges additionally carry an ephemeral user handle.
type Kind string

const (
	KindRegistration Kind = "registration"
	KindLogin        Kind = "login"
)

const (
	// TTL bounds how long a ceremony may take. WebAuthn prompts resolve in
	// seconds; anything older is replayed or stuck.
	TTL = 30 * time.Second

	challengeLen  = 32
	userHandleLen = 16

	tokenVersion = "v1"
)

var b64 = base64.RawURLEncoding

// Challenge is the verified content of a challenge token.
type Challenge struct {
	Bytes      []byte
	UserHandle []byte // registration only
	ExpiresAt  time.Time
}

// Issuer mints and verifies signed challenge tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer constructs an Issuer. An empty secret is refused: issuing
// unsigned challenges would let anyone forge a ceremony binding.
func NewIssuer(secret []byte) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, dErrors.New(dErrors.CodeUnavailable, "challenge signing secret not configured")
	}
	return &Issuer{secret: secret, ttl: TTL}, nil
}

// Issue generates a fresh challenge and its signed token.
func (i *Issuer) Issue(kind Kind, now time.Time) (*Challenge, string, error) {
	c := &Challenge{
		Bytes:     make([]byte, challengeLen),
		ExpiresAt: now.Add(i.ttl).Truncate(time.Second),
	}
	if _, err := rand.Read(c.Bytes); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "challenge entropy unavailable")
	}
	if kind == KindRegistration {
		c.UserHandle = make([]byte, userHandleLen)
		if _, err := rand.Read(c.UserHandle); err != nil {
			return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "challenge entropy unavailable")
		}
	}

	payload := i.payload(c)
	sig := i.sign(payload)
	token := fmt.Sprintf("%s.%s.%s", tokenVersion, payload, b64.EncodeToString(sig))
	return c, token, nil
}

// Verify checks a token's signature and expiry and returns its content.
// Signature is checked before expiry so a tampered token never learns
// whether its expiry claim would have been accepted.
func (i *Issuer) Verify(token string, now time.Time) (*Challenge, error) {
	parts := strings.Split(token, ".")
	// version + challenge + [userHandle] + expiry + signature
	if len(parts) != 4 && len(parts) != 5 {
		return nil, dErrors.New(dErrors.CodeInvalidSignature, "challenge token rejected")
	}
	if parts[0] != tokenVersion {
		return nil, dErrors.New(dErrors.CodeInvalidSignature, "challenge token rejected")
	}

	payload := strings.Join(parts[1:len(parts)-1], ".")
	sig, err := b64.DecodeString(parts[len(parts)-1])
	if err != nil || !hmac.Equal(sig, i.sign(payload)) {
		return nil, dErrors.New(dErrors.CodeInvalidSignature, "challenge token rejected")
	}

	expiresUnix, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidSignature, "challenge token rejected")
	}
	expiresAt := time.Unix(expiresUnix, 0)
	if now.After(expiresAt) {
		return nil, dErrors.New(dErrors.CodeChallengeExpired, "challenge expired, request a new one")
	}

	c := &Challenge{ExpiresAt: expiresAt}
	if c.Bytes, err = b64.DecodeString(parts[1]); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidSignature, "challenge token rejected")
	}
	if len(parts) == 5 {
		if c.UserHandle, err = b64.DecodeString(parts[2]); err != nil {
			return nil, dErrors.New(dErrors.CodeInvalidSignature, "challenge token rejected")
		}
	}
	return c, nil
}

// payload builds the canonical delimiter-joined signing payload:
// challengeB64 [ "." userHandleB64 ] "." expiresUnix
func (i *Issuer) payload(c *Challenge) string {
	var sb strings.Builder
	sb.WriteString(b64.EncodeToString(c.Bytes))
	if c.UserHandle != nil {
		sb.WriteString(".")
		sb.WriteString(b64.EncodeToString(c.UserHandle))
	}
	sb.WriteString(".")
	sb.WriteString(strconv.FormatInt(c.ExpiresAt.Unix(), 10))
	return sb.String()
}

func (i *Issuer) sign(payload string) []byte {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// ChallengeB64 returns the base64url form the WebAuthn client API and the
// verification library both operate on.
func (c *Challenge) ChallengeB64() string {
	return b64.EncodeToString(c.Bytes)
}

// UserHandleB64 returns the base64url-encoded ephemeral user handle.
func (c *Challenge) UserHandleB64() string {
	return b64.EncodeToString(c.UserHandle)
}
