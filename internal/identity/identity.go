// Package identity derives stable pseudonymous citizen identifiers from
// device credentials and defines the identity records the rest of the
// service passes around.
package identity

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"

	dErrors "civitas/pkg/domain-errors"
)

// CitizenIDLen is the fixed length of a citizen identifier: 32 lowercase
// hex characters (128 bits of the keyed hash).
const CitizenIDLen = 32

// CitizenIdentity is the identity record returned after a successful
// ceremony. CitizenID is derived once per credential and never regenerated;
// Handle and Onboarded are the only fields the onboarding flow may mutate.
type CitizenIdentity struct {
	CitizenID           string     `json:"citizen_id"`
	Handle              string     `json:"handle,omitempty"`
	AuthenticatedAt     time.Time  `json:"authenticated_at"`
	Onboarded           bool       `json:"onboarded"`
	CovenantHash        string     `json:"covenant_hash,omitempty"`
	CovenantsAcceptedAt *time.Time `json:"covenants_accepted_at,omitempty"`
}

// StoredCredential is the server-side (or, in cache mode, client-held)
// record of a registered device credential.
type StoredCredential struct {
	CredentialID []byte `json:"credential_id"`
	PublicKey    []byte `json:"public_key"`
	SignCounter  uint32 `json:"sign_counter"`
}

// Deriver computes citizen IDs. The pepper is a server secret distinct from
// the challenge-signing secret: without it, a credential ID cannot be
// correlated to a citizen ID even with rainbow tables.
type Deriver struct {
	pepper []byte
}

// NewDeriver constructs a Deriver. An absent pepper is refused rather than
// falling back to a discoverable default.
func NewDeriver(pepper []byte) (*Deriver, error) {
	if len(pepper) == 0 {
		return nil, dErrors.New(dErrors.CodeUnavailable, "identity pepper not configured")
	}
	if len(pepper) > 64 {
		// BLAKE2b keys cap at 64 bytes; fold longer secrets down.
		sum := blake2b.Sum256(pepper)
		pepper = sum[:]
	}
	return &Deriver{pepper: pepper}, nil
}

// CitizenID maps a credential ID to its citizen ID: the first 32 hex
// characters of a keyed BLAKE2b-256 over the credential ID. Deterministic
// and one-way; same credential, same citizen, always.
func (d *Deriver) CitizenID(credentialID []byte) string {
	h, err := blake2b.New256(d.pepper)
	if err != nil {
		// Key length is validated in NewDeriver; New256 cannot fail here.
		panic(err)
	}
	h.Write(credentialID)
	return hex.EncodeToString(h.Sum(nil))[:CitizenIDLen]
}

// GrantIDLen is the fixed length of a genesis grant identifier.
const GrantIDLen = 24

// GrantID derives the deterministic genesis grant ID for a citizen and
// covenant revision. Same inputs, same grant ID: issuance is idempotent by
// construction rather than by coordination.
func (d *Deriver) GrantID(citizenID, covenantHash string) string {
	h, err := blake2b.New256(d.pepper)
	if err != nil {
		panic(err)
	}
	h.Write([]byte("genesis:" + citizenID + ":" + covenantHash))
	return hex.EncodeToString(h.Sum(nil))[:GrantIDLen]
}

// ValidCitizenID reports whether s is a well-formed citizen ID:
// exactly 32 lowercase hexadecimal characters.
func ValidCitizenID(s string) bool {
	if len(s) != CitizenIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
