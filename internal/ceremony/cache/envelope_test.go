package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civitas/internal/identity"
	dErrors "civitas/pkg/domain-errors"
)

func testCredential() *identity.StoredCredential {
	return &identity.StoredCredential{
		CredentialID: []byte("credential-id-bytes"),
		PublicKey:    []byte("cose-public-key-bytes"),
		SignCounter:  7,
	}
}

func TestSigner_RoundTrip(t *testing.T) {
	signer, err := NewSigner([]byte("envelope-secret"))
	require.NoError(t, err)

	citizenID := "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"
	envelope, err := signer.Sign(citizenID, testCredential(), time.Now())
	require.NoError(t, err)

	gotID, got, err := signer.Verify(envelope)
	require.NoError(t, err)
	assert.Equal(t, citizenID, gotID)
	assert.Equal(t, testCredential().CredentialID, got.CredentialID)
	assert.Equal(t, testCredential().PublicKey, got.PublicKey)
	assert.Equal(t, uint32(7), got.SignCounter)
}

func TestSigner_RejectsTampering(t *testing.T) {
	signer, err := NewSigner([]byte("envelope-secret"))
	require.NoError(t, err)

	envelope, err := signer.Sign("a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6", testCredential(), time.Now())
	require.NoError(t, err)

	// Flip one character in the payload segment.
	parts := strings.Split(envelope, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	payload[len(payload)/2] ^= 0x01
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, _, err = signer.Verify(tampered)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidSignature, dErrors.CodeOf(err))
}

func TestSigner_RejectsWrongSecret(t *testing.T) {
	signer, err := NewSigner([]byte("envelope-secret"))
	require.NoError(t, err)
	other, err := NewSigner([]byte("a-different-secret"))
	require.NoError(t, err)

	envelope, err := signer.Sign("a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6", testCredential(), time.Now())
	require.NoError(t, err)

	_, _, err = other.Verify(envelope)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidSignature, dErrors.CodeOf(err))
}

func TestSigner_RejectsGarbage(t *testing.T) {
	signer, err := NewSigner([]byte("envelope-secret"))
	require.NoError(t, err)

	for _, envelope := range []string{"", "not-a-jwt", "a.b.c"} {
		_, _, err := signer.Verify(envelope)
		require.Error(t, err, "envelope %q", envelope)
		assert.Equal(t, dErrors.CodeInvalidSignature, dErrors.CodeOf(err))
	}
}

func TestNewSigner_RequiresSecret(t *testing.T) {
	_, err := NewSigner(nil)
	assert.Error(t, err)
}
