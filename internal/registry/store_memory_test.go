package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civitas/internal/identity"
	"civitas/pkg/platform/sentinel"
)

func TestMemoryStore_Citizens(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Citizen(ctx, "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	citizen := &identity.CitizenIdentity{
		CitizenID:       "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6",
		AuthenticatedAt: time.Now(),
	}
	require.NoError(t, store.PutCitizen(ctx, citizen))

	got, err := store.Citizen(ctx, citizen.CitizenID)
	require.NoError(t, err)
	assert.Equal(t, citizen.CitizenID, got.CitizenID)

	// Returned record is a copy; mutating it must not touch the store.
	got.Onboarded = true
	again, err := store.Citizen(ctx, citizen.CitizenID)
	require.NoError(t, err)
	assert.False(t, again.Onboarded)
}

func TestMemoryStore_Credentials(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	citizenID := "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"

	_, err := store.Credential(ctx, citizenID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	err = store.UpdateSignCounter(ctx, citizenID, 5)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	cred := &identity.StoredCredential{
		CredentialID: []byte("cred-id"),
		PublicKey:    []byte("public-key"),
		SignCounter:  1,
	}
	require.NoError(t, store.PutCredential(ctx, citizenID, cred))
	require.NoError(t, store.UpdateSignCounter(ctx, citizenID, 7))

	got, err := store.Credential(ctx, citizenID)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), got.SignCounter)
	assert.Equal(t, cred.CredentialID, got.CredentialID)
}

func TestMemoryStore_GrantIdempotence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	grant := &GrantRecord{
		GrantID:      "abcdef0123456789abcdef01",
		CitizenID:    "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6",
		CovenantHash: "hash",
		Amount:       100,
		IssuedAt:     time.Now(),
	}
	require.NoError(t, store.PutGrant(ctx, grant))

	err := store.PutGrant(ctx, grant)
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	got, err := store.Grant(ctx, grant.GrantID)
	require.NoError(t, err)
	assert.Equal(t, grant.Amount, got.Amount)
}

func TestMemoryStore_Ledger(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	citizenID := "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"

	entries, err := store.Ledger(ctx, citizenID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	for i, amount := range []int64{100, -30, 15} {
		require.NoError(t, store.AppendLedger(ctx, &LedgerEntry{
			EntryID:   string(rune('a' + i)),
			CitizenID: citizenID,
			Amount:    amount,
			Reason:    "test",
			CreatedAt: time.Now(),
		}))
	}

	entries, err = store.Ledger(ctx, citizenID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(100), entries[0].Amount)
	assert.Equal(t, int64(15), entries[2].Amount)
}
