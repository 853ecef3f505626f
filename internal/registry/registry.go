// Package registry is the identity store layer: citizen records, device
// credentials, genesis grants and the credit ledger live behind the Store
// interface. Three adapters exist; which one runs is decided once at
// startup from configuration.
//
// Adapters return pkg/platform/sentinel errors for infrastructure facts
// (ErrNotFound, ErrConflict, ErrUnavailable) so callers can distinguish a
// definitive "record does not exist" from "the store could not answer".
// Heartbeat's fail-open behavior depends on that distinction.
package registry

//go:generate mockgen -destination=mocks/store.go -package=mocks civitas/internal/registry Store

import (
	"context"
	"time"

	"civitas/internal/identity"
)

// GrantRecord is a persisted genesis grant. GrantID is deterministic per
// (citizen, covenant), which makes writes idempotent and collisions a
// conflict rather than a duplicate.
type GrantRecord struct {
	GrantID      string    `json:"grant_id"`
	CitizenID    string    `json:"citizen_id"`
	CovenantHash string    `json:"covenant_hash"`
	Amount       int64     `json:"amount"`
	IssuedAt     time.Time `json:"issued_at"`
	Degraded     bool      `json:"degraded,omitempty"`
}

// LedgerEntry is one append-only credit movement. Balances are derived by
// summing entries, never stored.
type LedgerEntry struct {
	EntryID   string    `json:"entry_id"`
	CitizenID string    `json:"citizen_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStatus is the registry's view of a citizen's session standing,
// consumed by the heartbeat check.
type SessionStatus struct {
	Active           bool       `json:"active"`
	Suspended        bool       `json:"suspended,omitempty"`
	RequiresReauth   bool       `json:"requires_reauth,omitempty"`
	SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
}

// Store is the identity registry adapter contract.
//
// Lookups return sentinel.ErrNotFound when the record definitively does not
// exist. PutGrant returns sentinel.ErrConflict when a grant with the same ID
// already exists.
type Store interface {
	Status(ctx context.Context, citizenID string) (*SessionStatus, error)

	Citizen(ctx context.Context, citizenID string) (*identity.CitizenIdentity, error)
	PutCitizen(ctx context.Context, c *identity.CitizenIdentity) error

	Credential(ctx context.Context, citizenID string) (*identity.StoredCredential, error)
	PutCredential(ctx context.Context, citizenID string, cred *identity.StoredCredential) error
	UpdateSignCounter(ctx context.Context, citizenID string, counter uint32) error

	Grant(ctx context.Context, grantID string) (*GrantRecord, error)
	PutGrant(ctx context.Context, g *GrantRecord) error

	AppendLedger(ctx context.Context, e *LedgerEntry) error
	Ledger(ctx context.Context, citizenID string) ([]LedgerEntry, error)

	Health(ctx context.Context) error
}
