package registry

import (
	"context"
	"sync"

	"civitas/internal/identity"
	"civitas/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for tests and single-process
// deployments. All state is lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	citizens    map[string]identity.CitizenIdentity
	credentials map[string]identity.StoredCredential
	grants      map[string]GrantRecord
	ledger      map[string][]LedgerEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		citizens:    make(map[string]identity.CitizenIdentity),
		credentials: make(map[string]identity.StoredCredential),
		grants:      make(map[string]GrantRecord),
		ledger:      make(map[string][]LedgerEntry),
	}
}

func (s *MemoryStore) Status(_ context.Context, citizenID string) (*SessionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.citizens[citizenID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	return &SessionStatus{Active: true}, nil
}

func (s *MemoryStore) Citizen(_ context.Context, citizenID string) (*identity.CitizenIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.citizens[citizenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) PutCitizen(_ context.Context, c *identity.CitizenIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.citizens[c.CitizenID] = *c
	return nil
}

func (s *MemoryStore) Credential(_ context.Context, citizenID string) (*identity.StoredCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[citizenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &cred, nil
}

func (s *MemoryStore) PutCredential(_ context.Context, citizenID string, cred *identity.StoredCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[citizenID] = *cred
	return nil
}

func (s *MemoryStore) UpdateSignCounter(_ context.Context, citizenID string, counter uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[citizenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	cred.SignCounter = counter
	s.credentials[citizenID] = cred
	return nil
}

func (s *MemoryStore) Grant(_ context.Context, grantID string) (*GrantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &g, nil
}

func (s *MemoryStore) PutGrant(_ context.Context, g *GrantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g.GrantID]; ok {
		return sentinel.ErrConflict
	}
	s.grants[g.GrantID] = *g
	return nil
}

func (s *MemoryStore) AppendLedger(_ context.Context, e *LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger[e.CitizenID] = append(s.ledger[e.CitizenID], *e)
	return nil
}

func (s *MemoryStore) Ledger(_ context.Context, citizenID string) ([]LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.ledger[citizenID]
	out := make([]LedgerEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }
