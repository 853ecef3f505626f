package registry

import (
	"context"
	"time"

	"civitas/internal/identity"
	"civitas/internal/platform/metrics"
)

// InstrumentedStore wraps a Store and records per-operation latency.
type InstrumentedStore struct {
	next Store
	m    *metrics.Metrics
}

// WithMetrics decorates a Store with latency instrumentation.
func WithMetrics(next Store, m *metrics.Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, m: m}
}

func (s *InstrumentedStore) observe(op string, start time.Time) {
	s.m.StoreCallDuration.WithLabelValues(op).
		Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

func (s *InstrumentedStore) Status(ctx context.Context, citizenID string) (*SessionStatus, error) {
	defer s.observe("status_get", time.Now())
	return s.next.Status(ctx, citizenID)
}

func (s *InstrumentedStore) Citizen(ctx context.Context, citizenID string) (*identity.CitizenIdentity, error) {
	defer s.observe("citizen_get", time.Now())
	return s.next.Citizen(ctx, citizenID)
}

func (s *InstrumentedStore) PutCitizen(ctx context.Context, c *identity.CitizenIdentity) error {
	defer s.observe("citizen_put", time.Now())
	return s.next.PutCitizen(ctx, c)
}

func (s *InstrumentedStore) Credential(ctx context.Context, citizenID string) (*identity.StoredCredential, error) {
	defer s.observe("credential_get", time.Now())
	return s.next.Credential(ctx, citizenID)
}

func (s *InstrumentedStore) PutCredential(ctx context.Context, citizenID string, cred *identity.StoredCredential) error {
	defer s.observe("credential_put", time.Now())
	return s.next.PutCredential(ctx, citizenID, cred)
}

func (s *InstrumentedStore) UpdateSignCounter(ctx context.Context, citizenID string, counter uint32) error {
	defer s.observe("sign_counter_update", time.Now())
	return s.next.UpdateSignCounter(ctx, citizenID, counter)
}

func (s *InstrumentedStore) Grant(ctx context.Context, grantID string) (*GrantRecord, error) {
	defer s.observe("grant_get", time.Now())
	return s.next.Grant(ctx, grantID)
}

func (s *InstrumentedStore) PutGrant(ctx context.Context, g *GrantRecord) error {
	defer s.observe("grant_put", time.Now())
	return s.next.PutGrant(ctx, g)
}

func (s *InstrumentedStore) AppendLedger(ctx context.Context, e *LedgerEntry) error {
	defer s.observe("ledger_append", time.Now())
	return s.next.AppendLedger(ctx, e)
}

func (s *InstrumentedStore) Ledger(ctx context.Context, citizenID string) ([]LedgerEntry, error) {
	defer s.observe("ledger_get", time.Now())
	return s.next.Ledger(ctx, citizenID)
}

func (s *InstrumentedStore) Health(ctx context.Context) error {
	defer s.observe("health", time.Now())
	return s.next.Health(ctx)
}
