// Package grant issues the one-time genesis credit a citizen receives on
// accepting the covenants, and serves the derived wallet view.
//
// Issuance is idempotent by construction: the grant ID is a pure function
// of (citizenId, covenantHash), so a retry computes the same ID and hits
// the existing record instead of double-granting. When the store cannot
// persist the grant, the citizen still gets the computed record back,
// flagged degraded, and an audit event marks it for later reconciliation.
package grant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"civitas/internal/audit"
	"civitas/internal/identity"
	"civitas/internal/platform/metrics"
	"civitas/internal/registry"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/sentinel"
	"civitas/pkg/requestcontext"
)

// Request is one genesis grant claim.
type Request struct {
	CitizenID    string `json:"citizen_id"`
	CovenantHash string `json:"covenant_hash"`
	Handle       string `json:"handle,omitempty"`
}

// IssueResult is the outcome of an issuance attempt. AlreadyExists marks a
// replay: the record is the previously issued grant.
type IssueResult struct {
	Record        *registry.GrantRecord
	AlreadyExists bool
}

// Wallet is the derived credit view: balance and total earned are summed
// from ledger entries, never stored.
type Wallet struct {
	CitizenID   string                 `json:"citizen_id"`
	Balance     int64                  `json:"balance"`
	TotalEarned int64                  `json:"total_earned"`
	Entries     []registry.LedgerEntry `json:"entries"`
}

// Service implements genesis grant issuance and the wallet view.
type Service struct {
	deriver *identity.Deriver
	store   registry.Store // nil means every grant is degraded
	emitter *audit.Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics
	amount  int64
	now     func() time.Time
}

// NewService wires the grant service. store may be nil.
func NewService(deriver *identity.Deriver, store registry.Store, emitter *audit.Emitter, logger *slog.Logger, met *metrics.Metrics, amount int64) *Service {
	if amount <= 0 {
		amount = 100
	}
	return &Service{
		deriver: deriver,
		store:   store,
		emitter: emitter,
		logger:  logger,
		metrics: met,
		amount:  amount,
		now:     time.Now,
	}
}

// Issue grants the genesis credit for req, at most once per
// (citizen, covenant).
func (s *Service) Issue(ctx context.Context, req Request) (*IssueResult, error) {
	if !identity.ValidCitizenID(req.CitizenID) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "citizen id must be 32 lowercase hex characters")
	}
	if req.CovenantHash == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "covenant_hash is required")
	}

	now := s.now()
	record := &registry.GrantRecord{
		GrantID:      s.deriver.GrantID(req.CitizenID, req.CovenantHash),
		CitizenID:    req.CitizenID,
		CovenantHash: req.CovenantHash,
		Amount:       s.amount,
		IssuedAt:     now,
	}

	if s.store == nil {
		return s.degraded(ctx, record, "no identity store configured"), nil
	}

	// Lookup before persist: a replayed claim returns the original record.
	existing, err := s.store.Grant(ctx, record.GrantID)
	if err == nil {
		s.metrics.GrantOutcomes.WithLabelValues("replay").Inc()
		return &IssueResult{Record: existing, AlreadyExists: true}, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return s.degraded(ctx, record, fmt.Sprintf("grant lookup failed: %v", err)), nil
	}

	if err := s.store.PutGrant(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent claim; the stored record wins.
			if existing, lookupErr := s.store.Grant(ctx, record.GrantID); lookupErr == nil {
				record = existing
			}
			s.metrics.GrantOutcomes.WithLabelValues("replay").Inc()
			return &IssueResult{Record: record, AlreadyExists: true}, nil
		}
		return s.degraded(ctx, record, fmt.Sprintf("grant persistence failed: %v", err)), nil
	}

	s.credit(ctx, record)
	s.acceptCovenants(ctx, req, now)

	s.metrics.GrantOutcomes.WithLabelValues("issued").Inc()
	s.logger.InfoContext(ctx, "genesis grant issued",
		"citizen_id", req.CitizenID,
		"grant_id", record.GrantID,
		"amount", record.Amount,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	return &IssueResult{Record: record}, nil
}

// WalletFor returns the derived credit view for a citizen.
func (s *Service) WalletFor(ctx context.Context, citizenID string) (*Wallet, error) {
	if !identity.ValidCitizenID(citizenID) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "citizen id must be 32 lowercase hex characters")
	}
	if s.store == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "wallet requires a configured identity store")
	}

	entries, err := s.store.Ledger(ctx, citizenID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger unavailable")
	}

	wallet := &Wallet{CitizenID: citizenID, Entries: entries}
	if wallet.Entries == nil {
		wallet.Entries = []registry.LedgerEntry{}
	}
	for _, e := range entries {
		wallet.Balance += e.Amount
		if e.Amount > 0 {
			wallet.TotalEarned += e.Amount
		}
	}
	return wallet, nil
}

// degraded returns the computed record unpersisted. The citizen sees their
// credit; reconciliation happens externally off the audit trail.
func (s *Service) degraded(ctx context.Context, record *registry.GrantRecord, reason string) *IssueResult {
	record.Degraded = true
	s.metrics.GrantOutcomes.WithLabelValues("degraded").Inc()
	s.logger.WarnContext(ctx, "genesis grant degraded",
		"citizen_id", record.CitizenID,
		"grant_id", record.GrantID,
		"reason", reason,
	)
	// Bounded, best-effort: delivery failure must not fail the grant.
	s.emitter.Emit(ctx, audit.Event{
		Source:    "grant",
		Message:   "degraded genesis grant: " + reason,
		CitizenID: record.CitizenID,
		RequestID: requestcontext.RequestID(ctx),
	})
	return &IssueResult{Record: record}
}

// credit appends the grant to the ledger. Best-effort: the grant record is
// already durable, a missed ledger row only understates the balance.
func (s *Service) credit(ctx context.Context, record *registry.GrantRecord) {
	err := s.store.AppendLedger(ctx, &registry.LedgerEntry{
		EntryID:   uuid.NewString(),
		CitizenID: record.CitizenID,
		Amount:    record.Amount,
		Reason:    "genesis_grant",
		CreatedAt: record.IssuedAt,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "ledger credit not recorded",
			"citizen_id", record.CitizenID,
			"grant_id", record.GrantID,
			"error", err,
		)
	}
}

// acceptCovenants stamps the citizen record with the accepted covenant
// revision and optional handle. Best-effort.
func (s *Service) acceptCovenants(ctx context.Context, req Request, now time.Time) {
	citizen, err := s.store.Citizen(ctx, req.CitizenID)
	if err != nil {
		citizen = &identity.CitizenIdentity{
			CitizenID:       req.CitizenID,
			AuthenticatedAt: now,
		}
	}
	citizen.CovenantHash = req.CovenantHash
	citizen.CovenantsAcceptedAt = &now
	citizen.Onboarded = true
	if req.Handle != "" {
		citizen.Handle = req.Handle
	}
	if err := s.store.PutCitizen(ctx, citizen); err != nil {
		s.logger.WarnContext(ctx, "covenant acceptance not recorded",
			"citizen_id", req.CitizenID,
			"error", err,
		)
	}
}
