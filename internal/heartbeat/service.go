// Package heartbeat answers "is this session still good". Two modes,
// selected once at startup:
//
// Without a store the answer is always yes for another 24h; client-side TTL
// expiry is the only revocation mechanism, an accepted limitation.
//
// With a store, a definitive "citizen not found" is a hard revoke. Any
// other store failure fails open with degraded:true. Locking every citizen
// out because a dependency blipped is the worse failure mode, so this
// availability-over-strict-revocation tradeoff is load-bearing.
package heartbeat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"civitas/internal/audit"
	"civitas/internal/identity"
	"civitas/internal/platform/metrics"
	"civitas/internal/registry"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/sentinel"
	"civitas/pkg/requestcontext"
)

// sessionTTL is how far each successful heartbeat extends the session.
const sessionTTL = 24 * time.Hour

// Status is the heartbeat response.
type Status struct {
	Valid          bool       `json:"valid"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Degraded       bool       `json:"degraded,omitempty"`
	RequiresReauth bool       `json:"requires_reauth,omitempty"`
	Suspended      bool       `json:"suspended,omitempty"`
}

// Service implements the heartbeat check.
type Service struct {
	store        registry.Store // nil selects session-only mode
	storeTimeout time.Duration
	emitter      *audit.Emitter
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewService wires the heartbeat service. store may be nil.
func NewService(store registry.Store, storeTimeout time.Duration, emitter *audit.Emitter, logger *slog.Logger, met *metrics.Metrics) *Service {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Service{
		store:        store,
		storeTimeout: storeTimeout,
		emitter:      emitter,
		logger:       logger,
		metrics:      met,
		now:          time.Now,
	}
}

// Check validates the session for citizenID.
func (s *Service) Check(ctx context.Context, citizenID string) (*Status, error) {
	if !identity.ValidCitizenID(citizenID) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "citizen id must be 32 lowercase hex characters")
	}

	now := s.now()
	expiresAt := now.Add(sessionTTL)

	if s.store == nil {
		s.metrics.HeartbeatOutcomes.WithLabelValues("valid").Inc()
		return &Status{Valid: true, ExpiresAt: &expiresAt}, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	status, err := s.store.Status(storeCtx, citizenID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// The only hard revoke: the registry definitively does not know
		// this citizen.
		s.metrics.HeartbeatOutcomes.WithLabelValues("revoked").Inc()
		s.logger.InfoContext(ctx, "session revoked",
			"citizen_id", citizenID,
			"request_id", requestcontext.RequestID(ctx),
			"log_type", "audit",
		)
		return &Status{Valid: false}, nil

	case err != nil:
		s.metrics.HeartbeatOutcomes.WithLabelValues("degraded").Inc()
		s.logger.WarnContext(ctx, "heartbeat degraded, failing open",
			"citizen_id", citizenID,
			"error", err,
		)
		s.emitter.Emit(ctx, audit.Event{
			Source:    "heartbeat",
			Message:   "status check degraded",
			CitizenID: citizenID,
			RequestID: requestcontext.RequestID(ctx),
		})
		return &Status{Valid: true, ExpiresAt: &expiresAt, Degraded: true}, nil
	}

	if status.SessionExpiresAt != nil {
		expiresAt = *status.SessionExpiresAt
	}
	s.metrics.HeartbeatOutcomes.WithLabelValues("valid").Inc()
	return &Status{
		Valid:          true,
		ExpiresAt:      &expiresAt,
		RequiresReauth: status.RequiresReauth,
		Suspended:      status.Suspended,
	}, nil
}
