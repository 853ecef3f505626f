package grant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"civitas/internal/audit"
	"civitas/internal/identity"
	"civitas/internal/platform/metrics"
	"civitas/internal/registry"
	"civitas/internal/registry/mocks"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/sentinel"
)

var testMetrics = metrics.New()

const (
	citizenID    = "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"
	covenantHash = "covenant-v1"
)

func newService(t *testing.T, store registry.Store) *Service {
	t.Helper()
	deriver, err := identity.NewDeriver([]byte("test-pepper"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(deriver, store, audit.NewEmitter(nil, logger, testMetrics), logger, testMetrics, 100)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestIssue_Validation(t *testing.T) {
	svc := newService(t, registry.NewMemoryStore())

	_, err := svc.Issue(context.Background(), Request{CitizenID: "nope", CovenantHash: covenantHash})
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))

	_, err = svc.Issue(context.Background(), Request{CitizenID: citizenID})
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

func TestIssue_PersistsAndCredits(t *testing.T) {
	store := registry.NewMemoryStore()
	svc := newService(t, store)
	ctx := context.Background()

	result, err := svc.Issue(ctx, Request{CitizenID: citizenID, CovenantHash: covenantHash, Handle: "ada"})
	require.NoError(t, err)
	assert.False(t, result.AlreadyExists)
	assert.False(t, result.Record.Degraded)
	assert.Len(t, result.Record.GrantID, identity.GrantIDLen)
	assert.Equal(t, int64(100), result.Record.Amount)

	// The grant, ledger credit, and covenant acceptance are all persisted.
	stored, err := store.Grant(ctx, result.Record.GrantID)
	require.NoError(t, err)
	assert.Equal(t, citizenID, stored.CitizenID)

	wallet, err := svc.WalletFor(ctx, citizenID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), wallet.Balance)
	require.Len(t, wallet.Entries, 1)
	assert.Equal(t, "genesis_grant", wallet.Entries[0].Reason)

	citizen, err := store.Citizen(ctx, citizenID)
	require.NoError(t, err)
	assert.True(t, citizen.Onboarded)
	assert.Equal(t, "ada", citizen.Handle)
	assert.Equal(t, covenantHash, citizen.CovenantHash)
	require.NotNil(t, citizen.CovenantsAcceptedAt)
}

func TestIssue_ReplayReturnsOriginalRecord(t *testing.T) {
	store := registry.NewMemoryStore()
	svc := newService(t, store)
	ctx := context.Background()

	first, err := svc.Issue(ctx, Request{CitizenID: citizenID, CovenantHash: covenantHash})
	require.NoError(t, err)

	second, err := svc.Issue(ctx, Request{CitizenID: citizenID, CovenantHash: covenantHash})
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.Record.GrantID, second.Record.GrantID)

	// No double credit.
	wallet, err := svc.WalletFor(ctx, citizenID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), wallet.Balance)
}

func TestIssue_DeterministicGrantID(t *testing.T) {
	svc := newService(t, registry.NewMemoryStore())
	other := newService(t, registry.NewMemoryStore())
	ctx := context.Background()

	a, err := svc.Issue(ctx, Request{CitizenID: citizenID, CovenantHash: covenantHash})
	require.NoError(t, err)
	b, err := other.Issue(ctx, Request{CitizenID: citizenID, CovenantHash: covenantHash})
	require.NoError(t, err)
	assert.Equal(t, a.Record.GrantID, b.Record.GrantID, "grant id is a pure function of its inputs")
}

func TestIssue_DegradedWhenStoreAbsent(t *testing.T) {
	svc := newService(t, nil)

	result, err := svc.Issue(context.Background(), Request{CitizenID: citizenID, CovenantHash: covenantHash})
	require.NoError(t, err)
	assert.True(t, result.Record.Degraded)
	assert.False(t, result.AlreadyExists)
	assert.Equal(t, int64(100), result.Record.Amount)
}

func TestIssue_DegradedOnPersistFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Grant(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
	store.EXPECT().PutGrant(gomock.Any(), gomock.Any()).Return(errors.New("write timeout"))

	result, err := newService(t, store).Issue(context.Background(),
		Request{CitizenID: citizenID, CovenantHash: covenantHash})
	require.NoError(t, err, "persistence failure must not fail the grant")
	assert.True(t, result.Record.Degraded)
}

func TestIssue_ConflictRaceReturnsStoredRecord(t *testing.T) {
	stored := &registry.GrantRecord{
		GrantID:      "abcdef0123456789abcdef01",
		CitizenID:    citizenID,
		CovenantHash: covenantHash,
		Amount:       100,
		IssuedAt:     time.Now(),
	}

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	gomock.InOrder(
		store.EXPECT().Grant(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound),
		store.EXPECT().PutGrant(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict),
		store.EXPECT().Grant(gomock.Any(), gomock.Any()).Return(stored, nil),
	)

	result, err := newService(t, store).Issue(context.Background(),
		Request{CitizenID: citizenID, CovenantHash: covenantHash})
	require.NoError(t, err)
	assert.True(t, result.AlreadyExists)
	assert.Equal(t, stored.GrantID, result.Record.GrantID)
}

func TestWalletFor(t *testing.T) {
	t.Run("requires a store", func(t *testing.T) {
		_, err := newService(t, nil).WalletFor(context.Background(), citizenID)
		assert.Equal(t, dErrors.CodeUnavailable, dErrors.CodeOf(err))
	})

	t.Run("rejects malformed id", func(t *testing.T) {
		_, err := newService(t, registry.NewMemoryStore()).WalletFor(context.Background(), "bogus")
		assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})

	t.Run("empty ledger is a zero balance", func(t *testing.T) {
		wallet, err := newService(t, registry.NewMemoryStore()).WalletFor(context.Background(), citizenID)
		require.NoError(t, err)
		assert.Zero(t, wallet.Balance)
		assert.NotNil(t, wallet.Entries)
	})

	t.Run("balance sums entries", func(t *testing.T) {
		store := registry.NewMemoryStore()
		ctx := context.Background()
		for _, amount := range []int64{100, -30, 15} {
			require.NoError(t, store.AppendLedger(ctx, &registry.LedgerEntry{
				EntryID: "e", CitizenID: citizenID, Amount: amount, Reason: "test", CreatedAt: time.Now(),
			}))
		}
		wallet, err := newService(t, store).WalletFor(ctx, citizenID)
		require.NoError(t, err)
		assert.Equal(t, int64(85), wallet.Balance)
		assert.Equal(t, int64(115), wallet.TotalEarned)
	})
}
