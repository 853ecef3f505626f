package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"civitas/internal/identity"
	"civitas/pkg/platform/sentinel"
)

// PostgresStore is the durable Store backed by PostgreSQL. This is the
// production adapter for server-backed credential mode.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool for the given DSN and verifies
// connectivity.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing pool. Used by tests that manage
// the database lifecycle themselves.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the registry tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS citizens (
			citizen_id            CHAR(32) PRIMARY KEY,
			handle                TEXT,
			authenticated_at      TIMESTAMPTZ NOT NULL,
			onboarded             BOOLEAN NOT NULL DEFAULT FALSE,
			suspended             BOOLEAN NOT NULL DEFAULT FALSE,
			covenant_hash         TEXT,
			covenants_accepted_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS credentials (
			citizen_id    CHAR(32) PRIMARY KEY REFERENCES citizens (citizen_id),
			credential_id BYTEA NOT NULL,
			public_key    BYTEA NOT NULL,
			sign_counter  BIGINT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS genesis_grants (
			grant_id      CHAR(24) PRIMARY KEY,
			citizen_id    CHAR(32) NOT NULL,
			covenant_hash TEXT NOT NULL,
			amount        BIGINT NOT NULL,
			issued_at     TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS credit_ledger (
			entry_id   UUID PRIMARY KEY,
			citizen_id CHAR(32) NOT NULL,
			amount     BIGINT NOT NULL,
			reason     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS credit_ledger_citizen_idx ON credit_ledger (citizen_id, created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure registry schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Status(ctx context.Context, citizenID string) (*SessionStatus, error) {
	const query = `SELECT suspended FROM citizens WHERE citizen_id = $1`
	var suspended bool
	err := s.db.QueryRowContext(ctx, query, citizenID).Scan(&suspended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query citizen status: %w", err)
	}
	return &SessionStatus{Active: !suspended, Suspended: suspended}, nil
}

func (s *PostgresStore) Citizen(ctx context.Context, citizenID string) (*identity.CitizenIdentity, error) {
	const query = `
		SELECT citizen_id, COALESCE(handle, ''), authenticated_at, onboarded,
		       COALESCE(covenant_hash, ''), covenants_accepted_at
		FROM citizens WHERE citizen_id = $1
	`
	var c identity.CitizenIdentity
	err := s.db.QueryRowContext(ctx, query, citizenID).Scan(
		&c.CitizenID, &c.Handle, &c.AuthenticatedAt, &c.Onboarded,
		&c.CovenantHash, &c.CovenantsAcceptedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query citizen: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) PutCitizen(ctx context.Context, c *identity.CitizenIdentity) error {
	const query = `
		INSERT INTO citizens (citizen_id, handle, authenticated_at, onboarded, covenant_hash, covenants_accepted_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (citizen_id) DO UPDATE SET
			handle                = EXCLUDED.handle,
			authenticated_at      = EXCLUDED.authenticated_at,
			onboarded             = EXCLUDED.onboarded,
			covenant_hash         = EXCLUDED.covenant_hash,
			covenants_accepted_at = EXCLUDED.covenants_accepted_at
	`
	_, err := s.db.ExecContext(ctx, query,
		c.CitizenID, c.Handle, c.AuthenticatedAt, c.Onboarded,
		c.CovenantHash, c.CovenantsAcceptedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert citizen: %w", err)
	}
	return nil
}

func (s *PostgresStore) Credential(ctx context.Context, citizenID string) (*identity.StoredCredential, error) {
	const query = `
		SELECT credential_id, public_key, sign_counter
		FROM credentials WHERE citizen_id = $1
	`
	var cred identity.StoredCredential
	err := s.db.QueryRowContext(ctx, query, citizenID).Scan(
		&cred.CredentialID, &cred.PublicKey, &cred.SignCounter,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query credential: %w", err)
	}
	return &cred, nil
}

func (s *PostgresStore) PutCredential(ctx context.Context, citizenID string, cred *identity.StoredCredential) error {
	const query = `
		INSERT INTO credentials (citizen_id, credential_id, public_key, sign_counter)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (citizen_id) DO UPDATE SET
			credential_id = EXCLUDED.credential_id,
			public_key    = EXCLUDED.public_key,
			sign_counter  = EXCLUDED.sign_counter
	`
	_, err := s.db.ExecContext(ctx, query, citizenID, cred.CredentialID, cred.PublicKey, cred.SignCounter)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSignCounter(ctx context.Context, citizenID string, counter uint32) error {
	const query = `UPDATE credentials SET sign_counter = $2 WHERE citizen_id = $1`
	res, err := s.db.ExecContext(ctx, query, citizenID, counter)
	if err != nil {
		return fmt.Errorf("update sign counter: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Grant(ctx context.Context, grantID string) (*GrantRecord, error) {
	const query = `
		SELECT grant_id, citizen_id, covenant_hash, amount, issued_at
		FROM genesis_grants WHERE grant_id = $1
	`
	var g GrantRecord
	err := s.db.QueryRowContext(ctx, query, grantID).Scan(
		&g.GrantID, &g.CitizenID, &g.CovenantHash, &g.Amount, &g.IssuedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query grant: %w", err)
	}
	return &g, nil
}

func (s *PostgresStore) PutGrant(ctx context.Context, g *GrantRecord) error {
	const query = `
		INSERT INTO genesis_grants (grant_id, citizen_id, covenant_hash, amount, issued_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (grant_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, g.GrantID, g.CitizenID, g.CovenantHash, g.Amount, g.IssuedAt)
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) AppendLedger(ctx context.Context, e *LedgerEntry) error {
	const query = `
		INSERT INTO credit_ledger (entry_id, citizen_id, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, e.EntryID, e.CitizenID, e.Amount, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ledger(ctx context.Context, citizenID string) ([]LedgerEntry, error) {
	const query = `
		SELECT entry_id, citizen_id, amount, reason, created_at
		FROM credit_ledger WHERE citizen_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, citizenID)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.EntryID, &e.CitizenID, &e.Amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
