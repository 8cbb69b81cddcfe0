package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/birbparty/roost/sdk"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS roost_sessions (
	namespace  TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	expires_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const (
	loadSQL = `SELECT payload FROM roost_sessions WHERE namespace = $1`
	saveSQL = `
INSERT INTO roost_sessions (namespace, payload, expires_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (namespace) DO UPDATE
SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`
	clearSQL = `DELETE FROM roost_sessions WHERE namespace = $1`
)

// PostgresStore keeps sessions in the roost_sessions table, one row per
// namespace
type PostgresStore struct {
	pool      *pgxpool.Pool
	namespace string
	now       func() time.Time
	owned     bool
}

// NewPostgresStore opens a pool and checks the connection. Call
// EnsureSchema before first use on a fresh database.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewPostgresStoreWithPool(pool, cfg.Namespace)
	store.owned = true
	return store, nil
}

// NewPostgresStoreWithPool uses an existing pool; Close leaves it open
func NewPostgresStoreWithPool(pool *pgxpool.Pool, namespace string) *PostgresStore {
	return &PostgresStore{
		pool:      pool,
		namespace: namespaceOrDefault(namespace),
		now:       time.Now,
	}
}

// EnsureSchema creates the roost_sessions table if needed
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return NewStoreError("failed to create session table", false).WithError(err)
	}
	return nil
}

// Load returns the session of the store's namespace or nil
func (p *PostgresStore) Load(ctx context.Context) (*sdk.Session, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx, loadSQL, p.namespace).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStoreError("failed to load session", true).WithError(err)
	}
	return decode(payload)
}

// Save upserts session; nil clears it
func (p *PostgresStore) Save(ctx context.Context, session *sdk.Session) error {
	if session == nil {
		return p.Clear(ctx)
	}
	data, err := encode(session)
	if err != nil {
		return err
	}

	now := p.now().UTC()
	var expiresAt *time.Time
	if left := ttl(session, now); left > 0 {
		t := now.Add(left)
		expiresAt = &t
	}

	if _, err := p.pool.Exec(ctx, saveSQL, p.namespace, data, expiresAt, now); err != nil {
		return NewStoreError("failed to save session", true).WithError(err)
	}
	return nil
}

// Clear deletes the namespace row
func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, clearSQL, p.namespace); err != nil {
		return NewStoreError("failed to clear session", true).WithError(err)
	}
	return nil
}

// Close closes the pool when the store opened it
func (p *PostgresStore) Close() {
	if p.owned {
		p.pool.Close()
	}
}
