package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bitcurrency-bot/internal/config"
)

const (
	createKVTableSQL = `CREATE TABLE IF NOT EXISTS kv_entries (
        key        TEXT PRIMARY KEY,
        value      TEXT NOT NULL,
        expires_at TIMESTAMPTZ
    );`

	getKVSQL = `SELECT value FROM kv_entries
    WHERE key = $1 AND (expires_at IS NULL OR expires_at > now());`

	getKVForUpdateSQL = `SELECT value, (expires_at IS NULL OR expires_at > now()) AS live
    FROM kv_entries WHERE key = $1 FOR UPDATE;`

	upsertKVSQL = `INSERT INTO kv_entries (key, value, expires_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (key) DO UPDATE
    SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at;`

	scanKVSQL = `SELECT key FROM kv_entries
    WHERE key LIKE $1 || '%' AND (expires_at IS NULL OR expires_at > now())
    ORDER BY key;`

	deleteKVSQL = `DELETE FROM kv_entries WHERE key = $1;`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// PostgresStore implements KV on a shared PostgreSQL table, for deployments
// where several bot instances must see the same quota and alert state.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createKVTableSQL); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func expiry(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return time.Now().UTC().Add(ttl)
}

// Get returns the value stored at key, honouring expiry.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}
	var value string
	if err := pool.QueryRow(ctx, getKVSQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, nil
}

// Set upserts value with an optional TTL.
func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, upsertKVSQL, key, value, expiry(ttl)); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

// Update applies fn under a row lock so concurrent writers of the same key
// serialize instead of clobbering each other.
func (s *PostgresStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("kv update begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		current string
		live    bool
		found   bool
	)
	err = tx.QueryRow(ctx, getKVForUpdateSQL, key).Scan(&current, &live)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return "", fmt.Errorf("kv update read %q: %w", key, err)
	default:
		found = live
		if !live {
			current = ""
		}
	}

	next, err := fn(current, found)
	if err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return "", ErrSkipUpdate
		}
		return "", err
	}

	if _, err := tx.Exec(ctx, upsertKVSQL, key, next, expiry(ttl)); err != nil {
		return "", fmt.Errorf("kv update write %q: %w", key, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("kv update commit %q: %w", key, err)
	}
	return next, nil
}

// Scan lists live keys with the given prefix.
func (s *PostgresStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, scanKVSQL, prefix)
	if err != nil {
		return nil, fmt.Errorf("kv scan %q: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return keys, nil
}

// Delete removes a key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, deleteKVSQL, key); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

var _ KV = (*PostgresStore)(nil)
