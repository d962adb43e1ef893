package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS crewclock_kv (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const postgresUpsert = `
INSERT INTO crewclock_kv (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

// Postgres is a Store backed by a single PostgreSQL table.
type Postgres struct {
	pool *pgxpool.Pool

	mu       sync.Mutex
	migrated bool
}

// OpenPostgres creates a pool for dsn. The pool connects on first use, so a
// database that is down at startup surfaces as operation errors, not here.
// The table is created by the first operation that reaches the database.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// migrate creates the table once. A failed attempt is retried on the next call.
func (p *Postgres) migrate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.migrated {
		return nil
	}
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	p.migrated = true
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := p.migrate(ctx); err != nil {
		return nil, false, err
	}
	var value []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM crewclock_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	if err := p.migrate(ctx); err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, postgresUpsert, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Write(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	if err := p.migrate(ctx); err != nil {
		return err
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, op := range b.Ops() {
		if op.Delete {
			if _, err := tx.Exec(ctx, `DELETE FROM crewclock_kv WHERE key = $1`, op.Key); err != nil {
				return fmt.Errorf("delete %s: %w", op.Key, err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, postgresUpsert, op.Key, op.Value); err != nil {
			return fmt.Errorf("set %s: %w", op.Key, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	if err := p.migrate(ctx); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx,
		`SELECT key, value FROM crewclock_kv WHERE starts_with(key, $1) ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
