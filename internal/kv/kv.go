// Package kv defines the durable key-value contract the time tracking engine
// persists through, plus the backends it ships with.
//
// The engine organizes its state under stable logical key prefixes
// ("session:", "entry:", "event:", "offline:", "settings:"). Backends only need
// to guarantee crash-atomic single-key writes and an atomic multi-key Batch.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv store is closed")

// Store is the durable key-value collaborator.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Write applies every operation in the batch as one atomic unit.
	Write(ctx context.Context, b *Batch) error

	// Scan returns every key/value pair whose key starts with prefix.
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Op is a single mutation inside a Batch.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Batch collects set and delete operations to be applied atomically.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Set queues a write of value under key.
func (b *Batch) Set(key string, value []byte) *Batch {
	b.ops = append(b.ops, Op{Key: key, Value: value})
	return b
}

// Delete queues removal of key.
func (b *Batch) Delete(key string) *Batch {
	b.ops = append(b.ops, Op{Key: key, Delete: true})
	return b
}

// Ops returns the queued operations in insertion order.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Open selects a backend from a DSN:
//
//	memory:                     in-process map (tests, demos)
//	sqlite:/path/to/file.db     SQLite file (a bare path also works)
//	redis://host:6379/0         Redis
//	postgres://user@host/db     PostgreSQL
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "" || dsn == "memory:" || dsn == "memory":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return OpenRedis(ctx, RedisConfig{URL: dsn})
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	case strings.HasPrefix(dsn, "sqlite:"):
		return OpenSQLite(strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//"))
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("unsupported store dsn %q", dsn)
	default:
		return OpenSQLite(dsn)
	}
}
