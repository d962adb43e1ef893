package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	// URL is the Redis connection URL (redis://host:port/db)
	URL string

	// Password overrides the password in URL (optional)
	Password string

	// Namespace is prepended to every key (default: "crewclock:")
	Namespace string

	// ScanCount is the COUNT hint for SCAN iterations (default: 500)
	ScanCount int64
}

// Redis is a Store backed by a shared Redis instance, used when several
// devices clock against one authoritative store.
type Redis struct {
	client    *redis.Client
	namespace string
	scanCount int64
}

// OpenRedis creates a client for cfg.URL. The client dials on first use, so
// an unreachable server shows up through Ping and operation errors.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "crewclock:"
	}
	if cfg.ScanCount == 0 {
		cfg.ScanCount = 500
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	return &Redis{
		client:    redis.NewClient(opts),
		namespace: cfg.Namespace,
		scanCount: cfg.ScanCount,
	}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.namespace+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Write applies the batch inside MULTI/EXEC.
func (r *Redis) Write(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.Ops() {
			if op.Delete {
				pipe.Del(ctx, r.namespace+op.Key)
				continue
			}
			pipe.Set(ctx, r.namespace+op.Key, op.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write batch (%d ops): %w", b.Len(), err)
	}
	return nil
}

func (r *Redis) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	match := escapeGlob(r.namespace+prefix) + "*"

	var keys []string
	iter := r.client.Scan(ctx, 0, match, r.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}

	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget %s: %w", prefix, err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Deleted between SCAN and MGET.
			continue
		}
		out[strings.TrimPrefix(keys[i], r.namespace)] = []byte(s)
	}
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Namespace returns the key prefix applied to every key.
func (r *Redis) Namespace() string {
	return r.namespace
}

func escapeGlob(s string) string {
	var sb strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
