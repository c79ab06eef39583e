package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFastPath is an optional cache sitting in front of
// ExistsInInboxAndProcessed: a SETNX-based atomic check that answers
// "have we definitely already processed this" without a database round
// trip on the common case. It never replaces the Postgres inbox as the
// source of truth — a cache miss or Redis outage falls straight back to
// the atomic-claim path, it just skips the fast path's speedup.
type RedisFastPath struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisFastPath builds a fast path over an already-connected client.
// ttl bounds how long a processed marker survives; prefix namespaces
// keys per consumer service so two services sharing a Redis instance
// don't collide on message ids.
func NewRedisFastPath(client *redis.Client, prefix string, ttl time.Duration) *RedisFastPath {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisFastPath{client: client, ttl: ttl, prefix: prefix}
}

func (f *RedisFastPath) key(messageID string) string {
	return fmt.Sprintf("%s:processed:%s", f.prefix, messageID)
}

// IsProcessed reports whether messageID was already marked processed.
func (f *RedisFastPath) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	exists, err := f.client.Exists(ctx, f.key(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("store: redis fast path exists: %w", err)
	}
	return exists > 0, nil
}

// MarkProcessed records messageID as processed.
func (f *RedisFastPath) MarkProcessed(ctx context.Context, messageID string) error {
	if err := f.client.Set(ctx, f.key(messageID), time.Now().Unix(), f.ttl).Err(); err != nil {
		return fmt.Errorf("store: redis fast path mark: %w", err)
	}
	return nil
}

// CheckAndMarkAtomic atomically checks-and-sets via SETNX: it returns
// isDuplicate=true when the key already existed (another worker beat
// this one to it), isDuplicate=false when this call just created it.
func (f *RedisFastPath) CheckAndMarkAtomic(ctx context.Context, messageID string) (isDuplicate bool, err error) {
	set, err := f.client.SetNX(ctx, f.key(messageID), time.Now().Unix(), f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store: redis fast path check-and-mark: %w", err)
	}
	return !set, nil
}
