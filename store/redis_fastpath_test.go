package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestRedisFastPathNotProcessed(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	fp := NewRedisFastPath(client, "testsvc", time.Hour)
	processed, err := fp.IsProcessed(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestRedisFastPathMarkThenIsProcessed(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	fp := NewRedisFastPath(client, "testsvc", time.Hour)
	ctx := context.Background()

	require.NoError(t, fp.MarkProcessed(ctx, "msg-2"))
	processed, err := fp.IsProcessed(ctx, "msg-2")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestRedisFastPathCheckAndMarkAtomicFirstThenDuplicate(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	fp := NewRedisFastPath(client, "testsvc", time.Hour)
	ctx := context.Background()

	dup, err := fp.CheckAndMarkAtomic(ctx, "msg-3")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = fp.CheckAndMarkAtomic(ctx, "msg-3")
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestRedisFastPathKeysAreNamespacedByPrefix(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	a := NewRedisFastPath(client, "svc-a", time.Hour)
	b := NewRedisFastPath(client, "svc-b", time.Hour)
	ctx := context.Background()

	require.NoError(t, a.MarkProcessed(ctx, "shared-id"))
	processed, err := b.IsProcessed(ctx, "shared-id")
	require.NoError(t, err)
	assert.False(t, processed)
}
