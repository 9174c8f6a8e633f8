package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace-auth/internal/client"
)

func newTestCache(t *testing.T) (*CooldownCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := client.NewRedisClientFromAddr(mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return NewCooldownCache(rc, zap.NewNop()), mr
}

func TestCooldownCacheAcquireRelease(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	ok, err := cache.Acquire(ctx, "sms:+919876543210", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.Acquire(ctx, "sms:+919876543210", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := cache.Remaining(ctx, "sms:+919876543210")
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))

	require.NoError(t, cache.Release(ctx, "sms:+919876543210"))
	ok, err = cache.Acquire(ctx, "sms:+919876543210", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(31 * time.Second)
	assert.False(t, mr.Exists(cooldownPrefix+"sms:+919876543210"))
}

func TestCooldownCacheRedisDown(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	_, err := cache.Acquire(context.Background(), "k", time.Second)
	assert.Error(t, err)
}
