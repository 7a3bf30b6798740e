package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, "sms", cfg)
}

func TestAllowWithinLimit(t *testing.T) {
	l := newTestLimiter(t, Config{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "org-a")
		require.NoError(t, err)
		assert.True(t, ok, "send %d should be within the limit", i+1)
	}

	ok, err := l.Allow(ctx, "org-a")
	require.NoError(t, err)
	assert.False(t, ok, "fourth send in the window is throttled")
}

func TestScopesAreIndependent(t *testing.T) {
	l := newTestLimiter(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	ok, err := l.Allow(ctx, "org-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, "org-a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "org-b")
	require.NoError(t, err)
	assert.True(t, ok, "another organization keeps its own window")
}

func TestUnlimitedNeverThrottles(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "org-a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
