package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/settlr/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestLockerExclusive(t *testing.T) {
	ctx := context.Background()
	srv, client := newTestClient(t)
	locker := NewLocker(client)

	token, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "k", "someone-else"))
	assert.True(t, srv.Exists("k"))

	require.NoError(t, locker.Release(ctx, "k", token))
	assert.False(t, srv.Exists("k"))

	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerExpires(t *testing.T) {
	ctx := context.Background()
	srv, client := newTestClient(t)
	locker := NewLocker(client)

	_, ok, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	srv.FastForward(2 * time.Second)

	_, ok, err = locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerValidation(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewLocker(client)

	_, _, err := locker.TryLock(context.Background(), "", time.Second)
	require.ErrorIs(t, err, ErrLockKeyEmpty)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	require.ErrorIs(t, err, ErrLockTTLInvalid)

	var nilLocker *Locker
	_, _, err = nilLocker.TryLock(context.Background(), "k", time.Second)
	require.ErrorIs(t, err, ErrLockNotConfigured)
}

func TestTokenBucketExhaustsBurst(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	bucket := NewTokenBucket(client)

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "owner:1", 0.001, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := bucket.Allow(ctx, "owner:1", 0.001, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
}

func TestSettlementGuard(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)

	guard, err := NewSettlementGuardWithClient(client, config.RateLimitConfig{
		Enabled:         true,
		InitiateRate:    0.001,
		InitiateBurst:   1,
		CallbackLockTTL: time.Minute,
	})
	require.NoError(t, err)

	res, err := guard.AllowInitiate(ctx, "42")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = guard.AllowInitiate(ctx, "42")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	token, ok, err := guard.LockReference(ctx, "REF")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = guard.LockReference(ctx, "REF")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, guard.ReleaseReference(ctx, "REF", token))
}

func TestNilSettlementGuardAllowsEverything(t *testing.T) {
	var guard *SettlementGuard
	res, err := guard.AllowInitiate(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, ok, err := guard.LockReference(context.Background(), "REF")
	require.NoError(t, err)
	assert.True(t, ok)

	disabled, err := NewSettlementGuard(config.RateLimitConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, disabled)
}
