package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLocker connects to TEST_REDIS_ADDR. Tests are skipped when it is
// not set.
func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	client := NewClientFrom(rdb, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	t.Cleanup(func() { _ = client.Close() })

	return NewLocker(client, "test:"+uuid.NewString()+":")
}

func TestLocker_AcquireRelease(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "sync:K~~KLEVU_PRODUCT::Add", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "sync:K~~KLEVU_PRODUCT::Add", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Extend(ctx, time.Minute))
	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

	again, err := locker.Acquire(ctx, "sync:K~~KLEVU_PRODUCT::Add", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocker_WithLock(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()
	workErr := errors.New("work failed")

	err := locker.WithLock(ctx, "job", time.Minute, func() error {
		inner := locker.WithLock(ctx, "job", time.Minute, func() error {
			t.Fatal("nested run must not start")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return workErr
	})
	assert.ErrorIs(t, err, workErr)

	ran := false
	require.NoError(t, locker.WithLock(ctx, "job", time.Minute, func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran, "lock is released after a failed run")
}

func TestLocker_DefaultPrefix(t *testing.T) {
	locker := NewLocker(nil, "")
	assert.Equal(t, "indexing:lock:", locker.keyPrefix)
}
