package provision

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestTenantLocker_AcquireRelease(t *testing.T) {
	_, client := setupMiniredis(t)
	locker := NewTenantLocker(client, time.Minute)
	ctx := context.Background()

	acquired, err := locker.Acquire(ctx, "42")
	require.NoError(t, err)
	assert.True(t, acquired)

	// Second acquire for the same clinic is refused while held.
	acquired, err = locker.Acquire(ctx, "42")
	require.NoError(t, err)
	assert.False(t, acquired)

	// A different clinic is unaffected.
	acquired, err = locker.Acquire(ctx, "43")
	require.NoError(t, err)
	assert.True(t, acquired)

	locker.Release(ctx, "42")

	acquired, err = locker.Acquire(ctx, "42")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestTenantLocker_ExpiresAfterTTL(t *testing.T) {
	mr, client := setupMiniredis(t)
	locker := NewTenantLocker(client, 30*time.Second)
	ctx := context.Background()

	acquired, err := locker.Acquire(ctx, "42")
	require.NoError(t, err)
	require.True(t, acquired)

	// A crashed holder never releases; the TTL frees the lock.
	mr.FastForward(31 * time.Second)

	acquired, err = locker.Acquire(ctx, "42")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestTenantLocker_BackendError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectSetNX("provision:lock:42", "1", time.Minute).SetErr(redis.ErrClosed)

	locker := NewTenantLocker(client, time.Minute)

	_, err := locker.Acquire(context.Background(), "42")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
