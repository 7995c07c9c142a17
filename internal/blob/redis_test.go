package blob_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altinn-access/go-core/internal/blob"
)

func newRedisStore(t *testing.T) (*blob.RedisLeasedStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		// miniredis does not speak CLIENT SETINFO.
		DisableIndentity: true,
	})
	t.Cleanup(func() { client.Close() })

	store := blob.NewRedisLeasedStoreWithClient(
		blob.NewMemoryStore(),
		client,
		blob.RedisLeaseConfig{TTL: time.Minute},
		nil,
	)
	return store, mr
}

func TestRedisLeasedStoreLease(t *testing.T) {
	ctx := context.Background()

	t.Run("lease is exclusive across instances", func(t *testing.T) {
		store, _ := newRedisStore(t)

		leaseID, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)
		require.NotEmpty(t, leaseID)

		_, err = store.AcquireLease(ctx, "a/policy.xml")
		assert.ErrorIs(t, err, blob.ErrLeaseNotAvailable)
	})

	t.Run("released lease can be reacquired", func(t *testing.T) {
		store, _ := newRedisStore(t)

		leaseID, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)
		require.NoError(t, store.ReleaseLease(ctx, "a/policy.xml", leaseID))

		_, err = store.AcquireLease(ctx, "a/policy.xml")
		assert.NoError(t, err)
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		store, mr := newRedisStore(t)

		_, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)

		mr.FastForward(2 * time.Minute)

		_, err = store.AcquireLease(ctx, "a/policy.xml")
		assert.NoError(t, err)
	})

	t.Run("a stale holder cannot release the new lease", func(t *testing.T) {
		store, mr := newRedisStore(t)

		stale, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)

		mr.FastForward(2 * time.Minute)
		current, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)

		require.NoError(t, store.ReleaseLease(ctx, "a/policy.xml", stale))

		// The new lease still holds the path.
		_, err = store.AcquireLease(ctx, "a/policy.xml")
		assert.ErrorIs(t, err, blob.ErrLeaseNotAvailable)
		require.NoError(t, store.ReleaseLease(ctx, "a/policy.xml", current))
	})
}

func TestRedisLeasedStoreWriteConditional(t *testing.T) {
	ctx := context.Background()

	t.Run("write with held lease goes through", func(t *testing.T) {
		store, _ := newRedisStore(t)

		leaseID, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)

		versionID, err := store.WriteConditional(ctx, "a/policy.xml", []byte("content"), leaseID)
		require.NoError(t, err)

		content, err := store.GetVersion(ctx, "a/policy.xml", versionID)
		require.NoError(t, err)
		assert.Equal(t, []byte("content"), content)
	})

	t.Run("write with an expired lease fails", func(t *testing.T) {
		store, mr := newRedisStore(t)

		leaseID, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)

		mr.FastForward(2 * time.Minute)

		_, err = store.WriteConditional(ctx, "a/policy.xml", []byte("content"), leaseID)
		assert.ErrorIs(t, err, blob.ErrLeaseMismatch)
	})

	t.Run("write with a foreign lease id fails", func(t *testing.T) {
		store, _ := newRedisStore(t)

		_, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)

		_, err = store.WriteConditional(ctx, "a/policy.xml", []byte("content"), "someone-else")
		assert.ErrorIs(t, err, blob.ErrLeaseMismatch)
	})
}
