package blob_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altinn-access/go-core/internal/blob"
)

func TestMemoryStoreVersioning(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()

	v1, err := store.Write(ctx, "a/policy.xml", []byte("one"))
	require.NoError(t, err)
	v2, err := store.Write(ctx, "a/policy.xml", []byte("two"))
	require.NoError(t, err)
	require.NotEqual(t, v1, v2)

	t.Run("pinned versions stay readable after later writes", func(t *testing.T) {
		content, err := store.GetVersion(ctx, "a/policy.xml", v1)
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), content)

		content, err = store.GetVersion(ctx, "a/policy.xml", v2)
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), content)
	})

	t.Run("unknown version is not found", func(t *testing.T) {
		_, err := store.GetVersion(ctx, "a/policy.xml", "nope")
		assert.ErrorIs(t, err, blob.ErrNotFound)
	})

	t.Run("unknown path is not found", func(t *testing.T) {
		_, err := store.GetVersion(ctx, "b/policy.xml", v1)
		assert.ErrorIs(t, err, blob.ErrNotFound)
	})

	t.Run("exists reflects written paths", func(t *testing.T) {
		exists, err := store.Exists(ctx, "a/policy.xml")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = store.Exists(ctx, "b/policy.xml")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestMemoryStoreLease(t *testing.T) {
	ctx := context.Background()

	t.Run("lease is exclusive per path", func(t *testing.T) {
		store := blob.NewMemoryStore()

		leaseID, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)
		require.NotEmpty(t, leaseID)

		_, err = store.AcquireLease(ctx, "a/policy.xml")
		assert.ErrorIs(t, err, blob.ErrLeaseNotAvailable)

		// A different path is unaffected.
		_, err = store.AcquireLease(ctx, "b/policy.xml")
		assert.NoError(t, err)
	})

	t.Run("released lease can be reacquired", func(t *testing.T) {
		store := blob.NewMemoryStore()

		leaseID, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)
		require.NoError(t, store.ReleaseLease(ctx, "a/policy.xml", leaseID))

		_, err = store.AcquireLease(ctx, "a/policy.xml")
		assert.NoError(t, err)
	})

	t.Run("releasing a stale lease id is a no-op", func(t *testing.T) {
		store := blob.NewMemoryStore()

		leaseID, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)
		require.NoError(t, store.ReleaseLease(ctx, "a/policy.xml", "stale"))

		// Still held by the original lease.
		_, err = store.AcquireLease(ctx, "a/policy.xml")
		assert.ErrorIs(t, err, blob.ErrLeaseNotAvailable)
		require.NoError(t, store.ReleaseLease(ctx, "a/policy.xml", leaseID))
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		store := blob.NewMemoryStore()
		store.SetLeaseTTL(time.Nanosecond)

		_, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)

		time.Sleep(time.Millisecond)
		_, err = store.AcquireLease(ctx, "a/policy.xml")
		assert.NoError(t, err)
	})
}

func TestMemoryStoreWriteConditional(t *testing.T) {
	ctx := context.Background()

	t.Run("write with held lease succeeds", func(t *testing.T) {
		store := blob.NewMemoryStore()
		_, err := store.Write(ctx, "a/policy.xml", nil)
		require.NoError(t, err)

		leaseID, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)

		versionID, err := store.WriteConditional(ctx, "a/policy.xml", []byte("content"), leaseID)
		require.NoError(t, err)
		assert.NotEmpty(t, versionID)
	})

	t.Run("write without the lease fails", func(t *testing.T) {
		store := blob.NewMemoryStore()
		_, err := store.Write(ctx, "a/policy.xml", nil)
		require.NoError(t, err)

		_, err = store.WriteConditional(ctx, "a/policy.xml", []byte("content"), "not-the-lease")
		assert.ErrorIs(t, err, blob.ErrLeaseMismatch)
	})

	t.Run("write after release fails", func(t *testing.T) {
		store := blob.NewMemoryStore()
		_, err := store.Write(ctx, "a/policy.xml", nil)
		require.NoError(t, err)

		leaseID, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)
		require.NoError(t, store.ReleaseLease(ctx, "a/policy.xml", leaseID))

		_, err = store.WriteConditional(ctx, "a/policy.xml", []byte("content"), leaseID)
		assert.ErrorIs(t, err, blob.ErrLeaseMismatch)
	})
}

func TestWithLease(t *testing.T) {
	ctx := context.Background()

	t.Run("releases on success", func(t *testing.T) {
		store := blob.NewMemoryStore()

		err := blob.WithLease(ctx, store, "a/policy.xml", func(leaseID string) error {
			assert.NotEmpty(t, leaseID)
			return nil
		})
		require.NoError(t, err)

		_, err = store.AcquireLease(ctx, "a/policy.xml")
		assert.NoError(t, err)
	})

	t.Run("releases when fn fails", func(t *testing.T) {
		store := blob.NewMemoryStore()
		boom := errors.New("boom")

		err := blob.WithLease(ctx, store, "a/policy.xml", func(string) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = store.AcquireLease(ctx, "a/policy.xml")
		assert.NoError(t, err)
	})

	t.Run("propagates contention", func(t *testing.T) {
		store := blob.NewMemoryStore()
		_, err := store.AcquireLease(ctx, "a/policy.xml")
		require.NoError(t, err)

		called := false
		err = blob.WithLease(ctx, store, "a/policy.xml", func(string) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, blob.ErrLeaseNotAvailable)
		assert.False(t, called)
	})
}
