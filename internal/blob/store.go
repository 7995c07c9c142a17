// Package blob provides the versioned, lease-capable policy object store
// the administration point writes through. Every successful write
// produces a new immutable version id; exclusive writers are serialized
// per path with time-bounded leases.
package blob

import (
	"context"
	"errors"
)

var (
	// ErrLeaseNotAvailable means another writer currently holds the
	// path's lease. Expected contention, not an infrastructure failure.
	ErrLeaseNotAvailable = errors.New("lease not available")
	// ErrLeaseMismatch means a conditional write presented a lease id
	// that no longer holds the path (lost, expired, or never acquired).
	ErrLeaseMismatch = errors.New("lease id does not hold the path")
	// ErrNotFound means the path or version does not exist.
	ErrNotFound = errors.New("blob not found")
)

// PolicyStore is the versioned blob store contract.
type PolicyStore interface {
	// Exists reports whether any version exists at the path.
	Exists(ctx context.Context, path string) (bool, error)

	// Write stores content unconditionally and returns the new version
	// id. Used only to seed a placeholder so a lease call has a target.
	Write(ctx context.Context, path string, content []byte) (string, error)

	// WriteConditional stores content only while leaseID holds the path,
	// returning the new version id or ErrLeaseMismatch.
	WriteConditional(ctx context.Context, path string, content []byte, leaseID string) (string, error)

	// GetVersion reads one pinned, immutable version.
	GetVersion(ctx context.Context, path, versionID string) ([]byte, error)

	// AcquireLease takes the path's exclusive lease, returning
	// ErrLeaseNotAvailable on contention.
	AcquireLease(ctx context.Context, path string) (string, error)

	// ReleaseLease gives the lease back. Idempotent: releasing a lease
	// that is no longer held is not an error.
	ReleaseLease(ctx context.Context, path, leaseID string) error
}

// WithLease runs fn while holding the path's exclusive lease, releasing
// it on every exit path including panics and fn errors.
func WithLease(ctx context.Context, store PolicyStore, path string, fn func(leaseID string) error) error {
	leaseID, err := store.AcquireLease(ctx, path)
	if err != nil {
		return err
	}
	defer store.ReleaseLease(ctx, path, leaseID)
	return fn(leaseID)
}
