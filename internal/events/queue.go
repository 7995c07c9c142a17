// Package events delivers delegation change notifications to downstream
// consumers. Delivery is fire-and-forget from the administration point's
// perspective: failures are logged and counted, never propagated.
package events

import (
	"context"

	"github.com/altinn-access/go-core/pkg/types"
)

// Queue is the delegation change event sink.
type Queue interface {
	// Push publishes one change. At-most-once: no retry is attempted.
	Push(ctx context.Context, change *types.DelegationChange) error

	// Close releases the sink's resources.
	Close() error
}

// NoopQueue discards every event.
type NoopQueue struct{}

// Push discards the change.
func (NoopQueue) Push(context.Context, *types.DelegationChange) error { return nil }

// Close is a no-op.
func (NoopQueue) Close() error { return nil }
