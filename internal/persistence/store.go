// Package persistence provides durable storage for system position state.
package persistence

import (
	"context"

	"synthbot/internal/types"
)

// Store is the repository of synthetic position state, keyed by system id.
// Implementations must survive process restart: every mutation is committed
// to stable storage before the call returns.
//
// Store methods are safe for concurrent use, but callers that read state to
// decide on a subsequent write must hold their own per-system serialization
// around the whole read-decide-write sequence.
type Store interface {
	// Get returns the position for a system id, or (nil, nil) if absent.
	Get(ctx context.Context, systemID string) (*types.SystemPosition, error)

	// Put stores or replaces the position for a system id.
	Put(ctx context.Context, pos types.SystemPosition) error

	// PutIfAbsent stores the position only when no position exists for its
	// system id. Returns false with no mutation when one already exists.
	PutIfAbsent(ctx context.Context, pos types.SystemPosition) (bool, error)

	// Delete removes the position for a system id. Deleting an absent id
	// is a no-op.
	Delete(ctx context.Context, systemID string) error

	// All returns every stored position keyed by system id.
	All(ctx context.Context) (map[string]types.SystemPosition, error)

	// Close releases backing resources.
	Close() error
}
