package owner

import "context"

// Store persists the owner set and quorum threshold. Owners keep their
// insertion order; the order is visible through the list accessor.
//
// Stores return pkg/sentinel errors for factual conflicts (duplicate owner,
// missing config); the Registry translates them into coded domain errors.
type Store interface {
	// Add appends an owner. Returns sentinel.ErrConflict when already present.
	Add(ctx context.Context, ownerID string) error
	IsOwner(ctx context.Context, ownerID string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)

	// Threshold returns sentinel.ErrNotFound before bootstrap has run.
	Threshold(ctx context.Context) (int, error)
	SetThreshold(ctx context.Context, threshold int) error
}
