package owner

import (
	"context"
	"errors"

	dErrors "quorumgate/pkg/domain-errors"
	"quorumgate/pkg/platform/sentinel"
)

// Registry supplies identity and quorum checks to the engine. It owns the
// invariants around the owner set: non-empty, no duplicates, no zero
// identity, threshold within 1..count. Mutations only flow in through the
// governance path; nothing else in the process holds a reference that can
// write.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Bootstrap seeds the owner set and threshold when the store is empty. On an
// already-bootstrapped store it only re-validates the persisted invariants so
// a bad config change cannot silently clobber governance history.
func (r *Registry) Bootstrap(ctx context.Context, owners []string, threshold int) error {
	count, err := r.store.Count(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "count owners")
	}

	if count > 0 {
		persisted, err := r.store.Threshold(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read threshold")
		}
		return ValidateThreshold(persisted, count)
	}

	if len(owners) == 0 {
		return dErrors.New(dErrors.CodeZeroIdentity, "bootstrap requires at least one owner")
	}
	if len(owners) > MaxOwners {
		return dErrors.New(dErrors.CodeBadRequest, "too many owners: %d", len(owners))
	}
	if err := ValidateThreshold(threshold, len(owners)); err != nil {
		return err
	}

	for _, ownerID := range owners {
		if err := ValidateID(ownerID); err != nil {
			return err
		}
		if err := r.store.Add(ctx, ownerID); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeDuplicateOwner, "duplicate owner %q", ownerID)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "add owner %q", ownerID)
		}
	}
	if err := r.store.SetThreshold(ctx, threshold); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "set threshold")
	}
	return nil
}

// IsOwner reports whether the identity is a registered owner.
func (r *Registry) IsOwner(ctx context.Context, ownerID string) (bool, error) {
	if ownerID == "" {
		return false, nil
	}
	ok, err := r.store.IsOwner(ctx, ownerID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "owner lookup")
	}
	return ok, nil
}

// List returns the owner set in insertion order.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	owners, err := r.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list owners")
	}
	return owners, nil
}

// Count returns the current owner set size.
func (r *Registry) Count(ctx context.Context) (int, error) {
	count, err := r.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "count owners")
	}
	return count, nil
}

// Threshold returns the current minimum confirmations.
func (r *Registry) Threshold(ctx context.Context) (int, error) {
	threshold, err := r.store.Threshold(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read threshold")
	}
	return threshold, nil
}

// AddOwner admits a new owner and moves the threshold in one step. The engine
// calls this only from its governance dispatch; the new threshold is
// validated against the grown owner set.
func (r *Registry) AddOwner(ctx context.Context, ownerID string, newThreshold int) error {
	if err := ValidateID(ownerID); err != nil {
		return err
	}
	count, err := r.store.Count(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "count owners")
	}
	if count+1 > MaxOwners {
		return dErrors.New(dErrors.CodeBadRequest, "owner set is full")
	}
	if err := ValidateThreshold(newThreshold, count+1); err != nil {
		return err
	}
	if err := r.store.Add(ctx, ownerID); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeDuplicateOwner, "duplicate owner %q", ownerID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "add owner %q", ownerID)
	}
	if err := r.store.SetThreshold(ctx, newThreshold); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "set threshold")
	}
	return nil
}

// UpdateThreshold changes the quorum requirement against the current owner
// count. Engine governance dispatch only.
func (r *Registry) UpdateThreshold(ctx context.Context, newThreshold int) error {
	count, err := r.store.Count(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "count owners")
	}
	if err := ValidateThreshold(newThreshold, count); err != nil {
		return err
	}
	if err := r.store.SetThreshold(ctx, newThreshold); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "set threshold")
	}
	return nil
}
