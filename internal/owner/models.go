package owner

import (
	dErrors "quorumgate/pkg/domain-errors"
)

// MaxOwners bounds the owner set so a governance mistake cannot make every
// quorum check scan an unbounded list.
const MaxOwners = 100

// ValidateID rejects the zero identity. Owner identities are opaque principal
// strings supplied by the identity provider; the only structural rule is that
// they are non-empty.
func ValidateID(ownerID string) error {
	if ownerID == "" {
		return dErrors.New(dErrors.CodeZeroIdentity, "owner identity must not be empty")
	}
	return nil
}

// ValidateThreshold enforces 1 <= threshold <= ownerCount. Checked at
// bootstrap and re-checked on every owner-set or threshold change.
func ValidateThreshold(threshold, ownerCount int) error {
	if threshold < 1 {
		return dErrors.New(dErrors.CodeInvalidThreshold, "threshold must be at least 1")
	}
	if threshold > ownerCount {
		return dErrors.New(dErrors.CodeInvalidThreshold,
			"threshold %d exceeds owner count %d", threshold, ownerCount)
	}
	return nil
}
