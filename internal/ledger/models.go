package ledger

import (
	"encoding/json"
	"time"

	dErrors "quorumgate/pkg/domain-errors"
)

// Transaction is one ledger entry: a proposed action awaiting quorum. The id
// is assigned at submission and immutable; entries are never reordered or
// removed.
//
// Executed and Cancelled are mutually exclusive and terminal. The vote maps
// hold only affirmative votes, so the counters always equal the map sizes;
// RecordConfirmation and friends are the only mutation points and keep that
// invariant.
type Transaction struct {
	ID            int64           `json:"id"`
	Target        string          `json:"target"`
	Value         int64           `json:"value"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Submitter     string          `json:"submitter"`
	CreatedAt     time.Time       `json:"created_at"`
	Confirmations int             `json:"confirmations"`
	Cancellations int             `json:"cancellations"`
	Executed      bool            `json:"executed"`
	Cancelled     bool            `json:"cancelled"`

	ConfirmedBy       map[string]bool `json:"confirmed_by,omitempty"`
	CancelRequestedBy map[string]bool `json:"cancel_requested_by,omitempty"`
}

// Validate checks submission-time constraints. Submitter authorization is the
// engine's job, not the ledger's.
func (t *Transaction) Validate() error {
	if t.Target == "" {
		return dErrors.New(dErrors.CodeZeroIdentity, "transaction target must not be empty")
	}
	if t.Value < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "transaction value must not be negative")
	}
	return nil
}

// Terminal reports whether the transaction left the Pending state.
func (t *Transaction) Terminal() bool {
	return t.Executed || t.Cancelled
}

// HasConfirmed reports whether the owner holds an active confirmation vote.
func (t *Transaction) HasConfirmed(ownerID string) bool {
	return t.ConfirmedBy[ownerID]
}

// HasRequestedCancellation reports whether the owner holds an active
// cancellation vote.
func (t *Transaction) HasRequestedCancellation(ownerID string) bool {
	return t.CancelRequestedBy[ownerID]
}

// RecordConfirmation adds the owner's yes vote and bumps the counter.
func (t *Transaction) RecordConfirmation(ownerID string) {
	if t.ConfirmedBy == nil {
		t.ConfirmedBy = make(map[string]bool)
	}
	if !t.ConfirmedBy[ownerID] {
		t.ConfirmedBy[ownerID] = true
		t.Confirmations++
	}
}

// RevokeConfirmation clears the owner's yes vote. Callers must check
// HasConfirmed first; the counter never goes below the map size.
func (t *Transaction) RevokeConfirmation(ownerID string) {
	if t.ConfirmedBy[ownerID] {
		delete(t.ConfirmedBy, ownerID)
		t.Confirmations--
	}
}

// RecordCancellation adds the owner's cancellation vote.
func (t *Transaction) RecordCancellation(ownerID string) {
	if t.CancelRequestedBy == nil {
		t.CancelRequestedBy = make(map[string]bool)
	}
	if !t.CancelRequestedBy[ownerID] {
		t.CancelRequestedBy[ownerID] = true
		t.Cancellations++
	}
}

// RevokeCancellation clears the owner's cancellation vote.
func (t *Transaction) RevokeCancellation(ownerID string) {
	if t.CancelRequestedBy[ownerID] {
		delete(t.CancelRequestedBy, ownerID)
		t.Cancellations--
	}
}

// Clone deep-copies the transaction so store reads never alias engine state.
func (t *Transaction) Clone() *Transaction {
	out := *t
	if t.Payload != nil {
		out.Payload = append(json.RawMessage{}, t.Payload...)
	}
	out.ConfirmedBy = cloneVotes(t.ConfirmedBy)
	out.CancelRequestedBy = cloneVotes(t.CancelRequestedBy)
	return &out
}

func cloneVotes(votes map[string]bool) map[string]bool {
	if votes == nil {
		return nil
	}
	out := make(map[string]bool, len(votes))
	for k, v := range votes {
		out[k] = v
	}
	return out
}
