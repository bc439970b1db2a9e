package events

import "time"

// Type labels a notification for external observers. Nothing in the engine
// consumes these; they exist for auditability and downstream automation.
type Type string

const (
	TypeTransactionSubmitted  Type = "transaction_submitted"
	TypeTransactionConfirmed  Type = "transaction_confirmed"
	TypeConfirmationRevoked   Type = "confirmation_revoked"
	TypeCancellationRequested Type = "cancellation_requested"
	TypeCancellationRevoked   Type = "cancellation_revoked"
	TypeTransactionCancelled  Type = "transaction_cancelled"
	TypeTransactionExecuted   Type = "transaction_executed"
	TypeOwnerAdded            Type = "owner_added"
	TypeThresholdUpdated      Type = "threshold_updated"

	// TypeOwnerRemoved is declared for stream consumers but never emitted:
	// no owner removal operation exists.
	TypeOwnerRemoved Type = "owner_removed"
)

// Event is one notification. TransactionID is nil for events that concern the
// quorum configuration rather than a single ledger entry.
type Event struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	TransactionID *int64    `json:"transaction_id,omitempty"`
	Owner         string    `json:"owner,omitempty"`
	Target        string    `json:"target,omitempty"`
	Threshold     int       `json:"threshold,omitempty"`
	OwnerCount    int       `json:"owner_count,omitempty"`
}
