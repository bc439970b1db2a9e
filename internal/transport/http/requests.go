package httptransport

import (
	"encoding/json"
	"time"

	"quorumgate/internal/ledger"
)

type submitRequest struct {
	Target  string          `json:"target"`
	Value   int64           `json:"value"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type addOwnerRequest struct {
	Owner        string `json:"owner"`
	NewThreshold int    `json:"new_threshold"`
}

type updateQuorumRequest struct {
	Threshold int `json:"threshold"`
}

type submitResponse struct {
	ID int64 `json:"id"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type votesResponse struct {
	Owner                 string `json:"owner"`
	Confirmed             bool   `json:"confirmed"`
	CancellationRequested bool   `json:"cancellation_requested"`
}

type ownersResponse struct {
	Owners []string `json:"owners"`
	Count  int      `json:"count"`
}

type quorumResponse struct {
	Threshold  int `json:"threshold"`
	OwnerCount int `json:"owner_count"`
}

// transactionResponse is the public view of a ledger entry. Vote maps stay
// internal; callers check individual votes through the votes endpoint.
type transactionResponse struct {
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
}

func toTransactionResponse(tx *ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:            tx.ID,
		Target:        tx.Target,
		Value:         tx.Value,
		Payload:       tx.Payload,
		Submitter:     tx.Submitter,
		CreatedAt:     tx.CreatedAt,
		Confirmations: tx.Confirmations,
		Cancellations: tx.Cancellations,
		Executed:      tx.Executed,
		Cancelled:     tx.Cancelled,
	}
}
