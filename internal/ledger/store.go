package ledger

import "context"

// Store persists the append-only transaction ledger. Ids are dense and start
// at 0; append is the only structural mutation.
type Store interface {
	// Append assigns the next sequential id and persists the entry.
	Append(ctx context.Context, tx *Transaction) (int64, error)
	// Get returns sentinel.ErrNotFound when id is out of range.
	Get(ctx context.Context, id int64) (*Transaction, error)
	Count(ctx context.Context) (int64, error)
	// Update persists counters, terminal flags, and vote maps for an existing
	// entry. Structural fields (target, value, payload, submitter, created_at)
	// never change after Append.
	Update(ctx context.Context, tx *Transaction) error
}
