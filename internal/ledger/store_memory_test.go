package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"quorumgate/pkg/platform/sentinel"
)

func TestInMemoryStoreAppendAssignsDenseIDs(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	for want := int64(0); want < 3; want++ {
		id, err := store.Append(ctx, &Transaction{Target: "https://example.com/hook"})
		require.NoError(t, err)
		require.Equal(t, want, id)
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestInMemoryStoreGetUnknownID(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Get(ctx, 0)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = store.Get(ctx, -1)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStoreUpdatePersistsVotesAndFlags(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	id, err := store.Append(ctx, &Transaction{Target: "https://example.com/hook"})
	require.NoError(t, err)

	tx, err := store.Get(ctx, id)
	require.NoError(t, err)
	tx.RecordConfirmation("alice")
	tx.Executed = true
	require.NoError(t, store.Update(ctx, tx))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, got.Executed)
	require.Equal(t, 1, got.Confirmations)
	require.True(t, got.HasConfirmed("alice"))
}

func TestInMemoryStoreUpdateUnknownID(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	err := store.Update(ctx, &Transaction{ID: 9, Target: "https://example.com/hook"})
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

// Reads hand out clones; mutating a read result must not leak into the
// stored entry until Update is called.
func TestInMemoryStoreReadsDoNotAliasStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	id, err := store.Append(ctx, &Transaction{Target: "https://example.com/hook"})
	require.NoError(t, err)

	tx, err := store.Get(ctx, id)
	require.NoError(t, err)
	tx.RecordConfirmation("alice")

	fresh, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Zero(t, fresh.Confirmations)
}
